package board

import (
	"math/bits"
	"strings"
)

// Bitboard represents the 81 board squares as a pair of 64-bit words: P0
// covers squares 0..62 (files 9 down to 3, each a contiguous 9-bit column),
// P1 covers squares 63..80 in its low 18 bits (files 2 and 1). Splitting on a
// file boundary means every file's 9-bit column lives entirely in one word,
// so rank-direction operations never need to carry across words.
type Bitboard struct {
	P0 uint64
	P1 uint64
}

// Empty is the zero bitboard.
var Empty = Bitboard{}

const p0Mask = (uint64(1) << 63) - 1
const p1Mask = (uint64(1) << 18) - 1

// bitOf returns the (word, bit-index) pair addressed by sq.
func bitOf(sq Square) (isP1 bool, bit uint) {
	if sq < 63 {
		return false, uint(sq)
	}
	return true, uint(sq - 63)
}

// SquareBB returns a bitboard with only sq set.
func SquareBB(sq Square) Bitboard {
	isP1, bit := bitOf(sq)
	if isP1 {
		return Bitboard{P1: uint64(1) << bit}
	}
	return Bitboard{P0: uint64(1) << bit}
}

func (b Bitboard) Set(sq Square) Bitboard    { return b.Or(SquareBB(sq)) }
func (b Bitboard) Clear(sq Square) Bitboard  { return b.AndNot(SquareBB(sq)) }
func (b Bitboard) Toggle(sq Square) Bitboard { return b.Xor(SquareBB(sq)) }

func (b Bitboard) IsSet(sq Square) bool {
	isP1, bit := bitOf(sq)
	if isP1 {
		return b.P1&(uint64(1)<<bit) != 0
	}
	return b.P0&(uint64(1)<<bit) != 0
}

func (b Bitboard) Or(o Bitboard) Bitboard     { return Bitboard{b.P0 | o.P0, b.P1 | o.P1} }
func (b Bitboard) And(o Bitboard) Bitboard    { return Bitboard{b.P0 & o.P0, b.P1 & o.P1} }
func (b Bitboard) Xor(o Bitboard) Bitboard    { return Bitboard{b.P0 ^ o.P0, b.P1 ^ o.P1} }
func (b Bitboard) AndNot(o Bitboard) Bitboard { return Bitboard{b.P0 &^ o.P0, b.P1 &^ o.P1} }
func (b Bitboard) Not() Bitboard              { return Bitboard{(^b.P0) & p0Mask, (^b.P1) & p1Mask} }

// IsEmpty reports whether no square is set.
func (b Bitboard) IsEmpty() bool { return b.P0 == 0 && b.P1 == 0 }

// Any reports whether at least one square is set.
func (b Bitboard) Any() bool { return !b.IsEmpty() }

// MoreThanOne reports whether two or more squares are set, without a full
// popcount (used by evasion generation: "is there more than one checker").
func (b Bitboard) MoreThanOne() bool {
	if b.P0 != 0 && b.P1 != 0 {
		return true
	}
	if b.P0 != 0 {
		return b.P0&(b.P0-1) != 0
	}
	return b.P1&(b.P1-1) != 0
}

// PopCount returns the number of set squares.
func (b Bitboard) PopCount() int {
	return bits.OnesCount64(b.P0) + bits.OnesCount64(b.P1)
}

// LSB returns the lowest-indexed set square, scanning P0 then P1. Caller must
// ensure b is non-empty.
func (b Bitboard) LSB() Square {
	if b.P0 != 0 {
		return Square(bits.TrailingZeros64(b.P0))
	}
	return Square(63 + bits.TrailingZeros64(b.P1))
}

// PopLSB clears and returns the lowest-indexed set square.
func (b *Bitboard) PopLSB() Square {
	sq := b.LSB()
	*b = b.Clear(sq)
	return sq
}

// ForEach invokes fn once per set square, low to high.
func (b Bitboard) ForEach(fn func(Square)) {
	bb := b
	for bb.Any() {
		fn(bb.PopLSB())
	}
}

// Squares returns every set square as a slice, low to high.
func (b Bitboard) Squares() []Square {
	out := make([]Square, 0, b.PopCount())
	b.ForEach(func(sq Square) { out = append(out, sq) })
	return out
}

func (b Bitboard) String() string {
	var sb strings.Builder
	for rank := 1; rank <= 9; rank++ {
		for file := 9; file >= 1; file-- {
			if b.IsSet(NewSquare(file, rank)) {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

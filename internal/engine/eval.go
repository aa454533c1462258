// Package engine implements the shogi search engine: evaluation, move
// ordering, transposition table, worker search and the engine façade the USI
// handler drives.
package engine

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/hailam/shogi-engine/internal/board"
)

// FVScale converts raw KPP/KKP feature sums into centipawn-like units, the
// same role the teacher's eval.go PawnValue-anchored scale plays for chess.
const FVScale = 32

// NumPieceSlots is the number of non-king piece instances tracked by an
// EvalList: shogi's 40 pieces minus the two kings.
const NumPieceSlots = 38

var nonKingHandGroups = []board.HandPiece{
	board.HPawn, board.HLance, board.HKnight, board.HSilver,
	board.HGold, board.HBishop, board.HRook,
}

// slotBase gives the first slot index of (color, handPiece)'s group; groups
// are sized by board.MaxHandCount and together cover all 38 slots.
var slotBase [2][board.HandPieceNum]int

func init() {
	n := 0
	for c := board.Black; c <= board.White; c++ {
		for _, hp := range nonKingHandGroups {
			slotBase[c][hp] = n
			n += board.MaxHandCount[hp]
		}
	}
	if n != NumPieceSlots {
		panic(fmt.Sprintf("engine: piece slot accounting is wrong: got %d want %d", n, NumPieceSlots))
	}
}

// feature index space: every (color, handPiece, ordinal) and every
// (color, on-board piece type, square) gets its own index in [0, feEnd).
var (
	feHandBase  [2][board.HandPieceNum]int
	feBoardBase [2][board.PieceTypeNum]int
	feEnd       int
)

var nonKingPieceTypes = []board.PieceType{
	board.Pawn, board.Lance, board.Knight, board.Silver, board.Gold, board.Bishop, board.Rook,
	board.ProPawn, board.ProLance, board.ProKnight, board.ProSilver, board.Horse, board.Dragon,
}

func init() {
	idx := 0
	for c := board.Black; c <= board.White; c++ {
		for _, hp := range nonKingHandGroups {
			feHandBase[c][hp] = idx
			idx += board.MaxHandCount[hp]
		}
	}
	for c := board.Black; c <= board.White; c++ {
		for _, pt := range nonKingPieceTypes {
			feBoardBase[c][pt] = idx
			idx += int(board.SquareNum)
		}
	}
	feEnd = idx
}

func handFeature(c board.Color, hp board.HandPiece, ordinal int) int {
	return feHandBase[c][hp] + ordinal
}

// boardFeaturePromo distinguishes promoted pieces from their base form, the
// way Bonanza/Apery-style KPP tables treat e.g. a promoted rook as a distinct
// feature from an unpromoted one even though both revert to the same
// hand-piece kind on capture.
func boardFeaturePromo(c board.Color, pt board.PieceType, sq board.Square) int {
	return feBoardBase[c][pt] + int(sq)
}

// Tables holds the KPP/KKP/K00 feature weights used to score a position.
// Indices mirror the teacher's material/PST tables but are three-way
// (king-piece-piece and king-king-piece) rather than flat piece-square.
type Tables struct {
	KPP  [][][2]int16 // [kingSquare][feEnd*feEnd flattened]: (board, turn) pair
	KKP  [][][2]int32 // [blackKing][whiteKing*feEnd + i]: (board, turn) pair
	K00  [][]int32    // [blackKing][whiteKing]
	Size int          // feEnd, recorded for bounds checks
}

func newTables() *Tables {
	t := &Tables{
		KPP:  make([][][2]int16, board.SquareNum),
		KKP:  make([][][2]int32, board.SquareNum),
		K00:  make([][]int32, board.SquareNum),
		Size: feEnd,
	}
	for k := 0; k < int(board.SquareNum); k++ {
		t.KPP[k] = make([][2]int16, feEnd*feEnd)
		t.KKP[k] = make([][2]int32, int(board.SquareNum)*feEnd)
		t.K00[k] = make([]int32, board.SquareNum)
	}
	return t
}

func (t *Tables) kpp(k, i, j int) [2]int16 { return t.KPP[k][i*feEnd+j] }
func (t *Tables) setKPP(k, i, j int, v [2]int16) {
	t.KPP[k][i*feEnd+j] = v
	t.KPP[k][j*feEnd+i] = v
}
func (t *Tables) kkp(bk, wk, i int) [2]int32 { return t.KKP[bk][wk*feEnd+i] }
func (t *Tables) setKKP(bk, wk, i int, v [2]int32) {
	t.KKP[bk][wk*feEnd+i] = v
}

// LoadEvalFile reads KPP_synthesized.bin and KKP_synthesized.bin from dir.
// Both are raw little-endian dumps ([SquareNum][feEnd][feEnd][2]int16 and
// [SquareNum][SquareNum][feEnd][2]int32 respectively) read through a 1 GiB
// buffered reader. A missing or
// truncated file is fatal: the caller's isready handler aborts the process.
func LoadEvalFile(dir string) (*Tables, error) {
	t := newTables()
	if err := readRawInto(dir+"/KPP_synthesized.bin", func(r io.Reader) error {
		buf := make([]int16, 2)
		raw := make([]byte, 4)
		for k := 0; k < int(board.SquareNum); k++ {
			for i := 0; i < feEnd; i++ {
				for j := 0; j < feEnd; j++ {
					if _, err := io.ReadFull(r, raw); err != nil {
						return err
					}
					buf[0] = int16(binary.LittleEndian.Uint16(raw[0:2]))
					buf[1] = int16(binary.LittleEndian.Uint16(raw[2:4]))
					t.KPP[k][i*feEnd+j] = [2]int16{buf[0], buf[1]}
				}
			}
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("engine: loading KPP table: %w", err)
	}
	if err := readRawInto(dir+"/KKP_synthesized.bin", func(r io.Reader) error {
		raw := make([]byte, 8)
		for bk := 0; bk < int(board.SquareNum); bk++ {
			for wk := 0; wk < int(board.SquareNum); wk++ {
				for i := 0; i < feEnd; i++ {
					if _, err := io.ReadFull(r, raw); err != nil {
						return err
					}
					v0 := int32(binary.LittleEndian.Uint32(raw[0:4]))
					v1 := int32(binary.LittleEndian.Uint32(raw[4:8]))
					t.KKP[bk][wk*feEnd+i] = [2]int32{v0, v1}
				}
			}
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("engine: loading KKP table: %w", err)
	}
	return t, nil
}

const readChunk = 1 << 30 // 1 GiB

func readRawInto(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	r := bufio.NewReaderSize(f, readChunk)
	return fn(r)
}

// SynthesizeTables builds a deterministic, non-random placeholder table set
// for use when no trained KPP_synthesized.bin/KKP_synthesized.bin pair is
// supplied: material-only K00/KKP weights (in the board component; the turn
// component is zero) and zero KPP cross terms, enough to play legal,
// materially sane (if positionally shallow) shogi.
func SynthesizeTables() *Tables {
	t := newTables()
	for bk := 0; bk < int(board.SquareNum); bk++ {
		for wk := 0; wk < int(board.SquareNum); wk++ {
			t.K00[bk][wk] = 0
			for c := board.Black; c <= board.White; c++ {
				for _, pt := range nonKingPieceTypes {
					for sq := 0; sq < int(board.SquareNum); sq++ {
						i := feBoardBase[c][pt] + sq
						v := int32(board.PieceValue[pt] * FVScale)
						if c == board.White {
							v = -v
						}
						t.KKP[bk][wk*feEnd+i] = [2]int32{v, 0}
					}
				}
				for _, hp := range nonKingHandGroups {
					pt := board.HandPieceToPieceType(hp)
					for ord := 0; ord < board.MaxHandCount[hp]; ord++ {
						i := feHandBase[c][hp] + ord
						v := int32(board.PieceValue[pt] * FVScale)
						if c == board.White {
							v = -v
						}
						t.KKP[bk][wk*feEnd+i] = [2]int32{v, 0}
					}
				}
			}
		}
	}
	return t
}

// EvalList tracks, per physical non-king piece, which feature index it
// currently contributes from Black's perspective (list0) and from White's
// inverted perspective (list1). Because shogi never removes a piece from the
// game — a capture only moves it to the capturing side's hand — each of the
// 38 slots persists for the whole game, letting moves be applied as an O(1)
// patch instead of a full rebuild. This is the structural analogue of the
// teacher's NNUE accumulator-stack dirty-piece tracking, rewired over
// hand-crafted feature indices instead of neural weights.
type EvalList struct {
	list0     [NumPieceSlots]int
	list1     [NumPieceSlots]int
	boardSlot [board.SquareNum]int8 // slot occupying a square, -1 if none/king
	handOwner [NumPieceSlots]bool   // true if this slot currently sits in a hand
}

// BuildEvalList scans pos from scratch and assigns each non-king piece a
// stable slot.
func BuildEvalList(pos *board.Position) *EvalList {
	el := &EvalList{}
	for i := range el.boardSlot {
		el.boardSlot[i] = -1
	}
	var used [2][board.HandPieceNum]int
	for sq := board.Square(0); sq < board.SquareNum; sq++ {
		p := pos.PieceOn(sq)
		if p == board.NoPiece || p.Type() == board.King {
			continue
		}
		c := p.Color()
		hp := board.PieceTypeToHandPiece(p.Type().Unpromoted())
		ord := used[c][hp]
		used[c][hp]++
		slot := int8(slotBase[c][hp] + ord)
		el.boardSlot[sq] = slot
		el.list0[slot] = boardFeaturePromo(c, p.Type(), sq)
		el.list1[slot] = boardFeaturePromo(c.Other(), p.Type(), sq.Inverse())
	}
	for _, c := range []board.Color{board.Black, board.White} {
		hand := pos.HandOf(c)
		for _, hp := range nonKingHandGroups {
			n := hand.Count(hp)
			for k := 0; k < n; k++ {
				ord := used[c][hp]
				used[c][hp]++
				slot := int8(slotBase[c][hp] + ord)
				el.handOwner[slot] = true
				el.list0[slot] = handFeature(c, hp, ord)
				el.list1[slot] = handFeature(c.Other(), hp, ord)
			}
		}
	}
	return el
}

// Clone returns an independent copy, used to push a new search-stack frame
// before patching it for the move about to be made.
func (el *EvalList) Clone() *EvalList {
	cp := *el
	return &cp
}

// changedSlots holds up to two slots touched by one move — the mover
// always, and the captured piece when the move is a capture — together
// with each slot's feature indices from just before the move, so a
// differential re-evaluation can subtract the stale KKP/KPP contributions
// before adding the new ones. This is the Go analogue of StateInfo.cl /
// ChangedLists in the teacher's differential-eval design: Apery keeps the
// pre-move list around by temporarily restoring it before the subtraction
// pass, where this tracks the old values directly since Apply overwrites
// el's lists in place.
type changedSlots struct {
	n     int
	slots [2]int8
	old0  [2]int
	old1  [2]int
}

// Apply patches el in place to reflect making move m on pos, which must not
// yet have been mutated by pos.DoMove(m) — Apply reads pos's pre-move hand
// counts and board contents to resolve ordinals. It returns the slots that
// changed (with their pre-move feature indices), for differential
// re-evaluation.
func (el *EvalList) Apply(pos *board.Position, m board.Move) changedSlots {
	mover := pos.Turn()
	var out changedSlots

	if m.IsDrop() {
		hp := m.DropPiece()
		// The dropped piece is the mover's in-hand slot of this kind with the
		// highest hand-feature ordinal.
		lo, hi := handFeature(mover, hp, 0), handFeature(mover, hp, board.MaxHandCount[hp])
		slot, best := int8(-1), -1
		for s := 0; s < NumPieceSlots; s++ {
			if f := el.list0[s]; el.handOwner[s] && f >= lo && f < hi && f > best {
				slot, best = int8(s), f
			}
		}
		sq := m.To()
		pt := board.HandPieceToPieceType(hp)
		out.n = 1
		out.slots[0] = slot
		out.old0[0] = el.list0[slot]
		out.old1[0] = el.list1[slot]
		el.list0[slot] = boardFeaturePromo(mover, pt, sq)
		el.list1[slot] = boardFeaturePromo(mover.Other(), pt, sq.Inverse())
		el.boardSlot[sq] = slot
		el.handOwner[slot] = false
		return out
	}

	from, to := m.From(), m.To()
	moverSlot := el.boardSlot[from]

	if capType := m.PieceTypeCaptured(); capType != board.NoPieceType {
		// The captured piece keeps its own slot forever; it just moves into
		// the capturing side's hand group at the next free ordinal.
		capSlot := el.boardSlot[to]
		hp := board.PieceTypeToHandPiece(capType.Unpromoted())
		ord := pos.HandOf(mover).Count(hp) // count before this capture lands
		out.slots[out.n] = capSlot
		out.old0[out.n] = el.list0[capSlot]
		out.old1[out.n] = el.list1[capSlot]
		out.n++
		el.list0[capSlot] = handFeature(mover, hp, ord)
		el.list1[capSlot] = handFeature(mover.Other(), hp, ord)
		el.handOwner[capSlot] = true
		el.boardSlot[to] = -1
	}

	newType := m.PieceTypeMovedAfterMove()
	out.slots[out.n] = moverSlot
	out.old0[out.n] = el.list0[moverSlot]
	out.old1[out.n] = el.list1[moverSlot]
	out.n++
	el.list0[moverSlot] = boardFeaturePromo(mover, newType, to)
	el.list1[moverSlot] = boardFeaturePromo(mover.Other(), newType, to.Inverse())
	el.boardSlot[from] = -1
	el.boardSlot[to] = moverSlot
	el.handOwner[moverSlot] = false
	return out
}

// FullEvaluate computes the KPP/KKP/K00 sum from scratch: the "seed and
// audit" path the differential evaluator's result is checked against.
func FullEvaluate(pos *board.Position, t *Tables, el *EvalList) int {
	bk := pos.KingSquare(board.Black)
	wk := pos.KingSquare(board.White)
	invWK := wk.Inverse()

	sum0 := int64(t.K00[bk][wk])
	sum1 := int64(t.K00[bk][wk])

	for i := 0; i < NumPieceSlots; i++ {
		k0 := t.kkp(int(bk), int(wk), el.list0[i])
		sum0 += int64(k0[0])
		sum1 += int64(k0[1])
		for j := 0; j < i; j++ {
			p0 := t.kpp(int(bk), el.list0[i], el.list0[j])
			p1 := t.kpp(int(invWK), el.list1[i], el.list1[j])
			sum0 += int64(p0[0]) - int64(p1[0])
			sum1 += int64(p0[1]) - int64(p1[1])
		}
	}

	var score int64
	if pos.Turn() == board.Black {
		score = sum0 + sum1
	} else {
		score = sum0 - sum1
	}
	v := int(score / FVScale)
	if pos.Turn() == board.White {
		v = -v
	}
	return v
}

// evalCacheEntry is the lockless eval-cache payload: the upper bits of the
// turn-less key are XOR'ed into the stored components so a torn or
// mismatched concurrent read is detectable without a lock, the same trick
// the teacher's transposition cluster uses for chess.
type evalCacheEntry struct {
	checkXOR uint64
	sum0, sum1 int64
}

// EvalCache is a small direct-mapped cache of full-evaluation sums keyed by
// the turn-less Zobrist hash, letting differential evaluation skip the O(N²)
// KPP inner loop whenever a transposition into an already-seen position is
// reached at a different ply.
type EvalCache struct {
	entries []evalCacheEntry
	mask    uint64
}

// NewEvalCache allocates a cache with 2^bits entries.
func NewEvalCache(bits uint) *EvalCache {
	n := uint64(1) << bits
	return &EvalCache{entries: make([]evalCacheEntry, n), mask: n - 1}
}

// key mixes the turn-less Zobrist key through xxhash before masking it down
// to the cache's index range. The Zobrist key's low bits are dominated by a
// handful of per-square XOR terms and cluster badly under a plain mask;
// xxhash (already pulled in transitively by badger) gives a cheap, good
// avalanche for the direct-mapped index without a hand-rolled mixer.
func (c *EvalCache) key(pos *board.Position) uint64 {
	k := pos.Key() &^ 1
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], k)
	return xxhash.Sum64(buf[:])
}

// Probe returns the cached (sum0,sum1) pair for pos, or ok=false on a miss or
// XOR-check mismatch.
func (c *EvalCache) Probe(pos *board.Position) (sum0, sum1 int64, ok bool) {
	k := c.key(pos)
	e := &c.entries[k&c.mask]
	if e.checkXOR != (k>>32)^uint64(e.sum0)^uint64(e.sum1) {
		return 0, 0, false
	}
	return e.sum0, e.sum1, true
}

// Store writes (sum0,sum1) for pos into the cache.
func (c *EvalCache) Store(pos *board.Position, sum0, sum1 int64) {
	k := c.key(pos)
	c.entries[k&c.mask] = evalCacheEntry{
		checkXOR: (k >> 32) ^ uint64(sum0) ^ uint64(sum1),
		sum0:     sum0,
		sum1:     sum1,
	}
}

// Evaluator bundles the feature tables with a shared cache and exposes the
// full/differential evaluation entry points a search worker calls.
type Evaluator struct {
	Tables *Tables
	Cache  *EvalCache
}

// NewEvaluator wraps t with a fresh cache sized for cacheBits entries.
func NewEvaluator(t *Tables, cacheBits uint) *Evaluator {
	return &Evaluator{Tables: t, Cache: NewEvalCache(cacheBits)}
}

// Evaluate scores pos from the side-to-move's perspective, in centipawn-like
// units (FVScale applied).
func (ev *Evaluator) Evaluate(pos *board.Position, el *EvalList) int {
	return FullEvaluate(pos, ev.Tables, el)
}

// scoreFromSums turns a raw (sum0,sum1) KPP/KKP pair into the side-to-move
// relative centipawn-like score FullEvaluate/EvaluateDifferential return.
func scoreFromSums(pos *board.Position, sum0, sum1 int64) int {
	var s int64
	if pos.Turn() == board.Black {
		s = sum0 + sum1
	} else {
		s = sum0 - sum1
	}
	v := int(s / FVScale)
	if pos.Turn() == board.White {
		v = -v
	}
	return v
}

// EvaluateFull computes (or, on a cache hit, recalls) the full (sum0,sum1)
// pair for pos and returns the corresponding score, consulting/populating
// the shared EvalCache so a transposition into an already-seen position
// along a different path skips the O(NumPieceSlots^2) KPP inner loop.
func (ev *Evaluator) EvaluateFull(pos *board.Position, el *EvalList) (score int, sum0, sum1 int64) {
	if ev.Cache != nil {
		if s0, s1, ok := ev.Cache.Probe(pos); ok {
			return scoreFromSums(pos, s0, s1), s0, s1
		}
	}
	sum0, sum1 = recomputeSums(pos, ev.Tables, el)
	if ev.Cache != nil {
		ev.Cache.Store(pos, sum0, sum1)
	}
	return scoreFromSums(pos, sum0, sum1), sum0, sum1
}

// EvaluateDifferential re-scores pos after a single move was applied to el,
// given the previous node's raw (sum0,sum1) pair and the slots that move
// touched (with their pre-move feature indices, from EvalList.Apply). It
// bails to a full recompute when prevWasKingMove is set (a king move
// changes KPP[king][*][*] wholesale, exactly as Apery's calcDifference
// bails whenever the move that reached this node moved the king) or when
// changed reports no tracked slots.
//
// For each changed slot the KKP term is replaced outright (old subtracted,
// new added) and the KPP cross terms against every *unchanged* slot are
// likewise replaced; the one KPP term between two changed slots (a capture
// touches exactly two) is corrected once, separately, to avoid counting it
// against a half-updated reference slot.
func (ev *Evaluator) EvaluateDifferential(pos *board.Position, el *EvalList, prevSum0, prevSum1 int64, changed changedSlots, prevWasKingMove bool) (score int, sum0, sum1 int64, usedFull bool) {
	if prevWasKingMove || changed.n == 0 {
		s, s0, s1 := ev.EvaluateFull(pos, el)
		return s, s0, s1, true
	}

	t := ev.Tables
	bk := int(pos.KingSquare(board.Black))
	wk := int(pos.KingSquare(board.White))
	invWK := int(pos.KingSquare(board.White).Inverse())

	isChanged := func(slot int8) bool {
		for k := 0; k < changed.n; k++ {
			if changed.slots[k] == slot {
				return true
			}
		}
		return false
	}

	// pairDelta returns the (sum0,sum1) contribution of the KPP term
	// between feature indices (i0,i1) and (j0,j1), mirroring the combining
	// rule FullEvaluate uses for every unordered slot pair.
	pairDelta := func(i0, i1, j0, j1 int) (int64, int64) {
		p0 := t.kpp(bk, i0, j0)
		p1 := t.kpp(invWK, i1, j1)
		return int64(p0[0]) - int64(p1[0]), int64(p0[1]) - int64(p1[1])
	}

	sum0, sum1 = prevSum0, prevSum1
	for k := 0; k < changed.n; k++ {
		slot := changed.slots[k]
		newI0, newI1 := el.list0[slot], el.list1[slot]
		oldI0, oldI1 := changed.old0[k], changed.old1[k]

		newKKP := t.kkp(bk, wk, newI0)
		oldKKP := t.kkp(bk, wk, oldI0)
		sum0 += int64(newKKP[0]) - int64(oldKKP[0])
		sum1 += int64(newKKP[1]) - int64(oldKKP[1])

		for j := 0; j < NumPieceSlots; j++ {
			js := int8(j)
			if js == slot || isChanged(js) {
				continue
			}
			j0, j1 := el.list0[j], el.list1[j]
			nd0, nd1 := pairDelta(newI0, newI1, j0, j1)
			od0, od1 := pairDelta(oldI0, oldI1, j0, j1)
			sum0 += nd0 - od0
			sum1 += nd1 - od1
		}
	}

	if changed.n == 2 {
		s0, s1 := changed.slots[0], changed.slots[1]
		nd0, nd1 := pairDelta(el.list0[s0], el.list1[s0], el.list0[s1], el.list1[s1])
		od0, od1 := pairDelta(changed.old0[0], changed.old1[0], changed.old0[1], changed.old1[1])
		sum0 += nd0 - od0
		sum1 += nd1 - od1
	}

	return scoreFromSums(pos, sum0, sum1), sum0, sum1, false
}

func recomputeSums(pos *board.Position, t *Tables, el *EvalList) (sum0, sum1 int64) {
	bk := pos.KingSquare(board.Black)
	wk := pos.KingSquare(board.White)
	invWK := wk.Inverse()
	sum0 = int64(t.K00[bk][wk])
	sum1 = int64(t.K00[bk][wk])
	for i := 0; i < NumPieceSlots; i++ {
		k0 := t.kkp(int(bk), int(wk), el.list0[i])
		sum0 += int64(k0[0])
		sum1 += int64(k0[1])
		for j := 0; j < i; j++ {
			p0 := t.kpp(int(bk), el.list0[i], el.list0[j])
			p1 := t.kpp(int(invWK), el.list1[i], el.list1[j])
			sum0 += int64(p0[0]) - int64(p1[0])
			sum1 += int64(p0[1]) - int64(p1[1])
		}
	}
	return
}

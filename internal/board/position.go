package board

import (
	"fmt"
	"strconv"
	"strings"
)

// StateInfo is one entry of the append-only state stack a Position keeps
// alongside its board, exactly as the teacher's StateInfo chain lets undoMove
// walk backwards without recomputation, widened with the fields shogi's
// repetition and check-detection rules need that chess does not.
type StateInfo struct {
	Key           uint64
	BoardKey      uint64 // Key with the hand terms left out, for Superior/Inferior detection
	Hands         [2]Hand
	PliesFromNull int
	CheckersBB    Bitboard
}

// Position is the full mutable board state: piece placement, both hands, side
// to move and the state-info stack. Like the teacher's board.Position it
// favors flat arrays and incremental bitboard maintenance over a generic
// piece-list representation, since every hot path (movegen, SEE, eval) wants
// constant-time piece/attacker lookup.
type Position struct {
	board    [SquareNum]Piece
	pieceBB  [2][PieceTypeNum]Bitboard
	colorBB  [2]Bitboard
	occupied Bitboard
	hand     [2]Hand
	kingSq   [2]Square
	turn     Color
	ply      int
	states   []StateInfo
}

const startSFEN = "lnsgkgsnl/1r5b1/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL b - 1"

// NewPosition returns the standard shogi starting position.
func NewPosition() *Position {
	p := &Position{}
	if err := p.SetSFEN(startSFEN); err != nil {
		panic("board: invalid built-in start SFEN: " + err.Error())
	}
	return p
}

// Turn returns the side to move.
func (p *Position) Turn() Color { return p.turn }

// Ply returns the number of half-moves played since the root SFEN.
func (p *Position) Ply() int { return p.ply }

// Key returns the current Zobrist key.
func (p *Position) Key() uint64 { return p.states[len(p.states)-1].Key }

// PieceOn returns the piece on sq, or NoPiece.
func (p *Position) PieceOn(sq Square) Piece { return p.board[sq] }

// HandOf returns c's hand.
func (p *Position) HandOf(c Color) Hand { return p.hand[c] }

// KingSquare returns c's king square.
func (p *Position) KingSquare(c Color) Square { return p.kingSq[c] }

// PieceBB returns the bitboard of c's pieces of type pt.
func (p *Position) PieceBB(c Color, pt PieceType) Bitboard { return p.pieceBB[c][pt] }

// ColorBB returns the bitboard of all of c's pieces.
func (p *Position) ColorBB(c Color) Bitboard { return p.colorBB[c] }

// Occupied returns the bitboard of every occupied square.
func (p *Position) Occupied() Bitboard { return p.occupied }

// Checkers returns the bitboard of pieces currently giving check to the side
// to move's king.
func (p *Position) Checkers() Bitboard { return p.states[len(p.states)-1].CheckersBB }

// InCheck reports whether the side to move is in check.
func (p *Position) InCheck() bool { return p.Checkers().Any() }

func (p *Position) putPiece(c Color, pt PieceType, sq Square) {
	p.board[sq] = NewPiece(c, pt)
	p.pieceBB[c][pt] = p.pieceBB[c][pt].Set(sq)
	p.colorBB[c] = p.colorBB[c].Set(sq)
	p.occupied = p.occupied.Set(sq)
	if pt == King {
		p.kingSq[c] = sq
	}
}

func (p *Position) removePiece(c Color, pt PieceType, sq Square) {
	p.board[sq] = NoPiece
	p.pieceBB[c][pt] = p.pieceBB[c][pt].Clear(sq)
	p.colorBB[c] = p.colorBB[c].Clear(sq)
	p.occupied = p.occupied.Clear(sq)
}

// attackersOfType returns the squares from which a piece of type pt belonging
// to attackerColor would attack sq, given occ. Pawn/Lance/Knight/Silver/Gold
// attack sets are colour-dependent, so the trick is to ask "what does the
// opposite colour's own attack table from sq look like" — the set of squares
// that can reach sq is exactly the set sq itself could reach moving as the
// other side. King/Bishop/Rook/Horse/Dragon ignore the colour argument
// entirely, so passing the flipped colour for them is harmless.
func attackersOfType(pt PieceType, attackerColor Color, sq Square, occ Bitboard) Bitboard {
	return AttacksFrom(pt, attackerColor.Other(), sq, occ)
}

var allPieceTypes = []PieceType{
	Pawn, Lance, Knight, Silver, Gold, Bishop, Rook, King,
	ProPawn, ProLance, ProKnight, ProSilver, Horse, Dragon,
}

// AttackersTo returns every bySide piece attacking sq, given occupancy occ
// (pass a hypothetical occupancy to probe through a piece as SEE does).
func (p *Position) AttackersTo(sq Square, bySide Color, occ Bitboard) Bitboard {
	var result Bitboard
	for _, pt := range allPieceTypes {
		bb := p.pieceBB[bySide][pt]
		if bb.IsEmpty() {
			continue
		}
		result = result.Or(attackersOfType(pt, bySide, sq, occ).And(bb))
	}
	return result
}

// AttackersToBoth returns attackers of sq from both sides.
func (p *Position) AttackersToBoth(sq Square, occ Bitboard) Bitboard {
	return p.AttackersTo(sq, Black, occ).Or(p.AttackersTo(sq, White, occ))
}

func (p *Position) computeCheckers() Bitboard {
	king := p.kingSq[p.turn]
	return p.AttackersTo(king, p.turn.Other(), p.occupied)
}

// computeBoardKey hashes board placement and side to move only, leaving out
// the hand terms computeKey folds in — used to detect a recurring board
// with a different hand (Superior/Inferior repetition) separately from a
// full, hand-inclusive repetition.
func (p *Position) computeBoardKey() uint64 {
	var k uint64
	for sq := Square(0); sq < SquareNum; sq++ {
		pc := p.board[sq]
		if pc == NoPiece {
			continue
		}
		k ^= ZobristPieceSquare(pc.Color(), pc.Type(), sq)
	}
	if p.turn == White {
		k ^= ZobristTurn()
	}
	return k
}

func (p *Position) computeKey() uint64 {
	k := p.computeBoardKey()
	for c := Black; c <= White; c++ {
		for hp := HandPiece(0); hp < HandPieceNum; hp++ {
			k ^= ZobristHand(c, hp, p.hand[c].Count(hp))
		}
	}
	return k
}

// SetSFEN resets the position from an SFEN string.
func (p *Position) SetSFEN(sfen string) error {
	fields := strings.Fields(sfen)
	if len(fields) < 3 {
		return fmt.Errorf("board: malformed sfen %q", sfen)
	}
	*p = Position{}
	rows := strings.Split(fields[0], "/")
	if len(rows) != 9 {
		return fmt.Errorf("board: sfen must have 9 ranks, got %d", len(rows))
	}
	for r, row := range rows {
		rank := r + 1
		file := 9
		i := 0
		for i < len(row) {
			ch := row[i]
			if ch >= '1' && ch <= '9' {
				n := int(ch - '0')
				file -= n
				i++
				continue
			}
			promoted := false
			if ch == '+' {
				promoted = true
				i++
				ch = row[i]
			}
			pt, ok := sfenLetterToType(ch)
			if !ok {
				return fmt.Errorf("board: unknown sfen piece %q", string(ch))
			}
			if promoted {
				pt = pt.Promoted()
			}
			c := Black
			if ch >= 'a' && ch <= 'z' {
				c = White
			}
			if file < 1 {
				return fmt.Errorf("board: sfen rank %d overflows files", rank)
			}
			p.putPiece(c, pt, NewSquare(file, rank))
			file--
			i++
		}
	}
	switch fields[1] {
	case "b":
		p.turn = Black
	case "w":
		p.turn = White
	default:
		return fmt.Errorf("board: bad sfen turn field %q", fields[1])
	}
	if fields[2] != "-" {
		i := 0
		hf := fields[2]
		for i < len(hf) {
			n := 1
			start := i
			for i < len(hf) && hf[i] >= '0' && hf[i] <= '9' {
				i++
			}
			if i > start {
				n, _ = strconv.Atoi(hf[start:i])
			}
			if i >= len(hf) {
				return fmt.Errorf("board: malformed sfen hand %q", hf)
			}
			ch := hf[i]
			i++
			pt, ok := sfenLetterToType(ch)
			if !ok {
				return fmt.Errorf("board: unknown sfen hand piece %q", string(ch))
			}
			c := Black
			if ch >= 'a' && ch <= 'z' {
				c = White
			}
			hp := PieceTypeToHandPiece(pt)
			p.hand[c].SetCount(hp, p.hand[c].Count(hp)+n)
		}
	}
	st := StateInfo{PliesFromNull: 0}
	p.states = []StateInfo{st}
	p.states[0].Key = p.computeKey()
	p.states[0].BoardKey = p.computeBoardKey()
	p.states[0].Hands = p.hand
	p.states[0].CheckersBB = p.computeCheckers()
	return nil
}

func sfenLetterToType(ch byte) (PieceType, bool) {
	switch ch & 0xdf { // uppercase fold
	case 'P':
		return Pawn, true
	case 'L':
		return Lance, true
	case 'N':
		return Knight, true
	case 'S':
		return Silver, true
	case 'B':
		return Bishop, true
	case 'R':
		return Rook, true
	case 'G':
		return Gold, true
	case 'K':
		return King, true
	}
	return NoPieceType, false
}

// SFEN renders the current position in SFEN notation.
func (p *Position) SFEN() string {
	var sb strings.Builder
	for rank := 1; rank <= 9; rank++ {
		empty := 0
		for file := 9; file >= 1; file-- {
			pc := p.board[NewSquare(file, rank)]
			if pc == NoPiece {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			letter := pc.Type().Unpromoted().String()
			if pc.Type().IsPromoted() {
				sb.WriteByte('+')
			}
			if pc.Color() == Black {
				sb.WriteString(letter)
			} else {
				sb.WriteString(strings.ToLower(letter))
			}
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if rank != 9 {
			sb.WriteByte('/')
		}
	}
	sb.WriteByte(' ')
	sb.WriteString(p.turn.String())
	sb.WriteByte(' ')
	anyHand := false
	for _, c := range []Color{Black, White} {
		for hp := HandPiece(HRook); hp >= HPawn; hp-- {
			n := p.hand[c].Count(hp)
			if n == 0 {
				continue
			}
			anyHand = true
			if n > 1 {
				sb.WriteString(strconv.Itoa(n))
			}
			letter := HandPieceToPieceType(hp).String()
			if c == White {
				letter = strings.ToLower(letter)
			}
			sb.WriteString(letter)
		}
	}
	if !anyHand {
		sb.WriteByte('-')
	}
	sb.WriteString(" 1")
	return sb.String()
}

// DoMove applies m, pushing a new StateInfo.
func (p *Position) DoMove(m Move) {
	side := p.turn
	prev := p.states[len(p.states)-1]
	key := prev.Key
	boardKey := prev.BoardKey
	key ^= ZobristTurn()
	boardKey ^= ZobristTurn()

	if m.IsDrop() {
		hp := m.DropPiece()
		pt := HandPieceToPieceType(hp)
		oldCount := p.hand[side].Count(hp)
		key ^= ZobristHand(side, hp, oldCount)
		key ^= ZobristHand(side, hp, oldCount-1)
		p.hand[side] = p.hand[side].Minus(hp)
		p.putPiece(side, pt, m.To())
		key ^= ZobristPieceSquare(side, pt, m.To())
		boardKey ^= ZobristPieceSquare(side, pt, m.To())
	} else {
		from, to := m.From(), m.To()
		moved := p.board[from]
		captured := p.board[to]
		p.removePiece(side, moved.Type(), from)
		if captured != NoPiece {
			capType := captured.Type()
			p.removePiece(side.Other(), capType, to)
			key ^= ZobristPieceSquare(side.Other(), capType, to)
			boardKey ^= ZobristPieceSquare(side.Other(), capType, to)
			hp := PieceTypeToHandPiece(capType.Unpromoted())
			oldCount := p.hand[side].Count(hp)
			key ^= ZobristHand(side, hp, oldCount)
			key ^= ZobristHand(side, hp, oldCount+1)
			p.hand[side] = p.hand[side].Plus(hp)
		}
		newType := moved.Type()
		if m.IsPromote() {
			newType = newType.Promoted()
		}
		key ^= ZobristPieceSquare(side, moved.Type(), from)
		key ^= ZobristPieceSquare(side, newType, to)
		boardKey ^= ZobristPieceSquare(side, moved.Type(), from)
		boardKey ^= ZobristPieceSquare(side, newType, to)
		p.putPiece(side, newType, to)
	}

	p.turn = side.Other()
	p.ply++
	p.states = append(p.states, StateInfo{
		Key:           key,
		BoardKey:      boardKey,
		Hands:         p.hand,
		PliesFromNull: prev.PliesFromNull + 1,
	})
	p.states[len(p.states)-1].CheckersBB = p.computeCheckers()
}

// UndoMove reverts the most recent DoMove(m).
func (p *Position) UndoMove(m Move) {
	p.states = p.states[:len(p.states)-1]
	p.ply--
	p.turn = p.turn.Other()
	side := p.turn
	to := m.To()

	if m.IsDrop() {
		pt := HandPieceToPieceType(m.DropPiece())
		p.removePiece(side, pt, to)
		p.hand[side] = p.hand[side].Plus(m.DropPiece())
		return
	}

	from := m.From()
	movedPt := m.PieceTypeMoved()
	newType := movedPt
	if m.IsPromote() {
		newType = newType.Promoted()
	}
	p.removePiece(side, newType, to)
	p.putPiece(side, movedPt, from)

	capType := m.PieceTypeCaptured()
	if capType != NoPieceType {
		p.putPiece(side.Other(), capType, to)
		hp := PieceTypeToHandPiece(capType.Unpromoted())
		p.hand[side] = p.hand[side].Minus(hp)
	}
}

// DoNullMove flips the side to move without touching the board, used by null-
// move pruning. UndoNullMove restores it.
func (p *Position) DoNullMove() {
	prev := p.states[len(p.states)-1]
	p.turn = p.turn.Other()
	p.ply++
	p.states = append(p.states, StateInfo{
		Key:           prev.Key ^ ZobristTurn(),
		BoardKey:      prev.BoardKey ^ ZobristTurn(),
		Hands:         p.hand,
		PliesFromNull: 0,
		CheckersBB:    p.computeCheckers(),
	})
}

func (p *Position) UndoNullMove() {
	p.states = p.states[:len(p.states)-1]
	p.turn = p.turn.Other()
	p.ply--
}

// PliesFromNull reports how many moves have been played since the last null
// move (or game start), used to gate null-move verification search.
func (p *Position) PliesFromNull() int { return p.states[len(p.states)-1].PliesFromNull }

// IsDraw classifies the repetition state of the current position by scanning
// the state stack for an earlier occurrence of the same key. A single earlier
// occurrence is enough; occurrences are not counted up to shogi's fourfold
// rule. If one side was in check at every one of its turns since that
// occurrence, the other side gave continuous check and loses:
// RepetitionLose when the checking side is the side to move, RepetitionWin
// when it is the opponent. A recurring position is only ever reachable an
// even number of plies back (both sides must retrace a move each), so the
// scan steps by 2 and the minimum distance is 4 — the same walk Apery's
// Position::isDraw does over its StateInfo chain.
//
// When the board (but not the hand) matches an earlier state, the position
// is classified Superior or Inferior instead of a repetition: the side to
// move holds a hand that dominates, or is dominated by, the hand it held
// at that earlier occurrence, via Hand.IsEqualOrSuperior.
func (p *Position) IsDraw(ply int) RepetitionType {
	n := len(p.states)
	cur := p.states[n-1]
	maxDist := n - 1
	if ply < maxDist {
		maxDist = ply
	}

	// usChecked: the side to move was in check at each of its turns;
	// themChecked: the opponent was in check at each of its turns.
	usChecked, themChecked := p.InCheck(), true
	for dist := 1; dist <= maxDist; dist++ {
		idx := n - 1 - dist
		if dist%2 == 0 {
			usChecked = usChecked && stateInCheckAt(p, idx)
		} else {
			themChecked = themChecked && stateInCheckAt(p, idx)
		}
		if dist < 4 || dist%2 != 0 {
			continue
		}

		st := p.states[idx]
		if st.Key == cur.Key {
			if themChecked {
				return RepetitionLose
			}
			if usChecked {
				return RepetitionWin
			}
			return RepetitionDraw
		}
		if st.BoardKey == cur.BoardKey {
			us := p.turn
			if cur.Hands[us].IsEqualOrSuperior(st.Hands[us]) {
				return RepetitionSuperior
			}
			if st.Hands[us].IsEqualOrSuperior(cur.Hands[us]) {
				return RepetitionInferior
			}
		}
	}
	return RepetitionNone
}

func stateInCheckAt(p *Position, idx int) bool { return p.states[idx].CheckersBB.Any() }

func sameParity(a, b int) bool { return (a-b)%2 == 0 }

// RepetitionType is the classification IsDraw returns.
type RepetitionType int

const (
	RepetitionNone RepetitionType = iota
	RepetitionDraw
	RepetitionWin
	RepetitionLose
	// RepetitionSuperior/Inferior: the board (not the hand) repeated, and the
	// side to move's current hand dominates, or is dominated by, the hand it
	// held at that earlier occurrence.
	RepetitionSuperior
	RepetitionInferior
)

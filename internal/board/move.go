package board

import "fmt"

// ParseUSIMove decodes a USI move string ("7g7f", "8h2b+", "P*5e") against
// pos's legal moves, the same "generate and match the wire string" approach
// the teacher's UCI layer uses for algebraic moves — shogi's drop syntax and
// promotion suffix give the string encoding enough information that a direct
// parse would just duplicate the generator's legality checks.
func ParseUSIMove(pos *Position, s string) (Move, error) {
	if s == "" {
		return MoveNone, fmt.Errorf("board: empty move string")
	}
	var list MoveList
	GenerateLegalAll(pos, &list)
	for i := 0; i < list.Len(); i++ {
		m := list.At(i)
		if m.String() == s {
			return m, nil
		}
	}
	return MoveNone, fmt.Errorf("board: %q is not a legal move", s)
}

// Move packs everything a generator, a search and an undo need into a single
// 32-bit value, the same flat-encoding idiom the teacher's move.go uses for
// chess, widened for shogi's drop moves and promotion flag:
//
//	bits 0-6:   to square            (0..80)
//	bits 7-13:  from square (0..80), or 81+HandPiece for a drop
//	bit  14:    promote
//	bits 15-18: moved piece type
//	bits 19-22: captured piece type (NoPieceType if none)
type Move uint32

const (
	moveToShift       = 0
	moveFromShift     = 7
	movePromoteShift  = 14
	moveMovedShift    = 15
	moveCapturedShift = 19

	moveToMask       = Move(0x7f) << moveToShift
	moveFromMask     = Move(0x7f) << moveFromShift
	movePromoteMask  = Move(1) << movePromoteShift
	moveMovedMask    = Move(0xf) << moveMovedShift
	moveCapturedMask = Move(0xf) << moveCapturedShift

	dropOffset = 81
)

// MoveNone is the sentinel "no move" value.
const MoveNone Move = 0

// MoveNull is a pass move used by the null-move pruning heuristic; it can
// never arise as a real move since its from and to squares are the same.
const MoveNull Move = 129 // to=1, from=1, rest zero

// NewMove builds a board move (not a drop).
func NewMove(from, to Square, moved, captured PieceType, promote bool) Move {
	m := Move(to)<<moveToShift | Move(from)<<moveFromShift | Move(moved)<<moveMovedShift | Move(captured)<<moveCapturedShift
	if promote {
		m |= movePromoteMask
	}
	return m
}

// NewDrop builds a drop move of hp onto to.
func NewDrop(hp HandPiece, to Square) Move {
	pt := HandPieceToPieceType(hp)
	return Move(to)<<moveToShift | Move(dropOffset+int(hp))<<moveFromShift | Move(pt)<<moveMovedShift
}

func (m Move) To() Square { return Square((m & moveToMask) >> moveToShift) }

// From returns the origin square. Only meaningful when IsDrop is false.
func (m Move) From() Square { return Square((m & moveFromMask) >> moveFromShift) }

func (m Move) IsDrop() bool {
	return int((m&moveFromMask)>>moveFromShift) >= dropOffset
}

// DropPiece returns the hand-piece kind being dropped. Only meaningful when
// IsDrop is true.
func (m Move) DropPiece() HandPiece {
	return HandPiece(int((m&moveFromMask)>>moveFromShift) - dropOffset)
}

func (m Move) IsPromote() bool { return m&movePromoteMask != 0 }

func (m Move) PieceTypeMoved() PieceType { return PieceType((m & moveMovedMask) >> moveMovedShift) }

func (m Move) PieceTypeCaptured() PieceType {
	return PieceType((m & moveCapturedMask) >> moveCapturedShift)
}

func (m Move) IsCapture() bool { return m.PieceTypeCaptured() != NoPieceType }

// PieceTypeMovedAfterMove returns the type the moved piece has once the move
// completes (promoted if it promotes).
func (m Move) PieceTypeMovedAfterMove() PieceType {
	pt := m.PieceTypeMoved()
	if m.IsPromote() {
		return pt.Promoted()
	}
	return pt
}

// Is16 truncates a move to the 16-bit form stored in transposition-table
// entries: to, from-or-drop, promote. Piece types are recovered from the
// position at probe time, exactly as the teacher's TT move truncates chess
// moves to from/to/promotion-piece.
func (m Move) Is16() uint16 {
	return uint16(m & (moveToMask | moveFromMask | movePromoteMask))
}

// MoveFrom16 reconstructs a full Move from its 16-bit TT form (see Is16),
// filling in the moved/captured piece types from pos, which must be the
// position the move was stored against.
func MoveFrom16(bits uint16, pos *Position) Move {
	m := Move(bits)
	to := m.To()
	if m.IsDrop() {
		return NewDrop(m.DropPiece(), to)
	}
	from := m.From()
	moved := pos.PieceOn(from).Type()
	captured := pos.PieceOn(to).Type()
	return NewMove(from, to, moved, captured, m.IsPromote())
}

func (m Move) String() string {
	if m == MoveNone {
		return "none"
	}
	if m == MoveNull {
		return "null"
	}
	to := m.To()
	if m.IsDrop() {
		return fmt.Sprintf("%s*%s", dropLetter(HandPieceToPieceType(m.DropPiece())), to)
	}
	s := fmt.Sprintf("%s%s", m.From(), to)
	if m.IsPromote() {
		s += "+"
	}
	return s
}

func dropLetter(pt PieceType) string {
	switch pt {
	case Pawn:
		return "P"
	case Lance:
		return "L"
	case Knight:
		return "N"
	case Silver:
		return "S"
	case Gold:
		return "G"
	case Bishop:
		return "B"
	case Rook:
		return "R"
	}
	return "?"
}

// MaxMoves bounds the largest possible legal move count from any shogi
// position (the teacher's chess MoveList uses the analogous 256-move bound).
const MaxMoves = 593

// MoveList is a fixed-capacity move buffer reused across generator calls to
// avoid per-node allocation.
type MoveList struct {
	moves [MaxMoves]Move
	n     int
}

func (ml *MoveList) Reset() { ml.n = 0 }
func (ml *MoveList) Add(m Move) {
	ml.moves[ml.n] = m
	ml.n++
}
func (ml *MoveList) Len() int          { return ml.n }
func (ml *MoveList) At(i int) Move     { return ml.moves[i] }
func (ml *MoveList) Slice() []Move     { return ml.moves[:ml.n] }

// Swap exchanges the moves at i and j, used by move ordering's partial sort.
func (ml *MoveList) Swap(i, j int) { ml.moves[i], ml.moves[j] = ml.moves[j], ml.moves[i] }

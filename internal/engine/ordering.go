package engine

import (
	"github.com/hailam/shogi-engine/internal/board"
)

// Move ordering priorities, the same staged-score idiom the teacher's
// ordering.go uses for chess, re-anchored to shogi's SEE-based capture
// ordering instead of MVV-LVA table lookup.
const (
	TTMoveScore     = 10000000
	GoodCaptureBase = 1000000
	KillerScore1    = 900000
	KillerScore2    = 800000
	CounterScore    = 700000
	BadCaptureBase  = -100000
)

// pieceIndex folds a board.Piece (color<<4|type) into a small dense index
// for the per-piece history tables below.
func pieceIndex(p board.Piece) int { return int(p) & 0x1f }

const pieceIndexNum = 32

// dropFromIndex maps a move's origin to a single index space: board squares
// occupy 0..80, and a drop of hand-piece hp occupies 81+hp, so history and
// fromTo tables can treat drops as just another kind of origin.
func dropFromIndex(m board.Move) int {
	if m.IsDrop() {
		return int(board.SquareNum) + int(m.DropPiece())
	}
	return int(m.From())
}

const fromIndexNum = int(board.SquareNum) + int(board.HandPieceNum)

// MoveOrderer holds the per-worker killer table plus the four scoring tables
// SPEC_FULL.md §4.6 names: history[piece][to], counterMoves[piece][to],
// counterMoveHistory[piece][to], and fromTo[color][from][to] (the teacher's
// ordering.go folds the last of these into plain history; this keeps both).
type MoveOrderer struct {
	killers [MaxPly][2]board.Move

	history            [pieceIndexNum][board.SquareNum]int
	counterMoves       [pieceIndexNum][board.SquareNum]board.Move
	counterMoveHistory [pieceIndexNum][board.SquareNum]int
	fromTo             [2][fromIndexNum][board.SquareNum]int
}

// NewMoveOrderer creates a new move orderer.
func NewMoveOrderer() *MoveOrderer {
	return &MoveOrderer{}
}

// Clear resets killers and ages every history table for a new search.
func (mo *MoveOrderer) Clear() {
	for i := range mo.killers {
		mo.killers[i][0] = board.MoveNone
		mo.killers[i][1] = board.MoveNone
	}
	for i := range mo.history {
		for j := range mo.history[i] {
			mo.history[i][j] /= 2
		}
	}
	for i := range mo.counterMoves {
		for j := range mo.counterMoves[i] {
			mo.counterMoves[i][j] = board.MoveNone
		}
	}
	for i := range mo.counterMoveHistory {
		for j := range mo.counterMoveHistory[i] {
			mo.counterMoveHistory[i][j] /= 2
		}
	}
	for c := range mo.fromTo {
		for i := range mo.fromTo[c] {
			for j := range mo.fromTo[c][i] {
				mo.fromTo[c][i][j] /= 2
			}
		}
	}
}

// ScoreMoves assigns ordering scores with no counter-move context (used by
// quiescence and probcut move picking).
func (mo *MoveOrderer) ScoreMoves(pos *board.Position, moves *board.MoveList, ply int, ttMove board.Move) []int {
	scores := make([]int, moves.Len())
	for i := 0; i < moves.Len(); i++ {
		scores[i] = mo.scoreMove(pos, moves.At(i), ply, ttMove, board.MoveNone)
	}
	return scores
}

// ScoreMovesWithCounter additionally folds in the counter-move bonus and
// counter-move-history score relative to prevMove, used by the main search.
func (mo *MoveOrderer) ScoreMovesWithCounter(pos *board.Position, moves *board.MoveList, ply int, ttMove, prevMove board.Move) []int {
	scores := make([]int, moves.Len())
	for i := 0; i < moves.Len(); i++ {
		scores[i] = mo.scoreMove(pos, moves.At(i), ply, ttMove, prevMove)
	}
	return scores
}

func (mo *MoveOrderer) scoreMove(pos *board.Position, m board.Move, ply int, ttMove, prevMove board.Move) int {
	if m == ttMove {
		return TTMoveScore
	}

	if m.IsCapture() {
		victim := m.PieceTypeCaptured()
		attacker := m.PieceTypeMoved()
		base := GoodCaptureBase + board.PieceValue[victim]*16 - board.PieceValue[attacker]
		if board.SeeSign(pos, m) {
			return base
		}
		return BadCaptureBase + board.PieceValue[victim]*16 - board.PieceValue[attacker]
	}

	if m.IsPromote() {
		return GoodCaptureBase - 2000
	}

	if m == mo.killers[ply][0] {
		return KillerScore1
	}
	if m == mo.killers[ply][1] {
		return KillerScore2
	}

	pt := m.PieceTypeMoved()
	piece := board.NewPiece(pos.Turn(), pt)
	pIdx := pieceIndex(piece)
	to := m.To()

	score := mo.history[pIdx][to]
	if counter := mo.getCounterMove(prevMove, pos); counter != board.MoveNone && m == counter {
		score += CounterScore
	}
	score += 3 * mo.counterMoveHistory[pIdx][to]
	score += mo.fromTo[pos.Turn()][dropFromIndex(m)][to]
	return score
}

// PickMove selects the best remaining move and moves it to position index,
// giving lazy partial sorting: only as many comparisons as moves actually
// consumed by the caller.
func PickMove(moves *board.MoveList, scores []int, index int) {
	best := index
	for j := index + 1; j < moves.Len(); j++ {
		if scores[j] > scores[best] {
			best = j
		}
	}
	if best != index {
		moves.Swap(index, best)
		scores[index], scores[best] = scores[best], scores[index]
	}
}

// UpdateKillers records a killer move at ply, shifting the previous first
// killer down to second.
func (mo *MoveOrderer) UpdateKillers(m board.Move, ply int) {
	if ply >= MaxPly || mo.killers[ply][0] == m {
		return
	}
	mo.killers[ply][1] = mo.killers[ply][0]
	mo.killers[ply][0] = m
}

const historyCap = 324

// UpdateHistory applies the teacher's bonus-minus-decay update rule,
// clamped at the magnitude SPEC_FULL.md names for shogi's smaller branching
// factor compared to the teacher's chess history table.
func (mo *MoveOrderer) UpdateHistory(pos *board.Position, m board.Move, depth int, isGood bool) {
	piece := board.NewPiece(pos.Turn(), m.PieceTypeMoved())
	pIdx := pieceIndex(piece)
	to := m.To()
	bonus := depth * depth
	if !isGood {
		bonus = -bonus
	}
	cur := mo.history[pIdx][to]
	mo.history[pIdx][to] = cur + bonus - cur*abs(bonus)/historyCap
}

// UpdateCounterMove records counterMove as the reply that refuted prevMove.
func (mo *MoveOrderer) UpdateCounterMove(pos *board.Position, prevMove, counterMove board.Move) {
	if prevMove == board.MoveNone {
		return
	}
	piece := board.NewPiece(pos.Turn().Other(), prevMove.PieceTypeMovedAfterMove())
	mo.counterMoves[pieceIndex(piece)][prevMove.To()] = counterMove
}

func (mo *MoveOrderer) getCounterMove(prevMove board.Move, pos *board.Position) board.Move {
	if prevMove == board.MoveNone {
		return board.MoveNone
	}
	piece := board.NewPiece(pos.Turn().Other(), prevMove.PieceTypeMovedAfterMove())
	return mo.counterMoves[pieceIndex(piece)][prevMove.To()]
}

// UpdateCounterMoveHistory updates the history table keyed by the move that
// preceded m.
func (mo *MoveOrderer) UpdateCounterMoveHistory(pos *board.Position, m board.Move, depth int, isGood bool) {
	piece := board.NewPiece(pos.Turn(), m.PieceTypeMoved())
	pIdx := pieceIndex(piece)
	to := m.To()
	bonus := depth * depth
	if !isGood {
		bonus = -bonus
	}
	cur := mo.counterMoveHistory[pIdx][to]
	mo.counterMoveHistory[pIdx][to] = cur + bonus - cur*abs(bonus)/historyCap
}

// UpdateFromTo updates the plain from/to history table.
func (mo *MoveOrderer) UpdateFromTo(pos *board.Position, m board.Move, depth int, isGood bool) {
	bonus := depth * depth
	if !isGood {
		bonus = -bonus
	}
	c := pos.Turn()
	from := dropFromIndex(m)
	to := m.To()
	cur := mo.fromTo[c][from][to]
	mo.fromTo[c][from][to] = cur + bonus - cur*abs(bonus)/historyCap
}

// GetHistoryScore returns the plain history score for m, used by history
// pruning.
func (mo *MoveOrderer) GetHistoryScore(pos *board.Position, m board.Move) int {
	piece := board.NewPiece(pos.Turn(), m.PieceTypeMoved())
	return mo.history[pieceIndex(piece)][m.To()]
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

package engine

import (
	"math"
	"sync/atomic"

	"github.com/hailam/shogi-engine/internal/board"
)

// Feature-flag constants for the search techniques this worker implements,
// the same always-on-unless-named-off idiom the teacher's search tuning
// constants use, trimmed to the set SPEC_FULL.md names for shogi.
const (
	EnableRazoring    = true
	EnableStaticNMP   = true
	EnableNullMove    = true
	EnableProbcut     = true
	EnableIID         = true
	EnableSingularExt = true
	EnableLMR         = true
	EnableFutility    = true
	EnableSEEPruning  = true
)

// lmrTable[depth][moveCount] holds precomputed late-move reductions, built
// from Stockfish's log(depth)*log(moveCount)/2 formula — pure math, reused
// as-is regardless of the game it's applied to.
var lmrTable [64][64]int

func init() {
	for d := 1; d < 64; d++ {
		for mc := 1; mc < 64; mc++ {
			r := math.Log(float64(d)) * math.Log(float64(mc)) / 2.0
			lmrTable[d][mc] = int(r)
		}
	}
}

// RootMove is one candidate move tracked across iterative-deepening
// iterations, the same role the teacher's RootMove struct plays.
type RootMove struct {
	Move          board.Move
	Score         int
	PreviousScore int
	PV            []board.Move
}

// WorkerResult reports the outcome of completing a depth from one worker.
type WorkerResult struct {
	WorkerID int
	Depth    int
	Score    int
	Move     board.Move
	PV       []board.Move
	Nodes    uint64
}

// searchStackEntry carries per-ply state the recursive search reads and
// writes, grounded on the teacher's SearchStack. The sum0/sum1/changed/
// reachedByKingMove fields thread the incremental evaluator's running
// KPP/KKP sums through the recursion the way Apery's SearchStack carries
// staticEvalRaw and the mover's cl() changed-list between plies.
type searchStackEntry struct {
	staticEval  int
	currentMove board.Move
	pvLine      []board.Move

	sum0, sum1       int64
	sumsValid        bool
	changed          changedSlots
	reachedByKingMove bool
}

// Worker drives one goroutine's worth of alpha-beta search over a shared
// transposition table. Multiple workers searching the same root position
// from independently-owned *board.Position copies form the engine's
// lazy-SMP-style thread pool.
type Worker struct {
	id int

	pos       *board.Position
	evaluator *Evaluator
	elStack   [MaxPly + 1]*EvalList

	orderer *MoveOrderer
	tt      *TranspositionTable

	stopFlag *atomic.Bool
	nodes    uint64
	selDepth int

	ss [MaxPly + 1]searchStackEntry

	rootMoves   []RootMove
	searchMoves []board.Move // restricts the root to these moves if non-empty (USI "go searchmoves")

	resultCh chan<- WorkerResult
}

// NewWorker creates a worker sharing tt and evaluator with its siblings but
// owning its own move orderer and per-search scratch state.
func NewWorker(id int, tt *TranspositionTable, evaluator *Evaluator, stopFlag *atomic.Bool) *Worker {
	return &Worker{
		id:        id,
		evaluator: evaluator,
		orderer:   NewMoveOrderer(),
		tt:        tt,
		stopFlag:  stopFlag,
	}
}

func (w *Worker) ID() int       { return w.id }
func (w *Worker) Nodes() uint64 { return w.nodes }
func (w *Worker) SelDepth() int { return w.selDepth }

// SetPosition gives the worker its own position object to search from; the
// caller constructs it (e.g. via board.Position.SetSFEN plus replayed
// moves) since Position has no Copy method.
func (w *Worker) SetPosition(pos *board.Position) {
	w.pos = pos
	w.elStack[0] = BuildEvalList(pos)
	w.ss[0].sumsValid = false
	w.nodes = 0
	w.selDepth = 0
}

func (w *Worker) SetResultChannel(ch chan<- WorkerResult) { w.resultCh = ch }

// SetSearchMoves restricts the next Search call's root move list to moves, or
// clears the restriction when moves is empty.
func (w *Worker) SetSearchMoves(moves []board.Move) { w.searchMoves = moves }

func (w *Worker) isSearchMove(m board.Move) bool {
	if len(w.searchMoves) == 0 {
		return true
	}
	for _, sm := range w.searchMoves {
		if sm == m {
			return true
		}
	}
	return false
}

func (w *Worker) Reset() { w.orderer.Clear() }

func (w *Worker) stopped() bool { return w.stopFlag.Load() }

// doMove applies m at ply, maintaining the eval-list stack, the search
// stack's currentMove slot, and the bookkeeping evaluate(ply+1) needs to
// decide whether it can re-score differentially. It must be paired with a
// later undoMove(m).
func (w *Worker) doMove(m board.Move, ply int) {
	el := w.elStack[ply].Clone()
	changed := el.Apply(w.pos, m)
	w.elStack[ply+1] = el
	w.pos.DoMove(m)
	w.ss[ply].currentMove = m
	w.ss[ply+1].changed = changed
	w.ss[ply+1].reachedByKingMove = m.PieceTypeMoved() == board.King
	w.ss[ply+1].sumsValid = false
	w.nodes++
}

func (w *Worker) undoMove(m board.Move) {
	w.pos.UndoMove(m)
}

// doNull makes a null move. No piece moves, so the incremental sums carry
// over unchanged; only the side-to-move-relative combination in evaluate
// changes, which scoreFromSums already derives from pos.Turn() at call
// time.
func (w *Worker) doNull(ply int) {
	w.elStack[ply+1] = w.elStack[ply]
	w.ss[ply+1].changed = changedSlots{}
	w.ss[ply+1].reachedByKingMove = false
	w.ss[ply+1].sum0 = w.ss[ply].sum0
	w.ss[ply+1].sum1 = w.ss[ply].sum1
	w.ss[ply+1].sumsValid = w.ss[ply].sumsValid
	w.pos.DoNullMove()
}

func (w *Worker) undoNull() {
	w.pos.UndoNullMove()
}

// evaluate scores the position at ply, taking the incremental path
// (EvaluateDifferential) whenever the previous ply's sums are available and
// the move that reached ply wasn't a king move, and falling back to a full,
// cache-checked re-evaluation (EvaluateFull) otherwise — satisfying the
// requirement that differential evaluation and full re-evaluation agree at
// every ply, since the former is defined purely as a cheaper way to reach
// the latter's (sum0,sum1).
func (w *Worker) evaluate(ply int) int {
	cur := &w.ss[ply]
	if ply == 0 {
		s, sum0, sum1 := w.evaluator.EvaluateFull(w.pos, w.elStack[0])
		cur.sum0, cur.sum1, cur.sumsValid = sum0, sum1, true
		return s
	}
	prev := &w.ss[ply-1]
	if !prev.sumsValid || cur.reachedByKingMove {
		s, sum0, sum1 := w.evaluator.EvaluateFull(w.pos, w.elStack[ply])
		cur.sum0, cur.sum1, cur.sumsValid = sum0, sum1, true
		return s
	}
	s, sum0, sum1, _ := w.evaluator.EvaluateDifferential(w.pos, w.elStack[ply], prev.sum0, prev.sum1, cur.changed, false)
	cur.sum0, cur.sum1, cur.sumsValid = sum0, sum1, true
	return s
}

func mateValue(ply int) int      { return MateScore - ply }
func matedValue(ply int) int     { return -MateScore + ply }
func isMateScore(score int) bool { return score > MateScore-MaxPly || score < -MateScore+MaxPly }

// Search runs iterative deepening from depth 1 to maxDepth, publishing one
// WorkerResult per completed iteration.
func (w *Worker) Search(maxDepth int) {
	w.rootMoves = w.rootMoves[:0]
	var list board.MoveList
	board.GenerateLegal(w.pos, &list)
	for i := 0; i < list.Len(); i++ {
		if m := list.At(i); w.isSearchMove(m) {
			w.rootMoves = append(w.rootMoves, RootMove{Move: m})
		}
	}
	if len(w.rootMoves) == 0 {
		return
	}

	score := 0
	for depth := 1; depth <= maxDepth; depth++ {
		if w.stopped() {
			return
		}
		w.selDepth = 0

		alpha, beta := -Infinity, Infinity
		delta := 18
		if depth >= 5 {
			alpha = clampScore(score - delta)
			beta = clampScore(score + delta)
		}

		for {
			score = w.rootSearch(depth, alpha, beta)
			if w.stopped() {
				return
			}
			if score <= alpha {
				beta = (alpha + beta) / 2
				alpha = clampScore(alpha - delta)
			} else if score >= beta {
				beta = clampScore(beta + delta)
			} else {
				break
			}
			delta += delta/4 + 5
		}

		sortRootMoves(w.rootMoves)

		if w.resultCh != nil {
			best := w.rootMoves[0]
			w.resultCh <- WorkerResult{
				WorkerID: w.id,
				Depth:    depth,
				Score:    best.Score,
				Move:     best.Move,
				PV:       append([]board.Move(nil), best.PV...),
				Nodes:    w.nodes,
			}
		}
	}
}

func clampScore(v int) int {
	if v > Infinity {
		return Infinity
	}
	if v < -Infinity {
		return -Infinity
	}
	return v
}

func sortRootMoves(moves []RootMove) {
	for i := 1; i < len(moves); i++ {
		j := i
		for j > 0 && moves[j-1].Score < moves[j].Score {
			moves[j-1], moves[j] = moves[j], moves[j-1]
			j--
		}
	}
}

// rootSearch runs one PV search at the root, updating each root move's score.
func (w *Worker) rootSearch(depth, alpha, beta int) int {
	best := -Infinity
	for i := range w.rootMoves {
		if w.stopped() {
			return best
		}
		m := w.rootMoves[i].Move
		w.doMove(m, 0)
		var score int
		if i == 0 {
			score = -w.negamax(depth-1, 1, -beta, -alpha, true, false)
		} else {
			score = -w.negamax(depth-1, 1, -alpha-1, -alpha, false, true)
			if score > alpha && score < beta {
				score = -w.negamax(depth-1, 1, -beta, -alpha, true, false)
			}
		}
		w.undoMove(m)

		w.rootMoves[i].PreviousScore = w.rootMoves[i].Score
		w.rootMoves[i].Score = score
		if score > best {
			best = score
			w.rootMoves[i].PV = append([]board.Move{m}, w.ss[1].pvLine...)
		}
		if score > alpha {
			alpha = score
		}
	}
	return best
}

// negamax implements the recursive alpha-beta search described for shogi:
// repetition check, TT probe, mate-in-1 probe, static eval, razoring, static
// null move, null-move pruning, probcut, IID, the main move loop with
// singular extension / LMR / PVS, then a TT store.
func (w *Worker) negamax(depth, ply int, alpha, beta int, isPV, cutNode bool) int {
	w.ss[ply].pvLine = nil
	if ply > w.selDepth {
		w.selDepth = ply
	}

	if depth <= 0 {
		return w.quiescence(ply, alpha, beta, isPV)
	}
	if w.stopped() {
		return 0
	}

	switch w.pos.IsDraw(ply) {
	case board.RepetitionDraw:
		return 0
	case board.RepetitionWin:
		return mateValue(ply)
	case board.RepetitionLose:
		return matedValue(ply)
	case board.RepetitionSuperior:
		// A superior hand at a repeated board isn't a forced mate, just a
		// strong practical advantage — scored near, not at, the mate bound.
		// At ply 2 (the root move and one reply deep) the result is ignored
		// and the node is searched normally, the way Apery's guard does.
		if ply != 2 {
			return mateValue(MaxPly)
		}
	case board.RepetitionInferior:
		if ply != 2 {
			return matedValue(MaxPly)
		}
	}

	// Mate-distance pruning.
	alpha = maxInt(alpha, matedValue(ply))
	beta = minInt(beta, mateValue(ply+1))
	if alpha >= beta {
		return alpha
	}

	inCheck := w.pos.InCheck()
	key := w.pos.Key()
	ttEntry, ttHit := w.tt.Probe(key)
	ttMove := board.MoveNone
	var ttScore int
	if ttHit {
		ttMove = ttEntry.Move(w.pos)
		ttScore = AdjustScoreFromTT(int(ttEntry.Score), ply)
		if !isPV && int(ttEntry.Depth) >= depth {
			switch ttEntry.Flag() {
			case TTExact:
				return ttScore
			case TTLowerBound:
				if ttScore >= beta {
					return ttScore
				}
			case TTUpperBound:
				if ttScore <= alpha {
					return ttScore
				}
			}
		}
	}

	if !inCheck {
		if mateMove := board.MateMoveIn1Ply(w.pos); mateMove != board.MoveNone {
			w.tt.Store(key, depth, AdjustScoreToTT(mateValue(ply+1), ply), int(NoEval), TTExact, mateMove)
			return mateValue(ply + 1)
		}
	}

	staticEval := int(NoEval)
	if !inCheck {
		if ttHit && ttEntry.Eval != NoEval {
			staticEval = int(ttEntry.Eval)
		} else {
			staticEval = w.evaluate(ply)
		}
		if ttHit && (ttEntry.Flag() == TTExact ||
			(ttEntry.Flag() == TTLowerBound && ttScore > staticEval) ||
			(ttEntry.Flag() == TTUpperBound && ttScore < staticEval)) {
			staticEval = ttScore
		}
	}
	w.ss[ply].staticEval = staticEval

	if !isPV && !inCheck {
		if EnableRazoring && depth < 4 && ttMove == board.MoveNone {
			razorMargin := 200 + 150*depth
			if staticEval+razorMargin <= alpha {
				score := w.quiescence(ply, alpha, alpha+1, false)
				if score <= alpha {
					return score
				}
			}
		}

		if EnableStaticNMP && depth < 7 {
			margin := 120 * depth
			if staticEval-margin >= beta {
				return staticEval - margin
			}
		}

		if EnableNullMove && depth >= 3 && staticEval >= beta && w.pos.PliesFromNull() > 0 {
			r := 3 + depth/4
			w.doNull(ply)
			score := -w.negamax(depth-1-r, ply+1, -beta, -beta+1, false, !cutNode)
			w.undoNull()
			if score >= beta {
				if isMateScore(score) {
					score = beta
				}
				return score
			}
		}

		if EnableProbcut && depth >= 5 {
			probBeta := beta + 200
			var caps board.MoveList
			board.GenerateCaptures(w.pos, &caps)
			scores := w.orderer.ScoreMoves(w.pos, &caps, ply, ttMove)
			for i := 0; i < caps.Len(); i++ {
				PickMove(&caps, scores, i)
				m := caps.At(i)
				if board.SEE(w.pos, m) < probBeta-staticEval {
					continue
				}
				w.doMove(m, ply)
				score := -w.negamax(depth-4, ply+1, -probBeta, -probBeta+1, false, !cutNode)
				w.undoMove(m)
				if score >= probBeta {
					return score
				}
			}
		}
	}

	if EnableIID && depth >= 6 && ttMove == board.MoveNone {
		w.negamax(depth*3/4-2, ply, alpha, beta, isPV, cutNode)
		if e, ok := w.tt.Probe(key); ok {
			ttMove = e.Move(w.pos)
		}
	}

	var moves board.MoveList
	board.GenerateLegal(w.pos, &moves)
	if moves.Len() == 0 {
		if inCheck {
			return matedValue(ply)
		}
		return 0
	}

	var prevMove board.Move
	if ply > 0 {
		prevMove = w.ss[ply-1].currentMove
	}
	scores := w.orderer.ScoreMovesWithCounter(w.pos, &moves, ply, ttMove, prevMove)

	bestScore := -Infinity
	bestMove := board.MoveNone
	origAlpha := alpha
	legalCount := 0
	quietsSearched := make([]board.Move, 0, moves.Len())

	for i := 0; i < moves.Len(); i++ {
		PickMove(&moves, scores, i)
		m := moves.At(i)
		isCapture := m.IsCapture()
		isPromo := m.IsPromote()
		gives := board.MoveGivesCheck(w.pos, m)

		extension := 0
		if EnableSingularExt && depth >= 6 && m == ttMove && ttHit &&
			ttEntry.Flag() != TTUpperBound && int(ttEntry.Depth) >= depth-3 {
			singularBeta := AdjustScoreFromTT(int(ttEntry.Score), ply) - 2*depth
			score := w.negamaxExcluding(depth/2, ply, singularBeta-1, singularBeta, m)
			if score < singularBeta {
				extension = 1
			}
		}

		if legalCount >= 1 && !isCapture && !isPromo && !gives && !inCheck {
			if EnableFutility && depth < 8 {
				margin := staticEval + 150 + 100*depth
				if margin <= alpha {
					continue
				}
			}
			if EnableSEEPruning && depth < 8 && !board.SeeSign(w.pos, m) {
				continue
			}
		}

		w.doMove(m, ply)
		legalCount++

		newDepth := depth - 1 + extension
		var score int
		if legalCount == 1 {
			score = -w.negamax(newDepth, ply+1, -beta, -alpha, isPV, false)
		} else {
			reduction := 0
			if EnableLMR && depth >= 3 && legalCount > 3 && !isCapture && !isPromo && !inCheck {
				d := minInt(depth, 63)
				mc := minInt(legalCount, 63)
				reduction = lmrTable[d][mc]
				if cutNode {
					reduction++
				}
				if w.orderer.GetHistoryScore(w.pos, m) > 0 {
					reduction--
				}
				reduction = maxInt(reduction, 0)
				reduction = minInt(reduction, newDepth-1)
			}
			score = -w.negamax(newDepth-reduction, ply+1, -alpha-1, -alpha, false, true)
			if score > alpha && reduction > 0 {
				score = -w.negamax(newDepth, ply+1, -alpha-1, -alpha, false, !cutNode)
			}
			if score > alpha && score < beta {
				score = -w.negamax(newDepth, ply+1, -beta, -alpha, true, false)
			}
		}
		w.undoMove(m)

		if w.stopped() {
			return 0
		}

		if score > bestScore {
			bestScore = score
			bestMove = m
			if isPV {
				w.ss[ply].pvLine = append([]board.Move{m}, w.ss[ply+1].pvLine...)
			}
			if score > alpha {
				alpha = score
				if alpha >= beta {
					if !isCapture {
						w.orderer.UpdateKillers(m, ply)
						w.orderer.UpdateHistory(w.pos, m, depth, true)
						w.orderer.UpdateCounterMove(w.pos, prevMove, m)
						w.orderer.UpdateCounterMoveHistory(w.pos, m, depth, true)
						w.orderer.UpdateFromTo(w.pos, m, depth, true)
						for _, q := range quietsSearched {
							w.orderer.UpdateHistory(w.pos, q, depth, false)
							w.orderer.UpdateCounterMoveHistory(w.pos, q, depth, false)
							w.orderer.UpdateFromTo(w.pos, q, depth, false)
						}
					}
					break
				}
			}
		}
		if !isCapture {
			quietsSearched = append(quietsSearched, m)
		}
	}

	if legalCount == 0 {
		if inCheck {
			return matedValue(ply)
		}
		return 0
	}

	flag := TTExact
	if bestScore >= beta {
		flag = TTLowerBound
	} else if bestScore <= origAlpha {
		flag = TTUpperBound
	}
	w.tt.Store(key, depth, AdjustScoreToTT(bestScore, ply), staticEval, flag, bestMove)

	return bestScore
}

// negamaxExcluding runs a reduced search that skips excluded at this node's
// move loop, used by singular-extension verification.
func (w *Worker) negamaxExcluding(depth, ply, alpha, beta int, excluded board.Move) int {
	var moves board.MoveList
	board.GenerateLegal(w.pos, &moves)
	scores := w.orderer.ScoreMoves(w.pos, &moves, ply, board.MoveNone)
	best := -Infinity
	for i := 0; i < moves.Len(); i++ {
		PickMove(&moves, scores, i)
		m := moves.At(i)
		if m == excluded {
			continue
		}
		w.doMove(m, ply)
		score := -w.negamax(depth, ply+1, -beta, -alpha, false, true)
		w.undoMove(m)
		if score > best {
			best = score
			if score > alpha {
				alpha = score
			}
		}
		if alpha >= beta {
			break
		}
	}
	return best
}

// quiescence extends the search along captures (and check evasions) until
// the position is quiet, bounding the horizon effect a plain fixed-depth
// search would otherwise suffer from tactical sequences.
func (w *Worker) quiescence(ply, alpha, beta int, isPV bool) int {
	w.ss[ply].pvLine = nil
	if ply >= MaxPly {
		return w.evaluate(ply)
	}
	if w.stopped() {
		return 0
	}

	inCheck := w.pos.InCheck()

	if !inCheck {
		if mateMove := board.MateMoveIn1Ply(w.pos); mateMove != board.MoveNone {
			return mateValue(ply + 1)
		}
	}

	var standPat int
	if !inCheck {
		standPat = w.evaluate(ply)
		if standPat >= beta {
			return standPat
		}
		if standPat > alpha {
			alpha = standPat
		}
	} else {
		standPat = -Infinity
	}

	var moves board.MoveList
	if inCheck {
		board.GenerateLegal(w.pos, &moves)
	} else {
		board.GenerateCaptures(w.pos, &moves)
	}
	if moves.Len() == 0 {
		if inCheck {
			return matedValue(ply)
		}
		return standPat
	}

	scores := w.orderer.ScoreMoves(w.pos, &moves, ply, board.MoveNone)
	best := standPat

	for i := 0; i < moves.Len(); i++ {
		PickMove(&moves, scores, i)
		m := moves.At(i)

		if !inCheck && m.IsCapture() {
			futilityBase := standPat + 150 + board.PieceValue[m.PieceTypeCaptured()]
			if futilityBase <= alpha {
				continue
			}
			if !board.SeeSign(w.pos, m) {
				continue
			}
		}

		w.doMove(m, ply)
		score := -w.quiescence(ply+1, -beta, -alpha, isPV)
		w.undoMove(m)

		if score > best {
			best = score
			if isPV {
				w.ss[ply].pvLine = append([]board.Move{m}, w.ss[ply+1].pvLine...)
			}
			if score > alpha {
				alpha = score
			}
		}
		if alpha >= beta {
			break
		}
	}

	return best
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

package engine

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hailam/shogi-engine/internal/board"
	"github.com/hailam/shogi-engine/internal/book"
)

// NumWorkers is the number of parallel search workers (matches CPU cores).
var NumWorkers = runtime.GOMAXPROCS(0)

// SearchInfo reports progress of the current search, the payload the USI
// handler turns into "info depth ... score cp ... pv ..." lines.
type SearchInfo struct {
	Depth    int
	Score    int
	Nodes    uint64
	Time     time.Duration
	PV       []board.Move
	HashFull int
}

// SearchLimits specifies constraints on the search.
type SearchLimits struct {
	Depth       int
	Nodes       uint64
	MoveTime    time.Duration
	Infinite    bool
	MultiPV     int
	SearchMoves []board.Move // restrict the root to these moves if non-empty
}

// SearchResult is one completed principal variation.
type SearchResult struct {
	Move  board.Move
	Score int
	PV    []board.Move
	Depth int
}

// Difficulty maps to a canned set of search limits that SetDifficulty
// selects for Search; the USI handler instead calls SearchWithLimits with
// limits built from go/wtime/btime/byoyomi.
type Difficulty int

const (
	Easy Difficulty = iota
	Medium
	Hard
)

var DifficultySettings = map[Difficulty]SearchLimits{
	Easy:   {Depth: 3, MoveTime: 500 * time.Millisecond},
	Medium: {Depth: 7, MoveTime: 1 * time.Second},
	Hard:   {Depth: 40, MoveTime: 3 * time.Second},
}

// Engine is the shogi search engine: a fixed pool of workers sharing one
// transposition table and evaluator, driven by iterative deepening with
// aspiration windows.
type Engine struct {
	workers   []*Worker
	tt        *TranspositionTable
	evaluator *Evaluator
	stopFlag  atomic.Bool

	difficulty Difficulty
	book       *book.Book

	OnInfo func(SearchInfo)
}

// NewEngine creates an engine with a transposition table of ttSizeMB and a
// material-only placeholder evaluator; call LoadEvalFile to replace it with
// trained weights.
func NewEngine(ttSizeMB int) *Engine {
	tt := NewTranspositionTable(ttSizeMB)
	ev := NewEvaluator(SynthesizeTables(), 16)

	e := &Engine{
		tt:         tt,
		evaluator:  ev,
		difficulty: Medium,
		workers:    make([]*Worker, NumWorkers),
	}
	for i := 0; i < NumWorkers; i++ {
		e.workers[i] = NewWorker(i, tt, ev, &e.stopFlag)
	}
	return e
}

// SetDifficulty sets the canned-limits difficulty level.
func (e *Engine) SetDifficulty(d Difficulty) { e.difficulty = d }

// LoadEvalFile replaces the engine's evaluator with one backed by trained
// KPP/KKP tables read from dir.
func (e *Engine) LoadEvalFile(dir string) error {
	t, err := LoadEvalFile(dir)
	if err != nil {
		return err
	}
	ev := NewEvaluator(t, 16)
	e.evaluator = ev
	for _, w := range e.workers {
		w.evaluator = ev
	}
	return nil
}

// LoadBook opens a badger-backed opening book at path.
func (e *Engine) LoadBook(path string) error {
	b, err := book.Open(path)
	if err != nil {
		return err
	}
	e.book = b
	return nil
}

// HasBook reports whether an opening book is loaded.
func (e *Engine) HasBook() bool { return e.book != nil }

// Book returns the loaded opening book so the USI layer can adjust its
// selection policy (Best_Book_Move, Min/Max_Book_Ply, Min_Book_Score), or nil
// if none is loaded.
func (e *Engine) Book() *book.Book { return e.book }

// SetThreads resizes the worker pool to n goroutines, each sharing the
// existing transposition table and evaluator. Per spec §5, callers must only
// do this between searches.
func (e *Engine) SetThreads(n int) {
	if n < 1 {
		n = 1
	}
	workers := make([]*Worker, n)
	for i := range workers {
		workers[i] = NewWorker(i, e.tt, e.evaluator, &e.stopFlag)
	}
	e.workers = workers
}

// Resize replaces the transposition table with one of ttSizeMB, shared by
// every worker. Callers must only do this between searches.
func (e *Engine) Resize(ttSizeMB int) {
	e.tt = NewTranspositionTable(ttSizeMB)
	for _, w := range e.workers {
		w.tt = e.tt
	}
}

// clonePosition reconstructs an independent *board.Position from pos's
// current SFEN, since board.Position has no Copy method; each worker gets
// its own so they can make/unmake moves without racing the caller's pos or
// each other. Board, hands and turn are preserved; the ply counter is not
// (SFEN always writes move number 1 and SetSFEN starts the clone at ply 0),
// and neither is prior repetition history accumulated before this call,
// since Position keeps its state stack unexported.
func clonePosition(pos *board.Position) *board.Position {
	p := &board.Position{}
	if err := p.SetSFEN(pos.SFEN()); err != nil {
		panic("engine: re-parsing a live position's own SFEN failed: " + err.Error())
	}
	return p
}

// Search finds the best move for pos using the engine's canned difficulty
// limits.
func (e *Engine) Search(pos *board.Position) board.Move {
	return e.SearchWithLimits(pos, DifficultySettings[e.difficulty])
}

// SearchWithLimits runs the worker pool against pos under limits and returns
// the best move found.
func (e *Engine) SearchWithLimits(pos *board.Position, limits SearchLimits) board.Move {
	if e.book != nil {
		if m, ok := e.book.Probe(pos.Key()&^1, pos.Ply()); ok {
			return m
		}
	}

	e.stopFlag.Store(false)
	e.tt.NewSearch()
	for _, w := range e.workers {
		w.Reset()
	}

	startTime := time.Now()
	maxDepth := MaxPly
	if limits.Depth > 0 {
		maxDepth = limits.Depth
	}
	var deadline time.Time
	if limits.MoveTime > 0 {
		deadline = startTime.Add(limits.MoveTime)
	}

	resultCh := make(chan WorkerResult, NumWorkers*8)
	var wg sync.WaitGroup
	for i, w := range e.workers {
		w.SetPosition(clonePosition(pos))
		w.SetResultChannel(resultCh)
		w.SetSearchMoves(limits.SearchMoves)
		wg.Add(1)
		go func(w *Worker, depth int) {
			defer wg.Done()
			w.Search(depth)
		}(w, maxDepth)
		_ = i
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(resultCh)
		close(done)
	}()

	var bestMove board.Move
	var bestScore int
	var bestPV []board.Move
	var bestDepth int

	if !deadline.IsZero() {
		go func() {
			select {
			case <-time.After(time.Until(deadline)):
				e.stopFlag.Store(true)
			case <-done:
			}
		}()
	}

resultLoop:
	for {
		select {
		case result, ok := <-resultCh:
			if !ok {
				break resultLoop
			}
			if result.Move == board.MoveNone {
				continue
			}
			if result.Depth > bestDepth || (result.Depth == bestDepth && result.Score > bestScore) {
				bestMove, bestScore, bestPV, bestDepth = result.Move, result.Score, result.PV, result.Depth
				if e.OnInfo != nil {
					e.OnInfo(SearchInfo{
						Depth:    bestDepth,
						Score:    bestScore,
						Nodes:    e.totalNodes(),
						Time:     time.Since(startTime),
						PV:       bestPV,
						HashFull: e.tt.HashFull(),
					})
				}
				if isMateScore(bestScore) {
					e.stopFlag.Store(true)
				}
			}
		case <-done:
			break resultLoop
		}
	}

	e.stopFlag.Store(true)
	<-done
	return bestMove
}

// SearchMultiPV finds the top limits.MultiPV principal variations by
// repeatedly searching with the previously-found best moves excluded from
// the root move list.
func (e *Engine) SearchMultiPV(pos *board.Position, limits SearchLimits) []SearchResult {
	numPV := limits.MultiPV
	if numPV <= 0 {
		numPV = 1
	}

	results := make([]SearchResult, 0, numPV)
	excluded := make(map[board.Move]bool)

	for i := 0; i < numPV; i++ {
		w := e.workers[0]
		w.SetPosition(clonePosition(pos))
		w.Reset()
		e.tt.NewSearch()
		e.stopFlag.Store(false)

		maxDepth := MaxPly
		if limits.Depth > 0 {
			maxDepth = limits.Depth
		}
		deadline := time.Now().Add(limits.MoveTime)
		if limits.MoveTime <= 0 {
			deadline = time.Time{}
		}

		var best RootMove
		for depth := 1; depth <= maxDepth; depth++ {
			if !deadline.IsZero() && time.Now().After(deadline) {
				break
			}
			w.rootMoves = w.rootMoves[:0]
			var list board.MoveList
			board.GenerateLegal(w.pos, &list)
			for j := 0; j < list.Len(); j++ {
				if !excluded[list.At(j)] {
					w.rootMoves = append(w.rootMoves, RootMove{Move: list.At(j)})
				}
			}
			if len(w.rootMoves) == 0 {
				break
			}
			w.rootSearch(depth, -Infinity, Infinity)
			sortRootMoves(w.rootMoves)
			best = w.rootMoves[0]
			if isMateScore(best.Score) {
				break
			}
		}

		if best.Move == board.MoveNone {
			break
		}
		results = append(results, SearchResult{Move: best.Move, Score: best.Score, PV: best.PV, Depth: len(best.PV)})
		excluded[best.Move] = true
	}

	return results
}

// Stop requests that any in-progress search return as soon as possible.
func (e *Engine) Stop() { e.stopFlag.Store(true) }

// Clear resets the transposition table and every worker's ordering tables.
func (e *Engine) Clear() {
	e.tt.Clear()
	for _, w := range e.workers {
		w.orderer.Clear()
	}
}

func (e *Engine) totalNodes() uint64 {
	var total uint64
	for _, w := range e.workers {
		total += w.Nodes()
	}
	return total
}

// Perft counts leaf nodes at depth from pos, for move generator regression
// testing.
func (e *Engine) Perft(pos *board.Position, depth int) uint64 {
	if depth == 0 {
		return 1
	}
	var moves board.MoveList
	board.GenerateLegal(pos, &moves)
	if depth == 1 {
		return uint64(moves.Len())
	}
	var nodes uint64
	for i := 0; i < moves.Len(); i++ {
		m := moves.At(i)
		pos.DoMove(m)
		nodes += e.Perft(pos, depth-1)
		pos.UndoMove(m)
	}
	return nodes
}

// Evaluate returns the static evaluation of pos from the side-to-move's
// perspective.
func (e *Engine) Evaluate(pos *board.Position) int {
	return e.evaluator.Evaluate(pos, BuildEvalList(pos))
}

// ScoreToString renders a score for display: mate distances as "Mate in N" /
// "Mated in N", everything else as pawns with the centipawn remainder as two
// digits ("-1.50", "0.05"), except that a zero remainder prints as "0"
// ("0.0").
func ScoreToString(score int) string {
	if score > MateScore-100 {
		return "Mate in " + itoa((MateScore-score+1)/2)
	}
	if score < -MateScore+100 {
		return "Mated in " + itoa((MateScore+score+1)/2)
	}
	sign := ""
	if score < 0 {
		sign = "-"
		score = -score
	}
	frac := itoa(score % 100)
	if score%100 != 0 && score%100 < 10 {
		frac = "0" + frac
	}
	return sign + itoa(score/100) + "." + frac
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	if n < 0 {
		return "-" + itoa(-n)
	}
	s := ""
	for n > 0 {
		s = string('0'+byte(n%10)) + s
		n /= 10
	}
	return s
}

package engine

import (
	"testing"
	"time"

	"github.com/hailam/shogi-engine/internal/board"
)

func TestSearchBasic(t *testing.T) {
	pos := board.NewPosition()
	eng := NewEngine(16)
	eng.SetDifficulty(Easy)

	move := eng.Search(pos)
	if move == board.MoveNone {
		t.Error("Search returned MoveNone for starting position")
	}
	t.Logf("Best move: %s", move.String())
}

func TestSearchWithLimitsReturnsLegalMove(t *testing.T) {
	pos := board.NewPosition()
	eng := NewEngine(16)

	move := eng.SearchWithLimits(pos, SearchLimits{Depth: 3, MoveTime: 2 * time.Second})
	if move == board.MoveNone {
		t.Fatal("expected a move from the starting position")
	}

	var legal board.MoveList
	board.GenerateLegal(pos, &legal)
	found := false
	for i := 0; i < legal.Len(); i++ {
		if legal.At(i) == move {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("returned move %s is not legal from the starting position", move.String())
	}
}

func TestMultiPV(t *testing.T) {
	pos := board.NewPosition()
	eng := NewEngine(16)

	limits := SearchLimits{
		Depth:    4,
		MoveTime: 2 * time.Second,
		MultiPV:  3,
	}

	results := eng.SearchMultiPV(pos, limits)
	if len(results) < 2 {
		t.Fatalf("expected at least 2 PVs, got %d", len(results))
	}

	if results[0].Move == results[1].Move {
		t.Errorf("first two PVs have same move: %s", results[0].Move.String())
	}

	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("PV %d has higher score than PV %d (%d > %d)",
				i+1, i, results[i].Score, results[i-1].Score)
		}
	}

	for i, r := range results {
		t.Logf("PV %d: %s (score: %d, depth: %d)", i+1, r.Move.String(), r.Score, r.Depth)
	}
}

// TestConcurrentSearchRace stresses the worker pool across repeated searches
// to catch data races in the shared transposition table and evaluator.
// Run with: go test -race -run TestConcurrentSearchRace ./internal/engine
func TestConcurrentSearchRace(t *testing.T) {
	eng := NewEngine(16)

	positions := []string{
		"lnsgkgsnl/1r5b1/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL b - 1",
		"lnsgkgsnl/1r5b1/pppppp1pp/6p2/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL w - 2",
	}

	iterations := 6
	if testing.Short() {
		iterations = 2
	}

	for i := 0; i < iterations; i++ {
		pos := &board.Position{}
		if err := pos.SetSFEN(positions[i%len(positions)]); err != nil {
			t.Fatalf("iteration %d: SetSFEN: %v", i, err)
		}
		move := eng.SearchWithLimits(pos, SearchLimits{Depth: 5, MoveTime: 300 * time.Millisecond})
		if move == board.MoveNone {
			t.Errorf("iteration %d: search returned MoveNone", i)
		}
	}
}

func TestEvaluateStartPositionIsBalanced(t *testing.T) {
	eng := NewEngine(16)
	pos := board.NewPosition()
	score := eng.Evaluate(pos)
	if score < -200 || score > 200 {
		t.Errorf("expected a roughly balanced start-position score, got %d", score)
	}
}

func TestStopHaltsSearch(t *testing.T) {
	eng := NewEngine(16)
	pos := board.NewPosition()

	done := make(chan board.Move, 1)
	go func() {
		done <- eng.SearchWithLimits(pos, SearchLimits{Depth: MaxPly, Infinite: true})
	}()

	time.Sleep(50 * time.Millisecond)
	eng.Stop()

	select {
	case move := <-done:
		if move == board.MoveNone {
			t.Error("expected a move after Stop")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("search did not stop within timeout")
	}
}

func TestScoreToString(t *testing.T) {
	if got := ScoreToString(0); got != "0.0" {
		t.Errorf("ScoreToString(0) = %q, want \"0.0\"", got)
	}
	if got := ScoreToString(-150); got != "-1.50" {
		t.Errorf("ScoreToString(-150) = %q, want \"-1.50\"", got)
	}
	if got := ScoreToString(MateScore - 3); got == "" {
		t.Error("ScoreToString of a near-mate score should not be empty")
	}
}

package book

import (
	"path/filepath"
	"testing"

	"github.com/hailam/shogi-engine/internal/board"
)

func openTestBook(t *testing.T) *Book {
	t.Helper()
	b, err := Open(filepath.Join(t.TempDir(), "book"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBookProbeHit(t *testing.T) {
	b := openTestBook(t)
	pos := board.NewPosition()
	key := pos.Key() &^ 1

	var moves board.MoveList
	board.GenerateLegal(pos, &moves)
	want := moves.At(0)

	if err := b.Put(key, []Entry{{Move: want, Weight: 10, Score: 0}}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := b.Probe(key, pos.Ply())
	if !ok {
		t.Fatal("expected book hit")
	}
	if got != want {
		t.Errorf("got %s, want %s", got.String(), want.String())
	}
}

func TestBookProbeMiss(t *testing.T) {
	b := openTestBook(t)
	pos := board.NewPosition()

	move, ok := b.Probe(pos.Key()&^1, pos.Ply())
	if ok {
		t.Error("expected miss on empty book")
	}
	if move != board.MoveNone {
		t.Errorf("expected MoveNone on miss, got %s", move.String())
	}
}

func TestBookPlyWindow(t *testing.T) {
	b := openTestBook(t)
	b.MinPly = 2
	b.MaxPly = 4
	pos := board.NewPosition()
	key := pos.Key() &^ 1

	var moves board.MoveList
	board.GenerateLegal(pos, &moves)
	if err := b.Put(key, []Entry{{Move: moves.At(0), Weight: 1}}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, ok := b.Probe(key, 0); ok {
		t.Error("expected miss below MinPly")
	}
	if _, ok := b.Probe(key, 5); ok {
		t.Error("expected miss above MaxPly")
	}
	if _, ok := b.Probe(key, 3); !ok {
		t.Error("expected hit inside ply window")
	}
}

func TestBookMinScoreFilter(t *testing.T) {
	b := openTestBook(t)
	b.MinScore = 50
	pos := board.NewPosition()
	key := pos.Key() &^ 1

	var moves board.MoveList
	board.GenerateLegal(pos, &moves)
	if err := b.Put(key, []Entry{{Move: moves.At(0), Weight: 1, Score: 10}}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, ok := b.Probe(key, 0); ok {
		t.Error("expected miss: only candidate is below MinScore")
	}
}

func TestBookBestMovePolicy(t *testing.T) {
	b := openTestBook(t)
	b.BestMove = true
	pos := board.NewPosition()
	key := pos.Key() &^ 1

	var moves board.MoveList
	board.GenerateLegal(pos, &moves)
	if moves.Len() < 2 {
		t.Fatal("need at least two legal moves from the start position")
	}
	low, high := moves.At(0), moves.At(1)
	if err := b.Put(key, []Entry{
		{Move: low, Weight: 1},
		{Move: high, Weight: 100},
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := b.Probe(key, 0)
	if !ok {
		t.Fatal("expected hit")
	}
	if got != high {
		t.Errorf("expected highest-weight move %s, got %s", high.String(), got.String())
	}
}

func TestBookSize(t *testing.T) {
	b := openTestBook(t)
	if b.Size() != 0 {
		t.Errorf("expected empty book size 0, got %d", b.Size())
	}
	pos := board.NewPosition()
	var moves board.MoveList
	board.GenerateLegal(pos, &moves)
	if err := b.Put(pos.Key()&^1, []Entry{{Move: moves.At(0), Weight: 1}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if b.Size() != 1 {
		t.Errorf("expected size 1, got %d", b.Size())
	}
}

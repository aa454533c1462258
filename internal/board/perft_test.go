package board

import "testing"

func perft(pos *Position, depth int) uint64 {
	if depth == 0 {
		return 1
	}
	var list MoveList
	GenerateLegal(pos, &list)
	if depth == 1 {
		return uint64(list.Len())
	}
	var nodes uint64
	for i := 0; i < list.Len(); i++ {
		m := list.At(i)
		pos.DoMove(m)
		nodes += perft(pos, depth-1)
		pos.UndoMove(m)
	}
	return nodes
}

// TestPerftHirate checks move counts from the standard starting position
// against the well-known published Hirate perft sequence.
func TestPerftHirate(t *testing.T) {
	cases := []struct {
		depth int
		want  uint64
	}{
		{1, 30},
		{2, 900},
		{3, 25470},
	}
	for _, tc := range cases {
		pos := NewPosition()
		if got := perft(pos, tc.depth); got != tc.want {
			t.Errorf("perft(%d) = %d, want %d", tc.depth, got, tc.want)
		}
	}
}

func TestStartingPositionSFENRoundTrip(t *testing.T) {
	pos := NewPosition()
	got := pos.SFEN()
	want := startSFEN
	if got != want {
		t.Errorf("SFEN() = %q, want %q", got, want)
	}
}

func TestDoUndoMoveRestoresState(t *testing.T) {
	pos := NewPosition()
	key0 := pos.Key()
	sfen0 := pos.SFEN()

	var list MoveList
	GenerateLegal(pos, &list)
	if list.Len() == 0 {
		t.Fatal("expected legal moves from starting position")
	}
	for i := 0; i < list.Len(); i++ {
		m := list.At(i)
		pos.DoMove(m)
		pos.UndoMove(m)
		if pos.Key() != key0 {
			t.Fatalf("move %s: key not restored: got %x want %x", m, pos.Key(), key0)
		}
		if pos.SFEN() != sfen0 {
			t.Fatalf("move %s: sfen not restored: got %q want %q", m, pos.SFEN(), sfen0)
		}
	}
}

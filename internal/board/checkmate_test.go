package board

import "testing"

// TestMateMoveIn1PlyGoldDrop sets up a corner mate: White's king on 5a is
// boxed in by its own pawns on 4a/6a, Black's rook on 9b defends a gold
// dropped on 5b, the gold itself covers 4b/6b, and the gold drop delivers
// check. Dropping gold is a legal mating move (only
// pawn drops can be illegal mates).
func TestMateMoveIn1PlyGoldDrop(t *testing.T) {
	pos := &Position{}
	if err := pos.SetSFEN("3pkp3/R8/9/9/9/9/9/9/9 b G 1"); err != nil {
		t.Fatalf("SetSFEN: %v", err)
	}

	want := NewDrop(HGold, NewSquare(5, 2))

	var list MoveList
	GenerateLegal(pos, &list)
	found := false
	for i := 0; i < list.Len(); i++ {
		if list.At(i) == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("gold drop to 5b not found among %d legal moves", list.Len())
	}

	got := MateMoveIn1Ply(pos)
	if got != want {
		t.Fatalf("MateMoveIn1Ply = %s, want %s", got, want)
	}

	pos.DoMove(got)
	defer pos.UndoMove(got)
	if !pos.InCheck() {
		t.Fatal("expected white to be in check after the gold drop")
	}
	if hasLegalMove(pos) {
		t.Fatal("expected white to have no legal replies")
	}
}

// TestPawnDropCheckmateIsIllegal checks the opposite motif: the same king
// box, but the mating piece is a pawn rather than a gold. A pawn does not
// cover 4b/6b, so a second Black rook on 1b rakes rank 2 from the other side:
// each rook then covers the 4b/6b square on its own side of 5b and defends
// 5b. Dropping a pawn to deliver checkmate is illegal in shogi, so the move
// must not appear in the legal move list even though it is otherwise
// pseudo-legal.
func TestPawnDropCheckmateIsIllegal(t *testing.T) {
	pos := &Position{}
	if err := pos.SetSFEN("3pkp3/R7R/9/9/9/9/9/9/9 b P 1"); err != nil {
		t.Fatalf("SetSFEN: %v", err)
	}

	illegal := NewDrop(HPawn, NewSquare(5, 2))

	var list MoveList
	GenerateLegal(pos, &list)
	for i := 0; i < list.Len(); i++ {
		if list.At(i) == illegal {
			t.Fatalf("pawn-drop checkmate must not be legal, found %s", illegal)
		}
	}
}

package usi

import "testing"

func TestParseSetOptionNameAndValue(t *testing.T) {
	name, value, ok := parseSetOption([]string{"name", "USI_Hash", "value", "128"})
	if !ok {
		t.Fatal("parseSetOption failed")
	}
	if name != "USI_Hash" || value != "128" {
		t.Errorf("got name=%q value=%q", name, value)
	}
}

func TestParseSetOptionMultiWordName(t *testing.T) {
	name, value, ok := parseSetOption([]string{"name", "Min", "Book", "Ply", "value", "4"})
	if !ok {
		t.Fatal("parseSetOption failed")
	}
	if name != "Min Book Ply" || value != "4" {
		t.Errorf("got name=%q value=%q", name, value)
	}
}

func TestParseSetOptionButtonHasNoValue(t *testing.T) {
	name, value, ok := parseSetOption([]string{"name", "Clear_Hash"})
	if !ok {
		t.Fatal("parseSetOption failed")
	}
	if name != "Clear_Hash" || value != "" {
		t.Errorf("got name=%q value=%q", name, value)
	}
}

func TestParseGoTimeControls(t *testing.T) {
	g := parseGo([]string{"btime", "10000", "wtime", "9000", "binc", "1000", "winc", "500"})
	if g.btime.Milliseconds() != 10000 || g.wtime.Milliseconds() != 9000 {
		t.Errorf("got btime=%v wtime=%v", g.btime, g.wtime)
	}
	if g.binc.Milliseconds() != 1000 || g.winc.Milliseconds() != 500 {
		t.Errorf("got binc=%v winc=%v", g.binc, g.winc)
	}
}

func TestParseGoByoyomi(t *testing.T) {
	g := parseGo([]string{"byoyomi", "5000"})
	if g.byoyomi.Milliseconds() != 5000 {
		t.Errorf("byoyomi = %v, want 5s", g.byoyomi)
	}
}

func TestParseGoMateAndDepth(t *testing.T) {
	g := parseGo([]string{"mate", "7"})
	if g.mate != 7 {
		t.Errorf("mate = %d, want 7", g.mate)
	}

	g = parseGo([]string{"depth", "12"})
	if g.depth != 12 {
		t.Errorf("depth = %d, want 12", g.depth)
	}
}

func TestParseGoSearchMoves(t *testing.T) {
	g := parseGo([]string{"searchmoves", "7g7f", "2g2f", "depth", "5"})
	if len(g.searchMoves) != 2 || g.searchMoves[0] != "7g7f" || g.searchMoves[1] != "2g2f" {
		t.Errorf("searchMoves = %v", g.searchMoves)
	}
	if g.depth != 5 {
		t.Errorf("depth = %d, want 5", g.depth)
	}
}

func TestParseGoInfinite(t *testing.T) {
	g := parseGo([]string{"infinite"})
	if !g.infinite {
		t.Error("expected infinite=true")
	}
}

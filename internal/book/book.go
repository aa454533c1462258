// Package book implements the opening-book side of the "external collaborator"
// the engine core defers to before searching (spec.md treats book file format
// and selection policy as out of core scope; this package only supplies the
// interface the core probes). Entries are stored in a BadgerDB keyed by the
// position's turn-less Zobrist key, the same embedded-KV idiom the teacher's
// internal/storage/storage.go uses for user preferences, repurposed here for
// JSON-encoded move/weight/score entries instead of game stats.
package book

import (
	"encoding/binary"
	"encoding/json"
	"math/rand"

	"github.com/dgraph-io/badger/v4"

	"github.com/hailam/shogi-engine/internal/board"
)

// Entry is one candidate move recorded for a position.
type Entry struct {
	Move   board.Move `json:"move"`
	Weight uint16     `json:"weight"`
	Score  int16      `json:"score"`
}

// Book is a badger-backed opening book. The zero value's selection policy
// fields (BestMove/MinPly/MaxPly/MinScore) mirror the USI options of the same
// name in spec.md §6.3; the USI layer sets them from setoption commands.
type Book struct {
	db *badger.DB

	BestMove bool // Best_Book_Move: pick highest-weight entry instead of weighted random
	MinPly   int  // Min_Book_Ply
	MaxPly   int  // Max_Book_Ply, 0 means unbounded
	MinScore int  // Min_Book_Score
}

// Open opens (creating if absent) a badger store at path.
func Open(path string) (*Book, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Book{db: db}, nil
}

// Close closes the underlying database.
func (b *Book) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func keyBytes(key uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], key)
	return buf[:]
}

// Put replaces the candidate list stored for key, used by offline book
// construction (not exercised by the search path itself).
func (b *Book) Put(key uint64, entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyBytes(key), data)
	})
}

func (b *Book) lookup(key uint64) ([]Entry, bool) {
	var entries []Entry
	found := false
	_ = b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyBytes(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entries)
		})
	})
	return entries, found
}

// Probe looks up key (the position's turn-less hash) and, if ply falls
// within [MinPly, MaxPly] and a candidate clears MinScore, returns a move per
// the BestMove policy: highest-weight entry if true, weighted random choice
// otherwise. Move encoding is fully self-contained (from/to/drop/promote/
// piece types), so no *board.Position is needed to resolve it.
func (b *Book) Probe(key uint64, ply int) (board.Move, bool) {
	if b == nil || b.db == nil {
		return board.MoveNone, false
	}
	if ply < b.MinPly {
		return board.MoveNone, false
	}
	if b.MaxPly > 0 && ply > b.MaxPly {
		return board.MoveNone, false
	}

	entries, found := b.lookup(key)
	if !found || len(entries) == 0 {
		return board.MoveNone, false
	}

	filtered := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if int(e.Score) >= b.MinScore {
			filtered = append(filtered, e)
		}
	}
	if len(filtered) == 0 {
		return board.MoveNone, false
	}

	if b.BestMove {
		best := filtered[0]
		for _, e := range filtered[1:] {
			if e.Weight > best.Weight {
				best = e
			}
		}
		return best.Move, true
	}

	total := 0
	for _, e := range filtered {
		total += int(e.Weight)
	}
	if total <= 0 {
		return filtered[0].Move, true
	}
	r := rand.Intn(total)
	acc := 0
	for _, e := range filtered {
		acc += int(e.Weight)
		if r < acc {
			return e.Move, true
		}
	}
	return filtered[len(filtered)-1].Move, true
}

// Size reports the number of stored entries (keys), mainly for tests.
func (b *Book) Size() int {
	if b == nil || b.db == nil {
		return 0
	}
	n := 0
	_ = b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n
}

package engine

import (
	"github.com/hailam/shogi-engine/internal/board"
)

// NoEval marks a TTEntry.Eval as "not recorded" (e.g. a mate-in-1 store made
// before the node's static eval was computed), mirroring Stockfish's
// VALUE_NONE sentinel for the same field.
const NoEval int16 = 32002

// TTFlag indicates the type of bound stored in the transposition table.
type TTFlag uint8

const (
	TTExact      TTFlag = iota // Exact score
	TTLowerBound               // Failed high (beta cutoff)
	TTUpperBound               // Failed low
)

// ttClusterSize is the number of entries sharing one index — the lockless
// table probes all of them rather than chaining or locking on collision.
const ttClusterSize = 3

// generationDelta is added to the table's generation counter once per
// search; it leaves the low two bits (ttEntry.genBound's bound field) free
// of any generation bit, the same packing Stockfish-family lockless tables
// use.
const generationDelta = 4

// TTEntry is one slot of a cluster: the upper 16 bits of the Zobrist key
// (verification, not full 64-bit storage — a clustered table tolerates the
// occasional aliased false-positive the way the teacher's XOR-checked eval
// cache tolerates a torn read), a 16-bit truncated move, score and static
// eval, and a packed depth/generation/bound byte set. Sized to 10 logical
// bytes so three entries plus 2 bytes of cluster padding make a 32-byte
// cache-line-friendly cluster.
type TTEntry struct {
	key16    uint16
	move16   uint16
	Score    int16
	Eval     int16
	Depth    int8
	genBound uint8
}

// Flag extracts the bound type packed into genBound's low 2 bits.
func (e *TTEntry) Flag() TTFlag { return TTFlag(e.genBound & 0x3) }

func (e *TTEntry) generation() uint8 { return e.genBound &^ 0x3 }

// Move reconstructs the full board.Move from the entry's 16-bit truncated
// form, resolving piece types against pos (which must be the position this
// entry was probed against). Returns board.MoveNone if no move is stored.
func (e *TTEntry) Move(pos *board.Position) board.Move {
	if e.move16 == 0 {
		return board.MoveNone
	}
	return board.MoveFrom16(e.move16, pos)
}

// ttCluster is the unit of allocation and replacement: ttClusterSize
// entries plus 2 bytes of padding, 32 bytes total.
type ttCluster struct {
	entries [ttClusterSize]TTEntry
	_       [2]byte
}

// TranspositionTable is a lockless, clustered hash table for storing search
// results, shared without synchronization across the engine's worker
// goroutines (per spec's lazy-SMP design): a torn concurrent read is
// detected, not prevented, by the 16-bit key check on the next probe.
type TranspositionTable struct {
	clusters   []ttCluster
	mask       uint64
	generation uint8

	// Statistics
	hits   uint64
	probes uint64
}

// NewTranspositionTable creates a transposition table with the given size in
// MB, rounding the cluster count down to a power of 2 for a mask-based
// index instead of a modulo.
func NewTranspositionTable(sizeMB int) *TranspositionTable {
	const clusterSize = uint64(ttClusterSize*10 + 2) // 32 bytes/cluster
	numClusters := (uint64(sizeMB) * 1024 * 1024) / clusterSize
	numClusters = roundDownToPowerOf2(numClusters)
	if numClusters == 0 {
		numClusters = 1
	}

	return &TranspositionTable{
		clusters:   make([]ttCluster, numClusters),
		mask:       numClusters - 1,
		generation: generationDelta,
	}
}

// roundDownToPowerOf2 rounds n down to the nearest power of 2.
func roundDownToPowerOf2(n uint64) uint64 {
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return (n + 1) >> 1
}

// relativeAge scores how stale entryGen is relative to the table's current
// generation: depth - 2*relativeAge is the classic "prefer deep, prefer
// fresh" replacement score, with the exact 259/0xfc constants matched to
// the spec's clustered-TT replacement formula so a generation wraparound
// (every 64 searches, since generation is a 6-bit counter stepping by 4)
// still orders correctly.
func relativeAge(entryGen, currentGen uint8) uint8 {
	return uint8(259+int(currentGen)-int(entryGen)) & 0xfc
}

func replacementValue(e *TTEntry, currentGen uint8) int {
	return int(e.Depth) - 2*int(relativeAge(e.generation(), currentGen))
}

// Probe looks up a position in the transposition table, scanning all
// entries of its cluster for a 16-bit key match. Returns the entry and true
// if found, otherwise nil and false.
func (tt *TranspositionTable) Probe(hash uint64) (*TTEntry, bool) {
	tt.probes++

	key16 := uint16(hash >> 48)
	cluster := &tt.clusters[hash&tt.mask]
	for i := range cluster.entries {
		e := &cluster.entries[i]
		if e.key16 == key16 && key16 != 0 {
			tt.hits++
			// Refresh the generation on every touch so a hot entry survives
			// aging even without being rewritten.
			e.genBound = tt.generation | uint8(e.Flag())
			return e, true
		}
	}
	return nil, false
}

// Store saves a position in the transposition table, replacing whichever of
// the cluster's three entries either already matches the key, is empty, or
// has the lowest replacementValue.
//
// The move is only overwritten when the new one is known (board.MoveNone
// never clobbers a previously stored best move for the same key); score,
// eval and depth are only overwritten when the position is new, the new
// bound is exact, or the new search went at least 4 plies deeper than what
// is already stored — shallow re-searches of the same node otherwise leave
// the deeper result alone.
func (tt *TranspositionTable) Store(hash uint64, depth int, score int, eval int, flag TTFlag, bestMove board.Move) {
	key16 := uint16(hash >> 48)
	cluster := &tt.clusters[hash&tt.mask]

	target := &cluster.entries[0]
	for i := range cluster.entries {
		e := &cluster.entries[i]
		if e.key16 == 0 || e.key16 == key16 {
			target = e
			break
		}
		if replacementValue(e, tt.generation) < replacementValue(target, tt.generation) {
			target = e
		}
	}

	move16 := bestMove.Is16()
	if move16 != 0 || key16 != target.key16 {
		target.move16 = move16
	}

	if key16 != target.key16 || flag == TTExact || depth-int(target.Depth) >= 4 {
		target.key16 = key16
		target.Score = int16(score)
		target.Eval = int16(eval)
		target.Depth = int8(depth)
		target.genBound = tt.generation | uint8(flag)
	} else {
		target.genBound = tt.generation | uint8(target.Flag())
	}
}

// NewSearch advances the generation counter by generationDelta for a new
// search, aging out entries from prior searches for replacement purposes
// without touching their stored data.
func (tt *TranspositionTable) NewSearch() {
	tt.generation += generationDelta
}

// Clear clears the transposition table.
func (tt *TranspositionTable) Clear() {
	for i := range tt.clusters {
		tt.clusters[i] = ttCluster{}
	}
	tt.generation = generationDelta
	tt.hits = 0
	tt.probes = 0
}

// HashFull returns the permille (parts per thousand) of the table that is
// used, sampling the first 1000 clusters and counting a cluster as used when
// any of its entries was written in the current search generation.
func (tt *TranspositionTable) HashFull() int {
	used := 0
	sampleSize := 1000
	if uint64(sampleSize) > uint64(len(tt.clusters)) {
		sampleSize = len(tt.clusters)
	}

	for i := 0; i < sampleSize; i++ {
		for _, e := range tt.clusters[i].entries {
			if e.key16 != 0 && e.generation() == tt.generation {
				used++
				break
			}
		}
	}

	return (used * 1000) / sampleSize
}

// HitRate returns the cache hit rate as a percentage.
func (tt *TranspositionTable) HitRate() float64 {
	if tt.probes == 0 {
		return 0
	}
	return float64(tt.hits) / float64(tt.probes) * 100
}

// Size returns the number of clusters in the table.
func (tt *TranspositionTable) Size() uint64 {
	return uint64(len(tt.clusters))
}

// AdjustScoreFromTT adjusts a score read from the transposition table.
// Mate scores need to be adjusted based on ply distance.
func AdjustScoreFromTT(score int, ply int) int {
	if score > MateScore-MaxPly {
		return score - ply
	}
	if score < -MateScore+MaxPly {
		return score + ply
	}
	return score
}

// AdjustScoreToTT adjusts a score for storage in the transposition table.
func AdjustScoreToTT(score int, ply int) int {
	if score > MateScore-MaxPly {
		return score + ply
	}
	if score < -MateScore+MaxPly {
		return score - ply
	}
	return score
}

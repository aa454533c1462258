package engine

// Score bounds and ply limits shared across the transposition table, move
// orderer and search worker, the same role the teacher's search.go constants
// play for chess, sized down for shogi's shallower mate distances.
const (
	Infinity  = 30000
	MateScore = 29000
	MaxPly    = 128
)

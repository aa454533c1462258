package engine

import (
	"time"

	"github.com/hailam/shogi-engine/internal/board"
)

// Limits mirrors the USI "go" parameters a shogi time manager needs:
// sudden-death clocks plus an optional byoyomi (a fixed per-move allowance
// that applies once the main clock has been spent), rather than chess's
// movestogo/increment model. MoveTime, when set, is a flat per-move budget
// and overrides everything else (used for both UCI "movetime" and a
// byoyomi already converted to a deadline by the caller).
type Limits struct {
	Time      [2]time.Duration // btime, wtime (remaining time for each color)
	Inc       [2]time.Duration // binc, winc (increment per move)
	Byoyomi   time.Duration    // fixed seconds-per-move once the clock runs out
	MoveTime  time.Duration    // fixed time per move (overrides clock/byoyomi)
	Depth     int              // maximum search depth
	Nodes     uint64           // maximum nodes to search
	Infinite  bool             // search until stopped
	Ponder    bool             // ponder mode
}

// SlowMover resolves the tuning percentage the search budget is scaled by
// for a search starting at the given ply. USI exposes this as the
// Slow_Mover_10/16/20/30/40/Slow_Mover options rather than a single
// constant: a shogi game spends its clock unevenly across the opening,
// the middlegame's reading-heavy ply 20-40 stretch, and the endgame, and
// each wants its own pace.
type SlowMover func(ply int) int

// TimeManager handles time allocation for searches.
type TimeManager struct {
	optimumTime time.Duration // Target time for this move
	maximumTime time.Duration // Maximum time allowed
	startTime   time.Time     // When search started
}

// NewTimeManager creates a new time manager.
func NewTimeManager() *TimeManager {
	return &TimeManager{}
}

// Init initializes the time manager for a new search.
//
// ply is the current game ply (half-move number). slowMover, when
// non-nil, scales the sudden-death budget by the ply-bucketed percentage
// USI's Slow_Mover_* options expose; byoyomiMargin/overhead/minThink are
// the Byoyomi_Margin/Move_Overhead/Minimum_Thinking_Time USI options,
// applied the way Apery's timeman does: byoyomi is clamped down by a
// safety margin but floored at the minimum thinking time once the game
// has passed the opening (spec's ply-20 threshold); the sudden-death budget
// is trimmed by the move overhead and then floored at the minimum thinking
// time at every ply. A fixed MoveTime and the infinite/depth-only modes are
// used as given, with no overhead trim or floor.
func (tm *TimeManager) Init(limits Limits, us board.Color, ply int, slowMover SlowMover, byoyomiMargin, overhead, minThink time.Duration) {
	tm.startTime = time.Now()

	// Fixed move time mode (UCI "movetime", or a byoyomi already resolved
	// to a deadline by the caller).
	if limits.MoveTime > 0 {
		tm.optimumTime = limits.MoveTime
		tm.maximumTime = limits.MoveTime
		return
	}

	// Byoyomi: a flat per-move allowance once the main clock is spent.
	// Trim the safety margin, then floor at Minimum_Thinking_Time past
	// ply 20 — shogi's byoyomi stage is the reading-heavy middlegame and
	// beyond, where a too-thin floor loses on the clock rather than the
	// board.
	if limits.Byoyomi > 0 {
		t := limits.Byoyomi - byoyomiMargin
		if t < 0 {
			t = 0
		}
		if ply > 20 && t < minThink {
			t = minThink
		}
		tm.optimumTime = t
		tm.maximumTime = t
		return
	}

	// Infinite or depth-limited mode.
	if limits.Infinite || limits.Time[us] == 0 {
		tm.optimumTime = time.Hour
		tm.maximumTime = time.Hour
		return
	}

	// Calculate time allocation based on remaining time and increment.
	timeLeft := limits.Time[us]
	inc := limits.Inc[us]

	// Sudden death: estimate moves remaining based on game phase. Early
	// game: more moves expected, late game: fewer.
	mtg := 50 - ply/4
	if mtg < 10 {
		mtg = 10
	}
	if mtg > 50 {
		mtg = 50
	}

	// Base time per move, plus most of the increment.
	baseTime := timeLeft/time.Duration(mtg) + inc*9/10

	// Slight reduction for very early moves (give some buffer).
	if ply < 8 {
		baseTime = baseTime * 85 / 100
	}

	// Scale by the ply-bucketed Slow_Mover tuning.
	pct := 100
	if slowMover != nil {
		pct = slowMover(ply)
	}
	optimum := time.Duration(float64(baseTime) * float64(pct) / 100.0)
	optimum -= overhead
	if optimum < 0 {
		optimum = 0
	}

	// Maximum time: 5x optimum or 80% of remaining, whichever is smaller.
	maxFromOptimum := optimum * 5
	maxFromRemaining := timeLeft * 8 / 10
	maximum := maxFromOptimum
	if maxFromRemaining < maximum {
		maximum = maxFromRemaining
	}

	// Safety margin: never use more than 95% of remaining time.
	safetyMargin := timeLeft * 95 / 100
	if maximum > safetyMargin {
		maximum = safetyMargin
	}

	// Minimum times.
	if optimum < minThink {
		optimum = minThink
	}
	if maximum < 50*time.Millisecond {
		maximum = 50 * time.Millisecond
	}

	tm.optimumTime = optimum
	tm.maximumTime = maximum
}

// Elapsed returns the time elapsed since search started.
func (tm *TimeManager) Elapsed() time.Duration {
	return time.Since(tm.startTime)
}

// OptimumTime returns the target time for this move.
func (tm *TimeManager) OptimumTime() time.Duration {
	return tm.optimumTime
}

// MaximumTime returns the maximum time allowed.
func (tm *TimeManager) MaximumTime() time.Duration {
	return tm.maximumTime
}

// ShouldStop returns true if we should stop searching.
func (tm *TimeManager) ShouldStop() bool {
	return tm.Elapsed() >= tm.maximumTime
}

// PastOptimum returns true if we've exceeded the optimum time.
func (tm *TimeManager) PastOptimum() bool {
	return tm.Elapsed() >= tm.optimumTime
}

// AdjustForStability adjusts time allocation based on best move stability.
// If the best move hasn't changed for several depths, we can stop earlier.
// stability: number of consecutive depths with same best move
func (tm *TimeManager) AdjustForStability(stability int) {
	if stability >= 6 {
		// Very stable: use only 40% of optimum
		tm.optimumTime = tm.optimumTime * 40 / 100
	} else if stability >= 4 {
		// Stable: use only 60% of optimum
		tm.optimumTime = tm.optimumTime * 60 / 100
	} else if stability >= 2 {
		// Somewhat stable: use 80% of optimum
		tm.optimumTime = tm.optimumTime * 80 / 100
	}
}

// AdjustForInstability increases time when best move keeps changing.
// changes: number of best move changes in recent depths
func (tm *TimeManager) AdjustForInstability(changes int) {
	if changes >= 4 {
		// Very unstable: use 200% of optimum (up to maximum)
		tm.optimumTime = tm.optimumTime * 200 / 100
		if tm.optimumTime > tm.maximumTime {
			tm.optimumTime = tm.maximumTime
		}
	} else if changes >= 2 {
		// Unstable: use 150% of optimum
		tm.optimumTime = tm.optimumTime * 150 / 100
		if tm.optimumTime > tm.maximumTime {
			tm.optimumTime = tm.maximumTime
		}
	}
}

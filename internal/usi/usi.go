// Package usi implements the USI (Universal Shogi Interface) text protocol:
// a line-oriented stdin/stdout loop that drives an *engine.Engine. It plays
// the same "parse a line, dispatch to a handler, validate the engine's
// answer before printing it" role the teacher's internal/uci/uci.go played
// for chess's UCI protocol, rewritten against USI's command set and move
// notation (spec.md §6.1).
package usi

import (
	"bufio"
	"fmt"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hailam/shogi-engine/internal/board"
	"github.com/hailam/shogi-engine/internal/engine"
	"github.com/hailam/shogi-engine/internal/storage"
)

// USI drives the protocol loop against one engine.Engine instance.
type USI struct {
	engine   *engine.Engine
	position *board.Position
	opts     *Options

	ready bool // set once isready has loaded eval data, so it only runs once

	searching     bool
	searchDone    chan struct{}
	stopRequested atomic.Bool
	ponder        bool

	profileFile *os.File

	out *bufio.Writer
}

// New creates a USI protocol handler around eng.
func New(eng *engine.Engine) *USI {
	u := &USI{
		engine:   eng,
		position: board.NewPosition(),
		opts:     NewOptions(),
		out:      bufio.NewWriter(os.Stdout),
	}
	return u
}

// Run reads commands from stdin until "quit" or EOF.
func (u *USI) Run() {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "usi":
			u.handleUSI()
		case "isready":
			u.handleIsReady()
		case "usinewgame":
			// no-op: isready already cleared the TT and loaded data.
		case "setoption":
			u.handleSetOption(args)
		case "position":
			u.handlePosition(args)
		case "go":
			u.handleGo(args)
		case "stop":
			u.handleStop()
		case "ponderhit":
			u.handlePonderHit()
		case "quit", "gameover":
			u.handleQuit()
			return
		case "d":
			fmt.Fprintln(os.Stderr, u.position.SFEN())
		case "perft":
			u.handlePerft(args)
		}
	}
}

func (u *USI) println(s string) {
	fmt.Fprintln(u.out, s)
	u.out.Flush()
}

// handleUSI replies to "usi" with identification and the option table.
func (u *USI) handleUSI() {
	u.println("id name Shogi Engine")
	u.println("id author Shogi Engine Team")
	for _, line := range u.opts.Lines() {
		u.println(line)
	}
	u.println("usiok")
}

// handleIsReady lazily loads the evaluation file and opening book on first
// use, clears the transposition table, and replies "readyok" (spec.md §6.1).
func (u *USI) handleIsReady() {
	if !u.ready {
		u.applyThreadsOption()
		u.applyHashOption()
		u.loadEval()
		u.loadBook()
		u.ready = true
	}
	u.engine.Clear()
	u.println("readyok")
}

func (u *USI) applyThreadsOption() {
	if o, ok := u.opts.Get("Threads"); ok {
		u.engine.SetThreads(o.Int(1))
	}
}

func (u *USI) applyHashOption() {
	if o, ok := u.opts.Get("USI_Hash"); ok {
		u.engine.Resize(o.Int(64))
	}
}

func (u *USI) loadEval() {
	dir := ""
	if o, ok := u.opts.Get("Eval_Dir"); ok {
		dir = o.Value
	}
	if dir == "" {
		var err error
		dir, err = storage.GetEvalDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "info string no Eval_Dir and no default data dir: %v\n", err)
			os.Exit(1)
		}
	}
	if err := u.engine.LoadEvalFile(dir); err != nil {
		fmt.Fprintf(os.Stderr, "info string cannot load eval files from %s: %v\n", dir, err)
		os.Exit(1)
	}
}

func (u *USI) loadBook() {
	o, ok := u.opts.Get("OwnBook")
	if !ok || !o.Bool() {
		return
	}
	path := ""
	if bf, ok := u.opts.Get("Book_File"); ok {
		path = bf.Value
	}
	if path == "" {
		var err error
		path, err = storage.GetDatabaseDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "info string book disabled: %v\n", err)
			return
		}
	}
	if err := u.engine.LoadBook(path); err != nil {
		fmt.Fprintf(os.Stderr, "info string book not found at %s, disabling: %v\n", path, err)
		return
	}
	u.applyBookPolicy()
}

func (u *USI) applyBookPolicy() {
	b := u.engine.Book()
	if b == nil {
		return
	}
	if o, ok := u.opts.Get("Best_Book_Move"); ok {
		b.BestMove = o.Bool()
	}
	if o, ok := u.opts.Get("Min_Book_Ply"); ok {
		b.MinPly = o.Int(0)
	}
	if o, ok := u.opts.Get("Max_Book_Ply"); ok {
		b.MaxPly = o.Int(0)
	}
	if o, ok := u.opts.Get("Min_Book_Score"); ok {
		b.MinScore = o.Int(0)
	}
}

// handleSetOption processes "setoption name N [...] value V [...]". Per
// spec.md §7, a bad option name or value is logged and ignored, never fatal.
func (u *USI) handleSetOption(args []string) {
	name, value, ok := parseSetOption(args)
	if !ok {
		fmt.Fprintf(os.Stderr, "info string malformed setoption: %s\n", strings.Join(args, " "))
		return
	}
	if name == "cpuprofile" {
		u.startProfile(value)
		return
	}
	opt, ok := u.opts.Get(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "info string unknown option %q\n", name)
		return
	}
	if opt.Type == Button {
		u.handleButton(name)
		return
	}
	if err := opt.Set(value); err != nil {
		fmt.Fprintf(os.Stderr, "info string %v\n", err)
		return
	}
	switch name {
	case "Threads":
		u.applyThreadsOption()
	case "USI_Hash":
		u.applyHashOption()
	case "OwnBook":
		if opt.Bool() && !u.engine.HasBook() {
			u.loadBook()
		}
	case "Book_File":
		u.loadBook()
	case "Best_Book_Move", "Min_Book_Ply", "Max_Book_Ply", "Min_Book_Score":
		u.applyBookPolicy()
	case "Eval_Dir":
		u.loadEval()
	}
}

func (u *USI) handleButton(name string) {
	switch name {
	case "Clear_Hash":
		u.engine.Clear()
	}
}

// parseSetOption splits "name N... value V..." honoring the USI rule that
// both the name and the value may contain internal spaces.
func parseSetOption(args []string) (name, value string, ok bool) {
	var nameParts, valueParts []string
	reading := 0 // 0=none, 1=name, 2=value
	for _, a := range args {
		switch a {
		case "name":
			reading = 1
		case "value":
			reading = 2
		default:
			switch reading {
			case 1:
				nameParts = append(nameParts, a)
			case 2:
				valueParts = append(valueParts, a)
			}
		}
	}
	if len(nameParts) == 0 {
		return "", "", false
	}
	return strings.Join(nameParts, " "), strings.Join(valueParts, " "), true
}

// handlePosition rebuilds u.position from "startpos" or "sfen <SFEN>",
// optionally replaying "moves <USI-move>...". An illegal move in the moves
// list stops replay at the last valid position (spec.md §7).
func (u *USI) handlePosition(args []string) {
	if len(args) == 0 {
		return
	}

	var movesIdx int
	var pos *board.Position

	switch args[0] {
	case "startpos":
		pos = board.NewPosition()
		movesIdx = 1
	case "sfen":
		pos = &board.Position{}
		end := len(args)
		for i := 1; i < len(args); i++ {
			if args[i] == "moves" {
				end = i
				break
			}
		}
		if end <= 1 {
			fmt.Fprintln(os.Stderr, "info string missing sfen body")
			return
		}
		sfen := strings.Join(args[1:end], " ")
		if err := pos.SetSFEN(sfen); err != nil {
			fmt.Fprintf(os.Stderr, "info string bad sfen: %v\n", err)
			return
		}
		movesIdx = end
	default:
		fmt.Fprintf(os.Stderr, "info string unknown position kind %q\n", args[0])
		return
	}

	for i := movesIdx; i < len(args); i++ {
		if args[i] == "moves" {
			continue
		}
		m, err := board.ParseUSIMove(pos, args[i])
		if err != nil {
			fmt.Fprintf(os.Stderr, "info string illegal move %q, stopping replay: %v\n", args[i], err)
			break
		}
		pos.DoMove(m)
	}

	u.position = pos
}

// goOptions holds the parsed fields of a "go" command.
type goOptions struct {
	ponder       bool
	btime, wtime time.Duration
	binc, winc   time.Duration
	byoyomi      time.Duration
	movetime     time.Duration
	infinite     bool
	mate         int
	depth        int
	nodes        uint64
	searchMoves  []string
}

func parseGo(args []string) goOptions {
	var g goOptions
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "ponder":
			g.ponder = true
		case "btime":
			i++
			g.btime = msArg(args, i)
		case "wtime":
			i++
			g.wtime = msArg(args, i)
		case "binc":
			i++
			g.binc = msArg(args, i)
		case "winc":
			i++
			g.winc = msArg(args, i)
		case "byoyomi":
			i++
			g.byoyomi = msArg(args, i)
		case "movetime":
			i++
			g.movetime = msArg(args, i)
		case "infinite":
			g.infinite = true
		case "mate":
			i++
			if i < len(args) {
				g.mate, _ = strconv.Atoi(args[i])
			}
		case "depth":
			i++
			if i < len(args) {
				g.depth, _ = strconv.Atoi(args[i])
			}
		case "nodes":
			i++
			if i < len(args) {
				n, _ := strconv.ParseUint(args[i], 10, 64)
				g.nodes = n
			}
		case "searchmoves":
			for i+1 < len(args) && !isGoKeyword(args[i+1]) {
				i++
				g.searchMoves = append(g.searchMoves, args[i])
			}
		}
	}
	return g
}

func isGoKeyword(s string) bool {
	switch s {
	case "ponder", "btime", "wtime", "binc", "winc", "byoyomi", "movetime",
		"infinite", "mate", "depth", "nodes", "searchmoves":
		return true
	}
	return false
}

func msArg(args []string, i int) time.Duration {
	if i >= len(args) {
		return 0
	}
	ms, _ := strconv.Atoi(args[i])
	return time.Duration(ms) * time.Millisecond
}

// handleGo starts a search in the background, per spec.md §6.1's "go" row.
func (u *USI) handleGo(args []string) {
	g := parseGo(args)
	u.ponder = g.ponder

	if o, ok := u.opts.Get("OwnBook"); ok && o.Bool() && u.engine.HasBook() && !g.ponder {
		if m, ok := u.engine.Book().Probe(u.position.Key()&^1, u.position.Ply()); ok {
			u.println("bestmove " + m.String())
			return
		}
	}

	if g.mate > 0 {
		u.handleGoMate(g)
		return
	}

	limits := u.computeLimits(g)
	u.engine.OnInfo = func(info engine.SearchInfo) { u.sendInfo(info) }

	u.searching = true
	u.stopRequested.Store(false)
	u.searchDone = make(chan struct{})
	pos := u.position
	rootSFEN := pos.SFEN()

	go func() {
		defer close(u.searchDone)

		move := u.engine.SearchWithLimits(pos, limits)

		validation := &board.Position{}
		if err := validation.SetSFEN(rootSFEN); err != nil {
			u.println("bestmove resign")
			return
		}

		u.searching = false
		if move == board.MoveNone {
			var legal board.MoveList
			board.GenerateLegal(validation, &legal)
			if legal.Len() == 0 {
				u.println("bestmove resign")
			} else {
				u.println("bestmove " + legal.At(0).String())
			}
			return
		}
		u.println("bestmove " + move.String())
	}()
}

// handleGoMate runs a bounded mate search and reports a "checkmate" line
// instead of "bestmove", per USI's mate-search convention.
func (u *USI) handleGoMate(g goOptions) {
	depth := g.mate
	if depth <= 0 || depth > engine.MaxPly {
		depth = engine.MaxPly
	}
	var last engine.SearchInfo
	u.engine.OnInfo = func(info engine.SearchInfo) { last = info }
	u.engine.SearchWithLimits(u.position, engine.SearchLimits{Depth: depth, MoveTime: 10 * time.Second})

	if last.Score > engine.MateScore-engine.MaxPly || last.Score < -engine.MateScore+engine.MaxPly {
		if last.Score > 0 {
			words := make([]string, len(last.PV))
			for i, m := range last.PV {
				words[i] = m.String()
			}
			u.println("checkmate " + strings.Join(words, " "))
			return
		}
	}
	u.println("checkmate nomate")
}

// computeLimits converts a parsed "go" into engine.SearchLimits, applying
// byoyomi/time-control budgeting per spec.md §5's TimeManager description.
func (u *USI) computeLimits(g goOptions) engine.SearchLimits {
	limits := engine.SearchLimits{Depth: g.depth, Nodes: g.nodes}

	for _, s := range g.searchMoves {
		if m, err := board.ParseUSIMove(u.position, s); err == nil {
			limits.SearchMoves = append(limits.SearchMoves, m)
		}
	}

	if g.infinite || g.ponder {
		limits.Infinite = true
		return limits
	}

	if g.movetime > 0 {
		margin := time.Duration(u.optInt("Time_Margin")) * time.Millisecond
		limits.MoveTime = clampPositive(g.movetime - margin)
		return limits
	}

	us := u.position.Turn()
	ul := engine.Limits{
		// board.Black == 0, board.White == 1, matching go's btime/wtime order.
		Time:    [2]time.Duration{g.btime, g.wtime},
		Inc:     [2]time.Duration{g.binc, g.winc},
		Byoyomi: g.byoyomi,
	}
	byoyomiMargin := time.Duration(u.optInt("Byoyomi_Margin")) * time.Millisecond
	overhead := time.Duration(u.optInt("Move_Overhead")) * time.Millisecond
	minThink := time.Duration(u.optInt("Minimum_Thinking_Time")) * time.Millisecond
	tm := engine.NewTimeManager()
	tm.Init(ul, us, u.position.Ply(), u.slowMoverForPly, byoyomiMargin, overhead, minThink)
	limits.MoveTime = tm.OptimumTime()
	return limits
}

func (u *USI) slowMoverForPly(ply int) int {
	switch {
	case ply <= 10:
		return u.optInt("Slow_Mover_10")
	case ply <= 16:
		return u.optInt("Slow_Mover_16")
	case ply <= 20:
		return u.optInt("Slow_Mover_20")
	case ply <= 30:
		return u.optInt("Slow_Mover_30")
	case ply <= 40:
		return u.optInt("Slow_Mover_40")
	default:
		return u.optInt("Slow_Mover")
	}
}

func (u *USI) optInt(name string) int {
	if o, ok := u.opts.Get(name); ok {
		return o.Int(100)
	}
	return 100
}

func clampPositive(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// sendInfo renders one iterative-deepening iteration as a USI "info" line.
func (u *USI) sendInfo(info engine.SearchInfo) {
	parts := []string{fmt.Sprintf("depth %d", info.Depth)}

	switch {
	case info.Score > engine.MateScore-engine.MaxPly:
		parts = append(parts, fmt.Sprintf("score mate %d", engine.MateScore-info.Score))
	case info.Score < -engine.MateScore+engine.MaxPly:
		parts = append(parts, fmt.Sprintf("score mate %d", -(engine.MateScore+info.Score)))
	default:
		parts = append(parts, fmt.Sprintf("score cp %d", info.Score))
	}

	parts = append(parts, fmt.Sprintf("nodes %d", info.Nodes))
	parts = append(parts, fmt.Sprintf("time %d", info.Time.Milliseconds()))
	if info.Time > 0 {
		nps := uint64(float64(info.Nodes) / info.Time.Seconds())
		parts = append(parts, fmt.Sprintf("nps %d", nps))
	}
	if info.HashFull > 0 {
		parts = append(parts, fmt.Sprintf("hashfull %d", info.HashFull))
	}
	if len(info.PV) > 0 {
		words := make([]string, len(info.PV))
		for i, m := range info.PV {
			words[i] = m.String()
		}
		parts = append(parts, "pv "+strings.Join(words, " "))
	}

	u.println("info " + strings.Join(parts, " "))
}

func (u *USI) handleStop() {
	if u.searching {
		u.stopRequested.Store(true)
		u.engine.Stop()
		<-u.searchDone
	}
}

// handlePonderHit clears the ponder flag. The search started by "go ponder"
// keeps the infinite limits it was started with: it does not switch to
// clock-based timing and runs until "stop" arrives.
func (u *USI) handlePonderHit() {
	u.ponder = false
}

func (u *USI) handleQuit() {
	u.handleStop()
	if u.profileFile != nil {
		pprof.StopCPUProfile()
		u.profileFile.Close()
	}
	u.out.Flush()
}

func (u *USI) handlePerft(args []string) {
	depth := 4
	if len(args) > 0 {
		if d, err := strconv.Atoi(args[0]); err == nil {
			depth = d
		}
	}
	start := time.Now()
	nodes := u.engine.Perft(u.position, depth)
	elapsed := time.Since(start)
	fmt.Fprintf(os.Stderr, "perft(%d) = %d nodes in %v\n", depth, nodes, elapsed)
}

// startProfile begins CPU profiling to path, used for diagnosing slow
// searches; stopped on the next "quit"/"gameover".
func (u *USI) startProfile(path string) {
	if u.profileFile != nil {
		pprof.StopCPUProfile()
		u.profileFile.Close()
	}
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "info string cpuprofile: %v\n", err)
		return
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		fmt.Fprintf(os.Stderr, "info string cpuprofile: %v\n", err)
		f.Close()
		return
	}
	u.profileFile = f
}

package usi

import (
	"fmt"
	"sort"
	"strconv"
)

// OptionType tags the four USI option kinds (spec.md §6.1/§6.3).
type OptionType int

const (
	Check OptionType = iota
	Spin
	String
	Button
)

func (t OptionType) String() string {
	switch t {
	case Check:
		return "check"
	case Spin:
		return "spin"
	case String:
		return "string"
	case Button:
		return "button"
	}
	return "string"
}

// Option is one row of the USI option table: a name, its type, current and
// default value, and (for spin options) a min/max range. Storing every
// option in one data table, rather than hand-emitting "option name ... type
// ..." lines one by one the way the teacher's handleUCI does, lets the `usi`
// command's listing and `setoption`'s parsing share a single source of
// truth.
type Option struct {
	Name    string
	Type    OptionType
	Default string
	Value   string
	Min     int
	Max     int
}

// Line renders the option the way it's advertised in response to "usi".
func (o *Option) Line() string {
	switch o.Type {
	case Spin:
		return fmt.Sprintf("option name %s type spin default %s min %d max %d", o.Name, o.Default, o.Min, o.Max)
	case Check:
		return fmt.Sprintf("option name %s type check default %s", o.Name, o.Default)
	case Button:
		return fmt.Sprintf("option name %s type button", o.Name)
	default:
		return fmt.Sprintf("option name %s type string default %s", o.Name, o.Default)
	}
}

// Int returns the option's current value as an integer, or def on parse
// failure (should not happen since Set validates spin ranges).
func (o *Option) Int(def int) int {
	n, err := strconv.Atoi(o.Value)
	if err != nil {
		return def
	}
	return n
}

// Bool returns the option's current value as a boolean.
func (o *Option) Bool() bool { return o.Value == "true" }

// Set validates and stores value, clamping spin values into [Min,Max].
func (o *Option) Set(value string) error {
	switch o.Type {
	case Spin:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("usi: option %s wants an integer, got %q", o.Name, value)
		}
		if n < o.Min {
			n = o.Min
		}
		if n > o.Max {
			n = o.Max
		}
		o.Value = strconv.Itoa(n)
	case Check:
		if value != "true" && value != "false" {
			return fmt.Errorf("usi: option %s wants true/false, got %q", o.Name, value)
		}
		o.Value = value
	case Button:
		// no value to store; the handler reacts to the name alone
	default:
		o.Value = value
	}
	return nil
}

// Options is the engine's USI option table, keyed by name (spec.md §6.3).
type Options struct {
	table map[string]*Option
}

func spin(name string, def, min, max int) *Option {
	d := strconv.Itoa(def)
	return &Option{Name: name, Type: Spin, Default: d, Value: d, Min: min, Max: max}
}

func check(name string, def bool) *Option {
	d := "false"
	if def {
		d = "true"
	}
	return &Option{Name: name, Type: Check, Default: d, Value: d}
}

func str(name, def string) *Option {
	return &Option{Name: name, Type: String, Default: def, Value: def}
}

func button(name string) *Option {
	return &Option{Name: name, Type: Button}
}

// NewOptions builds the option table with the defaults from spec.md §6.3.
func NewOptions() *Options {
	opts := []*Option{
		spin("USI_Hash", 64, 1, 65536),
		button("Clear_Hash"),
		spin("Threads", 1, 1, 512),
		spin("MultiPV", 1, 1, 32),
		check("USI_Ponder", false),
		check("OwnBook", true),
		str("Book_File", ""),
		spin("Min_Book_Ply", 0, 0, 400),
		spin("Max_Book_Ply", 400, 0, 400),
		spin("Min_Book_Score", -1000, -30000, 30000),
		check("Best_Book_Move", true),
		str("Eval_Dir", ""),
		spin("Byoyomi_Margin", 500, 0, 60000),
		spin("Time_Margin", 500, 0, 60000),
		spin("Slow_Mover_10", 130, 10, 1000),
		spin("Slow_Mover_16", 115, 10, 1000),
		spin("Slow_Mover_20", 100, 10, 1000),
		spin("Slow_Mover_30", 100, 10, 1000),
		spin("Slow_Mover_40", 100, 10, 1000),
		spin("Slow_Mover", 100, 10, 1000),
		spin("Draw_Ply", 256, 16, 1024),
		spin("Move_Overhead", 30, 0, 5000),
		spin("Minimum_Thinking_Time", 20, 0, 5000),
		spin("Max_Random_Score_Diff", 0, 0, 3000),
		spin("Max_Random_Score_Diff_Ply", 0, 0, 400),
	}
	table := make(map[string]*Option, len(opts))
	for _, o := range opts {
		table[o.Name] = o
	}
	return &Options{table: table}
}

// Get looks up an option by name, case-sensitively (USI names are fixed
// tokens, unlike setoption's otherwise free-form values).
func (o *Options) Get(name string) (*Option, bool) {
	opt, ok := o.table[name]
	return opt, ok
}

// Lines renders every option's advertisement line in a stable order.
func (o *Options) Lines() []string {
	names := make([]string, 0, len(o.table))
	for name := range o.table {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, len(names))
	for i, name := range names {
		lines[i] = o.table[name].Line()
	}
	return lines
}

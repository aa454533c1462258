package usi

import "testing"

func TestNewOptionsHasSpecDefaults(t *testing.T) {
	opts := NewOptions()

	o, ok := opts.Get("USI_Hash")
	if !ok {
		t.Fatal("expected USI_Hash option to exist")
	}
	if o.Int(0) != 64 {
		t.Errorf("USI_Hash default = %d, want 64", o.Int(0))
	}

	o, ok = opts.Get("OwnBook")
	if !ok || !o.Bool() {
		t.Error("expected OwnBook to default true")
	}
}

func TestOptionSetClampsSpinRange(t *testing.T) {
	o := spin("Threads", 1, 1, 512)
	if err := o.Set("9999"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if o.Int(0) != 512 {
		t.Errorf("Threads clamped = %d, want 512", o.Int(0))
	}

	if err := o.Set("0"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if o.Int(0) != 1 {
		t.Errorf("Threads clamped = %d, want 1", o.Int(0))
	}
}

func TestOptionSetRejectsNonInteger(t *testing.T) {
	o := spin("Threads", 1, 1, 512)
	if err := o.Set("not-a-number"); err == nil {
		t.Error("expected an error setting a spin option to a non-integer")
	}
}

func TestCheckOptionRejectsBadValue(t *testing.T) {
	o := check("USI_Ponder", false)
	if err := o.Set("yes"); err == nil {
		t.Error("expected an error setting a check option to a non-bool token")
	}
}

func TestOptionsLinesAreSorted(t *testing.T) {
	opts := NewOptions()
	lines := opts.Lines()
	for i := 1; i < len(lines); i++ {
		if lines[i] < lines[i-1] {
			t.Fatalf("Lines() not sorted: %q before %q", lines[i-1], lines[i])
		}
	}
}

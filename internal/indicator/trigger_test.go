package indicator

import (
	"errors"
	"math/rand"
	"testing"

	"cryptostrat/internal/apperr"
)

func f(v float64) *float64 { return &v }

func mustFind(t *testing.T, name string) Definition {
	t.Helper()
	def, err := Builtin().Find(name)
	if err != nil {
		t.Fatalf("Find(%q): %v", name, err)
	}
	return def
}

func TestDefaultFor_IsDetachedCopy(t *testing.T) {
	def := mustFind(t, "RSI")
	c := DefaultFor(def)
	*c.CompareValue = 99

	again := DefaultFor(def)
	if *again.CompareValue != 70 {
		t.Errorf("default trigger was mutated through a copy: %v", *again.CompareValue)
	}
}

func TestSetType_GenericIndicator(t *testing.T) {
	def := mustFind(t, "SMA")
	c, err := SetType(def, DefaultFor(def), Between)
	if err != nil {
		t.Fatal(err)
	}
	if c.Type != Between || c.CompareValue == nil || *c.CompareValue != c.Value {
		t.Errorf("switching to BETWEEN should seed CompareValue, got %+v", c)
	}

	c, err = SetType(def, c, LessThan)
	if err != nil {
		t.Fatal(err)
	}
	if c.CompareValue != nil {
		t.Errorf("switching away from BETWEEN should clear CompareValue")
	}
}

func TestSetType_EditableSignalRejected(t *testing.T) {
	for _, name := range []string{"RSI", "CCI", "Stochastic"} {
		def := mustFind(t, name)
		orig := DefaultFor(def)
		c, err := SetType(def, orig, GreaterThan)
		if !errors.Is(err, ErrFixedTriggerType) || !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("%s: expected ErrFixedTriggerType, got %v", name, err)
		}
		if c.Type != orig.Type {
			t.Errorf("%s: type changed on rejected edit", name)
		}
	}
}

func TestSetType_Unknown(t *testing.T) {
	def := mustFind(t, "EMA")
	if _, err := SetType(def, DefaultFor(def), "SIDEWAYS"); !errors.Is(err, ErrInvalidTriggerType) {
		t.Errorf("expected ErrInvalidTriggerType, got %v", err)
	}
}

func TestSetThresholds_RSIExample(t *testing.T) {
	def := mustFind(t, "RSI")
	c := SetThresholds(def, DefaultFor(def), f(35), f(65))
	if c.Value != 35 || *c.CompareValue != 65 {
		t.Errorf("got %v – %v, want 35 – 65", c.Value, *c.CompareValue)
	}
	if c.Type != Between {
		t.Errorf("type changed to %s", c.Type)
	}
}

func TestSetThresholds_ClampsToRange(t *testing.T) {
	rsi := mustFind(t, "RSI")
	c := SetThresholds(rsi, DefaultFor(rsi), f(-20), f(140))
	if c.Value != 0 || *c.CompareValue != 100 {
		t.Errorf("RSI: got %v – %v, want 0 – 100", c.Value, *c.CompareValue)
	}

	// lower cannot cross the split, so it stops at 50
	c = SetThresholds(rsi, DefaultFor(rsi), f(80), nil)
	if c.Value != 50 || *c.CompareValue != 70 {
		t.Errorf("RSI: got %v – %v, want 50 – 70", c.Value, *c.CompareValue)
	}

	cci := mustFind(t, "CCI")
	c = SetThresholds(cci, DefaultFor(cci), f(-500), f(500))
	if c.Value != -200 || *c.CompareValue != 200 {
		t.Errorf("CCI: got %v – %v, want -200 – 200", c.Value, *c.CompareValue)
	}
	c = SetThresholds(cci, DefaultFor(cci), f(50), f(-50))
	if !(c.Value < *c.CompareValue) {
		t.Errorf("CCI: ordering violated: %v – %v", c.Value, *c.CompareValue)
	}
}

func TestSetThresholds_ClampsOffendingBoundAtSplit(t *testing.T) {
	def := mustFind(t, "Stochastic")

	// both supplied at the split: lower is pushed down
	c := SetThresholds(def, DefaultFor(def), f(50), f(50))
	if c.Value != 49 || *c.CompareValue != 50 {
		t.Errorf("got %v – %v, want 49 – 50", c.Value, *c.CompareValue)
	}

	// only upper moved onto a lower already at the split: upper is pushed up
	start := SetThresholds(def, DefaultFor(def), f(50), f(60))
	c = SetThresholds(def, start, nil, f(10))
	if c.Value != 50 || *c.CompareValue != 51 {
		t.Errorf("got %v – %v, want 50 – 51", c.Value, *c.CompareValue)
	}

	// only lower moved onto an upper at the split: lower is pushed down
	start = SetThresholds(def, DefaultFor(def), f(20), f(50))
	c = SetThresholds(def, start, f(90), nil)
	if c.Value != 49 || *c.CompareValue != 50 {
		t.Errorf("got %v – %v, want 49 – 50", c.Value, *c.CompareValue)
	}
}

func TestSetThresholds_OrderingHoldsForRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, name := range []string{"RSI", "CCI", "Stochastic"} {
		def := mustFind(t, name)
		lo, _, hi, _ := thresholdRange(def.Kind)
		c := DefaultFor(def)
		for i := 0; i < 2000; i++ {
			var lower, upper *float64
			switch rng.Intn(3) {
			case 0:
				lower = f(lo - 50 + rng.Float64()*(hi-lo+100))
			case 1:
				upper = f(lo - 50 + rng.Float64()*(hi-lo+100))
			default:
				lower = f(lo - 50 + rng.Float64()*(hi-lo+100))
				upper = f(lo - 50 + rng.Float64()*(hi-lo+100))
			}
			c = SetThresholds(def, c, lower, upper)
			if c.CompareValue == nil || !(c.Value < *c.CompareValue) {
				t.Fatalf("%s step %d: ordering violated: %+v", name, i, c)
			}
			if c.Value < lo || *c.CompareValue > hi {
				t.Fatalf("%s step %d: out of range: %v – %v", name, i, c.Value, *c.CompareValue)
			}
		}
	}
}

func TestSetThresholds_GenericIndicator(t *testing.T) {
	def := mustFind(t, "ADX")
	c := SetThresholds(def, DefaultFor(def), f(30), f(99))
	if c.Value != 30 || c.CompareValue != nil {
		t.Errorf("non-BETWEEN trigger should ignore upper, got %+v", c)
	}

	c, _ = SetType(def, c, Between)
	c = SetThresholds(def, c, nil, f(10))
	if *c.CompareValue != 30 {
		t.Errorf("BETWEEN upper below value should be raised to value, got %v", *c.CompareValue)
	}
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		c    Condition
		want string
	}{
		{Condition{Type: CrossesAbove, Value: 0}, "↗ 0"},
		{Condition{Type: CrossesBelow, Value: 1.5}, "↘ 1.5"},
		{Condition{Type: GreaterThan, Value: 25}, "> 25"},
		{Condition{Type: LessThan, Value: -3}, "< -3"},
		{Condition{Type: Equals, Value: 50}, "= 50"},
		{Condition{Type: Between, Value: 30, CompareValue: f(70)}, "30 – 70"},
	}
	for _, c := range cases {
		if got := Describe(c.c); got != c.want {
			t.Errorf("Describe(%+v) = %q, want %q", c.c, got, c.want)
		}
	}
}

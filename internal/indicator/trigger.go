package indicator

import (
	"fmt"
	"math"
	"strconv"

	"cryptostrat/internal/apperr"
)

// TriggerType is the comparison a trigger condition applies.
type TriggerType string

const (
	CrossesAbove TriggerType = "CROSSES_ABOVE"
	CrossesBelow TriggerType = "CROSSES_BELOW"
	GreaterThan  TriggerType = "GREATER_THAN"
	LessThan     TriggerType = "LESS_THAN"
	Equals       TriggerType = "EQUALS"
	Between      TriggerType = "BETWEEN"
)

// TriggerTypes lists every comparison in display order.
var TriggerTypes = []TriggerType{CrossesAbove, CrossesBelow, GreaterThan, LessThan, Equals, Between}

var (
	ErrFixedTriggerType   = fmt.Errorf("%w: trigger type is fixed for this indicator", apperr.ErrValidation)
	ErrInvalidTriggerType = fmt.Errorf("%w: unknown trigger type", apperr.ErrValidation)
)

func (t TriggerType) Valid() bool {
	switch t {
	case CrossesAbove, CrossesBelow, GreaterThan, LessThan, Equals, Between:
		return true
	}
	return false
}

// Symbol is the short marker shown before the threshold.
func (t TriggerType) Symbol() string {
	switch t {
	case CrossesAbove:
		return "↗"
	case CrossesBelow:
		return "↘"
	case GreaterThan:
		return ">"
	case LessThan:
		return "<"
	case Equals:
		return "="
	case Between:
		return "–"
	}
	return "?"
}

// Condition is the signal rule of an indicator instance. CompareValue is
// only set for BETWEEN, where it is the upper bound.
type Condition struct {
	Type         TriggerType `json:"type"`
	Value        float64     `json:"value"`
	CompareValue *float64    `json:"compare_value,omitempty"`
}

// Clone returns a copy that shares no pointers with c.
func (c Condition) Clone() Condition {
	if c.CompareValue != nil {
		v := *c.CompareValue
		c.CompareValue = &v
	}
	return c
}

// Upper returns CompareValue, or Value when it is unset.
func (c Condition) Upper() float64 {
	if c.CompareValue != nil {
		return *c.CompareValue
	}
	return c.Value
}

// DefaultFor returns a private copy of the definition's default trigger.
func DefaultFor(def Definition) Condition {
	return def.Trigger.Clone()
}

// SetType changes the comparison of a generic indicator's trigger.
// Editable-signal indicators keep their type; for them SetType fails with
// ErrFixedTriggerType.
func SetType(def Definition, c Condition, t TriggerType) (Condition, error) {
	if def.Kind.EditableSignal() {
		return c, fmt.Errorf("%w: %s", ErrFixedTriggerType, def.Name)
	}
	if !t.Valid() {
		return c, fmt.Errorf("%w: %q", ErrInvalidTriggerType, string(t))
	}
	out := c.Clone()
	out.Type = t
	if t == Between {
		if out.CompareValue == nil {
			v := out.Value
			out.CompareValue = &v
		}
	} else {
		out.CompareValue = nil
	}
	return out, nil
}

// thresholdStep is the granularity of editable-signal thresholds.
const thresholdStep = 1

// SetThresholds updates a trigger's threshold values. A nil bound keeps
// its current value.
//
// For editable-signal indicators the lower bound is clamped into
// [lo, split] and the upper into [split, hi]. If both land on the split,
// the bound being edited is pushed one step away from the other: the upper
// bound when it was the only one supplied, otherwise the lower bound.
// Thresholds are never swapped.
//
// For other indicators the values are stored as given (non-finite input is
// ignored), with a BETWEEN upper bound raised to at least Value.
func SetThresholds(def Definition, c Condition, lower, upper *float64) Condition {
	lower = finite(lower)
	upper = finite(upper)
	out := c.Clone()

	lo, split, hi, ok := thresholdRange(def.Kind)
	if !ok {
		if lower != nil {
			out.Value = *lower
		}
		if out.Type != Between {
			out.CompareValue = nil
			return out
		}
		cv := out.Upper()
		if upper != nil {
			cv = *upper
		}
		if cv < out.Value {
			cv = out.Value
		}
		out.CompareValue = &cv
		return out
	}

	lowerSpec := ParamSpec{Name: "lower", Min: lo, Max: split, Step: thresholdStep}
	upperSpec := ParamSpec{Name: "upper", Min: split, Max: hi, Step: thresholdStep}

	l := out.Value
	if lower != nil {
		l = *lower
	}
	u := hi
	if out.CompareValue != nil {
		u = *out.CompareValue
	}
	if upper != nil {
		u = *upper
	}
	l = lowerSpec.Snap(l)
	u = upperSpec.Snap(u)

	if l >= u {
		if upper != nil && lower == nil {
			u = math.Min(l+thresholdStep, hi)
		} else {
			l = math.Max(u-thresholdStep, lo)
		}
	}

	out.Type = def.Trigger.Type
	out.Value = l
	out.CompareValue = &u
	return out
}

func finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

// Describe renders the condition for display, e.g. "↗ 0" or "30 – 70".
func Describe(c Condition) string {
	if c.Type == Between {
		return formatNum(c.Value) + " – " + formatNum(c.Upper())
	}
	return c.Type.Symbol() + " " + formatNum(c.Value)
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package indicator

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParamSpec describes one tunable indicator setting.
type ParamSpec struct {
	Name        string  `json:"name"`
	Default     float64 `json:"default"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Step        float64 `json:"step"`
	Description string  `json:"description,omitempty"`
}

// ParamValue is the current value of the parameter named Name.
type ParamValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Validate checks the spec's range and step. The range must split into a
// whole number of steps.
func (s ParamSpec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("param: empty name")
	}
	if !(s.Step > 0) || math.IsInf(s.Step, 0) {
		return fmt.Errorf("param %s: step must be positive, got %v", s.Name, s.Step)
	}
	if math.IsNaN(s.Min) || math.IsNaN(s.Max) || math.IsNaN(s.Default) ||
		math.IsInf(s.Min, 0) || math.IsInf(s.Max, 0) {
		return fmt.Errorf("param %s: bounds must be finite", s.Name)
	}
	if s.Min > s.Default || s.Default > s.Max {
		return fmt.Errorf("param %s: default %v outside [%v, %v]", s.Name, s.Default, s.Min, s.Max)
	}
	positions := decimal.NewFromFloat(s.Max).Sub(decimal.NewFromFloat(s.Min)).Div(decimal.NewFromFloat(s.Step))
	if !positions.IsInteger() {
		return fmt.Errorf("param %s: range [%v, %v] is not a multiple of step %v", s.Name, s.Min, s.Max, s.Step)
	}
	return nil
}

// Positions returns the number of discrete slider positions above Min.
func (s ParamSpec) Positions() int {
	return int(decimal.NewFromFloat(s.Max).Sub(decimal.NewFromFloat(s.Min)).Div(decimal.NewFromFloat(s.Step)).IntPart())
}

// Instantiate returns the spec's default value.
func (s ParamSpec) Instantiate() ParamValue {
	return ParamValue{Name: s.Name, Value: s.Default}
}

// Set applies a raw edit: integral-step params are truncated to an integer,
// fractional-step params are rounded to one decimal, then the result is
// clamped to [Min, Max]. NaN leaves current unchanged.
func (s ParamSpec) Set(current ParamValue, raw float64) ParamValue {
	if math.IsNaN(raw) {
		return current
	}
	return ParamValue{Name: s.Name, Value: s.Snap(raw)}
}

// SetText parses raw as typed by a user. Malformed text leaves current unchanged.
func (s ParamSpec) SetText(current ParamValue, raw string) ParamValue {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return current
	}
	return s.Set(current, d.InexactFloat64())
}

// Snap rounds raw per the step rule and clamps it into range.
func (s ParamSpec) Snap(raw float64) float64 {
	switch {
	case math.IsInf(raw, 1):
		return s.Max
	case math.IsInf(raw, -1):
		return s.Min
	}
	d := decimal.NewFromFloat(raw)
	if s.Step >= 1 {
		d = d.Truncate(0)
	} else {
		d = d.Round(1)
	}
	return clamp(d.InexactFloat64(), s.Min, s.Max)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

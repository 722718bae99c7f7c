package indicator

import (
	"fmt"
	"strings"
	"sync"

	"cryptostrat/internal/apperr"
)

// ErrIndicatorNotFound is returned when a name or kind has no catalog entry.
var ErrIndicatorNotFound = fmt.Errorf("indicator %w", apperr.ErrNotFound)

// Definition is an immutable catalog entry.
type Definition struct {
	Kind     Kind        `json:"kind"`
	Name     string      `json:"name"`
	Category Category    `json:"category"`
	Params   []ParamSpec `json:"params"`
	Trigger  Condition   `json:"trigger"`
}

// Param looks up a parameter spec by name.
func (d Definition) Param(name string) (ParamSpec, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

func (d Definition) clone() Definition {
	d.Params = append([]ParamSpec(nil), d.Params...)
	d.Trigger = d.Trigger.Clone()
	return d
}

// Catalog is a read-only registry of indicator definitions. It is built once
// and passed to the components that need it.
type Catalog struct {
	defs   []Definition
	byName map[string]int
	byKind map[Kind]int
}

// NewCatalog validates defs and builds a catalog that keeps their order.
func NewCatalog(defs []Definition) (*Catalog, error) {
	c := &Catalog{
		defs:   make([]Definition, 0, len(defs)),
		byName: make(map[string]int, len(defs)),
		byKind: make(map[Kind]int, len(defs)),
	}
	for _, d := range defs {
		if d.Kind == KindUnknown {
			return nil, fmt.Errorf("catalog: %q has no kind", d.Name)
		}
		if strings.TrimSpace(d.Name) == "" {
			return nil, fmt.Errorf("catalog: %s has an empty name", d.Kind)
		}
		key := strings.ToLower(d.Name)
		if _, dup := c.byName[key]; dup {
			return nil, fmt.Errorf("catalog: duplicate name %q", d.Name)
		}
		if _, dup := c.byKind[d.Kind]; dup {
			return nil, fmt.Errorf("catalog: duplicate kind %s", d.Kind)
		}
		if !d.Category.Valid() {
			return nil, fmt.Errorf("catalog: %s has invalid category %q", d.Name, d.Category)
		}
		seen := make(map[string]bool, len(d.Params))
		for _, p := range d.Params {
			if err := p.Validate(); err != nil {
				return nil, fmt.Errorf("catalog: %s: %w", d.Name, err)
			}
			if seen[p.Name] {
				return nil, fmt.Errorf("catalog: %s: duplicate param %q", d.Name, p.Name)
			}
			seen[p.Name] = true
		}
		if !d.Trigger.Type.Valid() {
			return nil, fmt.Errorf("catalog: %s: invalid default trigger %q", d.Name, d.Trigger.Type)
		}
		c.byName[key] = len(c.defs)
		c.byKind[d.Kind] = len(c.defs)
		c.defs = append(c.defs, d.clone())
	}
	return c, nil
}

// List returns every definition in catalog order.
func (c *Catalog) List() []Definition {
	out := make([]Definition, len(c.defs))
	for i, d := range c.defs {
		out[i] = d.clone()
	}
	return out
}

// Find looks up a definition by name, ignoring case.
func (c *Catalog) Find(name string) (Definition, error) {
	i, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrIndicatorNotFound, name)
	}
	return c.defs[i].clone(), nil
}

func (c *Catalog) ByKind(k Kind) (Definition, error) {
	i, ok := c.byKind[k]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrIndicatorNotFound, k)
	}
	return c.defs[i].clone(), nil
}

// Len returns the number of definitions.
func (c *Catalog) Len() int { return len(c.defs) }

var (
	builtinOnce sync.Once
	builtin     *Catalog
)

// Builtin returns the standard catalog. It is constructed on first use.
func Builtin() *Catalog {
	builtinOnce.Do(func() {
		c, err := NewCatalog(builtinDefinitions())
		if err != nil {
			panic(err)
		}
		builtin = c
	})
	return builtin
}

func period(def, min, max float64, desc string) ParamSpec {
	return ParamSpec{Name: "period", Default: def, Min: min, Max: max, Step: 1, Description: desc}
}

func ptr(v float64) *float64 { return &v }

func builtinDefinitions() []Definition {
	return []Definition{
		// Trend
		{
			Kind: SMA, Name: "SMA", Category: CategoryTrend,
			Params:  []ParamSpec{period(20, 2, 200, "Number of candles averaged")},
			Trigger: Condition{Type: CrossesAbove, Value: 0},
		},
		{
			Kind: EMA, Name: "EMA", Category: CategoryTrend,
			Params:  []ParamSpec{period(20, 2, 200, "Number of candles in the exponential window")},
			Trigger: Condition{Type: CrossesAbove, Value: 0},
		},
		{
			Kind: ADX, Name: "ADX", Category: CategoryTrend,
			Params:  []ParamSpec{period(14, 2, 50, "Smoothing period for directional movement")},
			Trigger: Condition{Type: GreaterThan, Value: 25},
		},
		{
			Kind: SuperTrend, Name: "SuperTrend", Category: CategoryTrend,
			Params: []ParamSpec{
				period(10, 1, 50, "ATR period"),
				{Name: "multiplier", Default: 3, Min: 0.5, Max: 10, Step: 0.1, Description: "ATR band multiplier"},
			},
			Trigger: Condition{Type: CrossesAbove, Value: 0},
		},

		// Momentum
		{
			Kind: RSI, Name: "RSI", Category: CategoryMomentum,
			Params: []ParamSpec{
				period(14, 2, 50, "Lookback period"),
				{Name: "overbought", Default: 70, Min: 50, Max: 100, Step: 1, Description: "Sell above this level"},
				{Name: "oversold", Default: 30, Min: 0, Max: 50, Step: 1, Description: "Buy below this level"},
			},
			Trigger: Condition{Type: Between, Value: 30, CompareValue: ptr(70)},
		},
		{
			Kind: MACD, Name: "MACD", Category: CategoryMomentum,
			Params: []ParamSpec{
				{Name: "fastPeriod", Default: 12, Min: 2, Max: 50, Step: 1, Description: "Fast EMA period"},
				{Name: "slowPeriod", Default: 26, Min: 5, Max: 100, Step: 1, Description: "Slow EMA period"},
				{Name: "signalPeriod", Default: 9, Min: 2, Max: 50, Step: 1, Description: "Signal line period"},
			},
			Trigger: Condition{Type: CrossesAbove, Value: 0},
		},
		{
			Kind: CCI, Name: "CCI", Category: CategoryMomentum,
			Params: []ParamSpec{
				period(20, 5, 100, "Lookback period"),
				{Name: "overbought", Default: 100, Min: 0, Max: 200, Step: 1},
				{Name: "oversold", Default: -100, Min: -200, Max: 0, Step: 1},
			},
			Trigger: Condition{Type: Between, Value: -100, CompareValue: ptr(100)},
		},
		{
			Kind: Stochastic, Name: "Stochastic", Category: CategoryMomentum,
			Params: []ParamSpec{
				{Name: "kPeriod", Default: 14, Min: 1, Max: 50, Step: 1, Description: "%K lookback"},
				{Name: "dPeriod", Default: 3, Min: 1, Max: 20, Step: 1, Description: "%D smoothing"},
				{Name: "overbought", Default: 80, Min: 50, Max: 100, Step: 1},
				{Name: "oversold", Default: 20, Min: 0, Max: 50, Step: 1},
			},
			Trigger: Condition{Type: Between, Value: 20, CompareValue: ptr(80)},
		},

		// Volatility
		{
			Kind: BollingerBands, Name: "Bollinger Bands", Category: CategoryVolatility,
			Params: []ParamSpec{
				period(20, 5, 100, "Moving average period"),
				{Name: "stdDev", Default: 2, Min: 0.5, Max: 5, Step: 0.1, Description: "Band width in standard deviations"},
			},
			Trigger: Condition{Type: CrossesBelow, Value: 0},
		},
		{
			Kind: ATR, Name: "ATR", Category: CategoryVolatility,
			Params:  []ParamSpec{period(14, 1, 50, "Averaging period")},
			Trigger: Condition{Type: GreaterThan, Value: 1.5},
		},

		// Volume
		{
			Kind: OBV, Name: "OBV", Category: CategoryVolume,
			Trigger: Condition{Type: CrossesAbove, Value: 0},
		},
	}
}

// Package indicator holds the strategy configuration model: the catalog of
// indicator definitions, their tunable parameters, and the trigger conditions
// that turn an indicator value into a signal.
//
// Everything in this package is pure data. Edits never fail: out-of-range
// input is snapped and clamped so an interactive editor always has a valid
// value to show.
package indicator

import (
	"fmt"
	"strings"
)

// Kind identifies an indicator. Behavior that depends on which indicator an
// instance refers to (threshold handling, backend field mapping) switches on
// Kind rather than on the display name.
type Kind int

const (
	KindUnknown Kind = iota
	SMA
	EMA
	ADX
	SuperTrend
	RSI
	MACD
	CCI
	Stochastic
	BollingerBands
	ATR
	OBV
)

var kindNames = map[Kind]string{
	SMA:            "SMA",
	EMA:            "EMA",
	ADX:            "ADX",
	SuperTrend:     "SuperTrend",
	RSI:            "RSI",
	MACD:           "MACD",
	CCI:            "CCI",
	Stochastic:     "Stochastic",
	BollingerBands: "Bollinger Bands",
	ATR:            "ATR",
	OBV:            "OBV",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind resolves a catalog name (case-insensitive) to its Kind.
func ParseKind(name string) (Kind, bool) {
	name = strings.TrimSpace(name)
	for k, n := range kindNames {
		if strings.EqualFold(n, name) {
			return k, true
		}
	}
	return KindUnknown, false
}

// MarshalText encodes the kind as its catalog name.
func (k Kind) MarshalText() ([]byte, error) {
	n, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("indicator: cannot encode %s", k)
	}
	return []byte(n), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("indicator: unknown kind %q", string(b))
	}
	*k = parsed
	return nil
}

// EditableSignal reports whether the kind's trigger is a fixed-type
// lower/upper threshold pair instead of a user-selectable comparison.
func (k Kind) EditableSignal() bool {
	switch k {
	case RSI, CCI, Stochastic:
		return true
	case SMA, EMA, ADX, SuperTrend, MACD, BollingerBands, ATR, OBV:
		return false
	}
	return false
}

// thresholdRange returns the valid threshold span for an editable-signal
// kind. The lower threshold lives in [lo, split], the upper in [split, hi].
func thresholdRange(k Kind) (lo, split, hi float64, ok bool) {
	switch k {
	case RSI, Stochastic:
		return 0, 50, 100, true
	case CCI:
		return -200, 0, 200, true
	case SMA, EMA, ADX, SuperTrend, MACD, BollingerBands, ATR, OBV:
		return 0, 0, 0, false
	}
	return 0, 0, 0, false
}

// ThresholdParams names the parameters that mirror an editable-signal
// kind's lower and upper thresholds.
func ThresholdParams(k Kind) (lower, upper string, ok bool) {
	switch k {
	case RSI, CCI, Stochastic:
		return "oversold", "overbought", true
	case SMA, EMA, ADX, SuperTrend, MACD, BollingerBands, ATR, OBV:
		return "", "", false
	}
	return "", "", false
}

// Category groups indicators in the catalog.
type Category string

const (
	CategoryTrend      Category = "Trend"
	CategoryMomentum   Category = "Momentum"
	CategoryVolatility Category = "Volatility"
	CategoryVolume     Category = "Volume"
)

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryTrend, CategoryMomentum, CategoryVolatility, CategoryVolume:
		return true
	}
	return false
}

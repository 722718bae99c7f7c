// Package strategy provides the strategy snapshot and the builder that
// assembles one.
//
// A Builder is an immutable value: every transition returns a new Builder
// and leaves the receiver untouched, so a caller holding an older value never
// observes a half-applied edit. Save produces a Strategy, a deep copy that
// later builder edits cannot reach.
package strategy

import (
	"fmt"
	"math"
	"strings"
	"time"

	"cryptostrat/internal/apperr"
	"cryptostrat/internal/indicator"
)

// ErrNegativeRisk is returned when a risk setting is negative or not a number.
var ErrNegativeRisk = fmt.Errorf("%w: risk settings must be non-negative", apperr.ErrValidation)

// RiskSettings are the optional per-strategy trade limits. TakeProfit and
// StopLoss are percentages; TradeAmount is in quote currency.
type RiskSettings struct {
	TakeProfit  *float64 `json:"take_profit,omitempty"`
	StopLoss    *float64 `json:"stop_loss,omitempty"`
	TradeAmount *float64 `json:"trade_amount,omitempty"`
}

// Validate checks that every present value is a non-negative number.
func (r RiskSettings) Validate() error {
	for name, v := range map[string]*float64{
		"take_profit":  r.TakeProfit,
		"stop_loss":    r.StopLoss,
		"trade_amount": r.TradeAmount,
	} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0) {
			return fmt.Errorf("%w: %s=%v", ErrNegativeRisk, name, *v)
		}
	}
	return nil
}

func (r RiskSettings) Clone() RiskSettings {
	return RiskSettings{
		TakeProfit:  clonePtr(r.TakeProfit),
		StopLoss:    clonePtr(r.StopLoss),
		TradeAmount: clonePtr(r.TradeAmount),
	}
}

func clonePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Strategy is a saved, named configuration. Treat it as read-only: the
// With* methods return updated copies that keep ID and CreatedAt.
type Strategy struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	Coin       string               `json:"coin"`
	Timeframe  string               `json:"timeframe"`
	Indicators []indicator.Instance `json:"indicators"`
	Active     bool                 `json:"active"`
	CreatedAt  time.Time            `json:"created_at"`
	RiskSettings
}

// Clone returns a deep copy.
func (s Strategy) Clone() Strategy {
	out := s
	out.Indicators = cloneInstances(s.Indicators)
	out.RiskSettings = s.RiskSettings.Clone()
	return out
}

// WithActive returns a copy with the active flag set.
func (s Strategy) WithActive(active bool) Strategy {
	out := s.Clone()
	out.Active = active
	return out
}

// WithTradeSettings returns a copy with the risk settings replaced.
func (s Strategy) WithTradeSettings(r RiskSettings) (Strategy, error) {
	if err := r.Validate(); err != nil {
		return s, err
	}
	out := s.Clone()
	out.RiskSettings = r.Clone()
	return out, nil
}

// Summary is a one-line description for listings.
func (s Strategy) Summary() string {
	names := make([]string, len(s.Indicators))
	for i, inst := range s.Indicators {
		names[i] = inst.Name()
	}
	state := "inactive"
	if s.Active {
		state = "active"
	}
	return fmt.Sprintf("%s  %-24s %s/%s  [%s]  %s", s.ID, s.Name, s.Coin, s.Timeframe, strings.Join(names, ", "), state)
}

func cloneInstances(in []indicator.Instance) []indicator.Instance {
	if in == nil {
		return nil
	}
	out := make([]indicator.Instance, len(in))
	for i, inst := range in {
		out[i] = inst.Clone()
	}
	return out
}

// Timeframes are the candle interval codes offered for selection.
var Timeframes = []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d"}

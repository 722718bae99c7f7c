// Package translate converts saved strategies into backend requests.
package translate

import (
	"fmt"
	"math"

	"cryptostrat/internal/apperr"
	"cryptostrat/internal/backend"
	"cryptostrat/internal/indicator"
	"cryptostrat/internal/strategy"
)

const (
	DefaultStopLoss   = 1.5
	DefaultTakeProfit = 2.0
)

var (
	ErrUnsupportedIndicator = fmt.Errorf("%w: unsupported indicator", apperr.ErrTranslation)
	ErrDuplicateIndicator   = fmt.Errorf("%w: indicator mapped more than once", apperr.ErrTranslation)
)

// Translator reads parameter defaults from its catalog.
type Translator struct {
	catalog *indicator.Catalog
}

func New(cat *indicator.Catalog) *Translator {
	return &Translator{catalog: cat}
}

// ToBacktestRequest builds the backtest body for s.
func (t *Translator) ToBacktestRequest(s strategy.Strategy, initialBalance float64) (backend.BacktestRequest, error) {
	settings, err := t.IndicatorSettings(s.Indicators)
	if err != nil {
		return backend.BacktestRequest{}, err
	}
	return backend.BacktestRequest{
		Symbol:            s.Coin,
		Timeframe:         s.Timeframe,
		InitialBalance:    initialBalance,
		IndicatorSettings: settings,
		RiskManagement:    riskManagement(s.RiskSettings),
	}, nil
}

// ToLiveTradeRequest builds the live-trade start body for s.
func (t *Translator) ToLiveTradeRequest(s strategy.Strategy) (backend.LiveTradeRequest, error) {
	settings, err := t.IndicatorSettings(s.Indicators)
	if err != nil {
		return backend.LiveTradeRequest{}, err
	}
	req := backend.LiveTradeRequest{
		StrategyID:        s.ID,
		StrategyName:      s.Name,
		Symbol:            s.Coin,
		Timeframe:         s.Timeframe,
		IndicatorSettings: settings,
		RiskManagement:    riskManagement(s.RiskSettings),
	}
	if s.TradeAmount != nil {
		v := *s.TradeAmount
		req.TradeAmount = &v
	}
	return req, nil
}

// IndicatorSettings maps instances onto backend fields. Kinds the backend
// has no field for (Stochastic, ATR, OBV) are left out.
func (t *Translator) IndicatorSettings(list []indicator.Instance) (backend.IndicatorSettings, error) {
	var out backend.IndicatorSettings
	for _, inst := range list {
		if err := t.apply(&out, inst); err != nil {
			return backend.IndicatorSettings{}, err
		}
	}
	return out, nil
}

func (t *Translator) apply(out *backend.IndicatorSettings, inst indicator.Instance) error {
	def, err := t.catalog.ByKind(inst.Indicator)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnsupportedIndicator, inst.Indicator)
	}
	p := params{inst: inst, def: def}

	switch inst.Indicator {
	case indicator.RSI:
		return set(&out.RSI, "rsi", &backend.OscillatorSettings{
			Period:     p.integer("period"),
			Overbought: p.number("overbought"),
			Oversold:   p.number("oversold"),
		})
	case indicator.CCI:
		return set(&out.CCI, "cci", &backend.OscillatorSettings{
			Period:     p.integer("period"),
			Overbought: p.number("overbought"),
			Oversold:   p.number("oversold"),
		})
	case indicator.MACD:
		return set(&out.MACD, "macd", &backend.MACDSettings{
			FastPeriod:   p.integer("fastPeriod"),
			SlowPeriod:   p.integer("slowPeriod"),
			SignalPeriod: p.integer("signalPeriod"),
		})
	case indicator.BollingerBands:
		return set(&out.Bollinger, "bollinger", &backend.BollingerSettings{
			Period: p.integer("period"),
			StdDev: p.number("stdDev"),
		})
	case indicator.SMA:
		return set(&out.SMA, "sma", &backend.PeriodSettings{Period: p.integer("period")})
	case indicator.EMA:
		return set(&out.EMA, "ema", &backend.PeriodSettings{Period: p.integer("period")})
	case indicator.ADX:
		return set(&out.ADX, "adx", &backend.ADXSettings{
			Period:    p.integer("period"),
			Threshold: inst.Trigger.Value,
		})
	case indicator.SuperTrend:
		return set(&out.SuperTrend, "supertrend", &backend.SuperTrendSettings{
			Period:     p.integer("period"),
			Multiplier: p.number("multiplier"),
		})
	// No backend field exists for these kinds; they are left out of the request.
	case indicator.Stochastic, indicator.ATR, indicator.OBV:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedIndicator, inst.Indicator)
	}
}

func set[T any](field **T, name string, v *T) error {
	if *field != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateIndicator, name)
	}
	*field = v
	return nil
}

// params resolves instance values, falling back to catalog defaults.
type params struct {
	inst indicator.Instance
	def  indicator.Definition
}

func (p params) number(name string) float64 {
	if v, ok := p.inst.Param(name); ok {
		return v
	}
	if spec, ok := p.def.Param(name); ok {
		return spec.Default
	}
	return 0
}

func (p params) integer(name string) int {
	return int(math.Round(p.number(name)))
}

func riskManagement(r strategy.RiskSettings) *backend.RiskManagement {
	rm := &backend.RiskManagement{StopLoss: DefaultStopLoss, TakeProfit: DefaultTakeProfit}
	if r.StopLoss != nil {
		rm.StopLoss = *r.StopLoss
	}
	if r.TakeProfit != nil {
		rm.TakeProfit = *r.TakeProfit
	}
	return rm
}

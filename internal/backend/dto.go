// Package backend is the client for the remote trading backend: the REST
// routes for backtests and live trading, and the websocket event stream.
package backend

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// BacktestRequest is the body of POST /api/backtest.
type BacktestRequest struct {
	Symbol            string            `json:"symbol"`
	Timeframe         string            `json:"timeframe"`
	InitialBalance    float64           `json:"initial_balance"`
	IndicatorSettings IndicatorSettings `json:"indicator_settings"`
	RiskManagement    *RiskManagement   `json:"risk_management,omitempty"`
}

// IndicatorSettings carries at most one entry per backend indicator.
// Absent indicators are omitted from the JSON entirely. Stochastic, ATR and
// OBV have no field here and never reach the backend.
type IndicatorSettings struct {
	RSI        *OscillatorSettings `json:"rsi,omitempty"`
	MACD       *MACDSettings       `json:"macd,omitempty"`
	Bollinger  *BollingerSettings  `json:"bollinger,omitempty"`
	SMA        *PeriodSettings     `json:"sma,omitempty"`
	EMA        *PeriodSettings     `json:"ema,omitempty"`
	CCI        *OscillatorSettings `json:"cci,omitempty"`
	ADX        *ADXSettings        `json:"adx,omitempty"`
	SuperTrend *SuperTrendSettings `json:"supertrend,omitempty"`
}

// Empty reports whether no indicator is set.
func (s IndicatorSettings) Empty() bool {
	return s == IndicatorSettings{}
}

type OscillatorSettings struct {
	Period     int     `json:"period"`
	Overbought float64 `json:"overbought"`
	Oversold   float64 `json:"oversold"`
}

type MACDSettings struct {
	FastPeriod   int `json:"fast_period"`
	SlowPeriod   int `json:"slow_period"`
	SignalPeriod int `json:"signal_period"`
}

type BollingerSettings struct {
	Period int     `json:"period"`
	StdDev float64 `json:"std_dev"`
}

type PeriodSettings struct {
	Period int `json:"period"`
}

type ADXSettings struct {
	Period    int     `json:"period"`
	Threshold float64 `json:"threshold"`
}

type SuperTrendSettings struct {
	Period     int     `json:"period"`
	Multiplier float64 `json:"multiplier"`
}

// RiskManagement values are percentages.
type RiskManagement struct {
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

// BacktestResponse is returned by POST /api/backtest.
type BacktestResponse struct {
	Summary BacktestSummary `json:"summary"`
	Trades  []Trade         `json:"trades"`
}

// BacktestSummary holds aggregate statistics. Money fields are decimals so
// balances print exactly as the backend sent them.
type BacktestSummary struct {
	InitialBalance            decimal.Decimal `json:"initial_balance"`
	FinalBalance              decimal.Decimal `json:"final_balance"`
	TotalProfitLoss           decimal.Decimal `json:"total_profit_loss"`
	TotalProfitLossPercentage float64         `json:"total_profit_loss_percentage"`
	TotalTrades               int             `json:"total_trades"`
	WinningTrades             int             `json:"winning_trades"`
	LosingTrades              int             `json:"losing_trades"`
	WinRate                   float64         `json:"win_rate"`
	MaxDrawdown               float64         `json:"max_drawdown"`
	SharpeRatio               float64         `json:"sharpe_ratio"`
	RiskRewardRatio           float64         `json:"risk_reward_ratio"`
	AverageProfitPerTrade     decimal.Decimal `json:"average_profit_per_trade"`
}

// Trade is one simulated round trip.
type Trade struct {
	EntryTime        string          `json:"entry_time"`
	ExitTime         string          `json:"exit_time"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	ExitPrice        decimal.Decimal `json:"exit_price"`
	ProfitLoss       decimal.Decimal `json:"profit_loss"`
	ProfitPercentage float64         `json:"profit_percentage"`
	ExitType         string          `json:"exit_type"`
}

// LiveTradeRequest is the body of POST /api/live-trade/start.
type LiveTradeRequest struct {
	StrategyID        string            `json:"strategy_id"`
	StrategyName      string            `json:"strategy_name"`
	Symbol            string            `json:"symbol"`
	Timeframe         string            `json:"timeframe"`
	IndicatorSettings IndicatorSettings `json:"indicator_settings"`
	RiskManagement    *RiskManagement   `json:"risk_management,omitempty"`
	TradeAmount       *float64          `json:"trade_amount,omitempty"`
}

// Ack is the backend's acknowledgement of a start or stop call.
type Ack struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Symbol  string `json:"symbol,omitempty"`
	TradeID string `json:"trade_id,omitempty"`
}

// LiveTradeStatus describes one running live trade.
type LiveTradeStatus struct {
	Symbol        string   `json:"symbol"`
	Timeframe     string   `json:"timeframe,omitempty"`
	StrategyID    string   `json:"strategy_id,omitempty"`
	StrategyName  string   `json:"strategy_name,omitempty"`
	Status        string   `json:"status"`
	Position      string   `json:"position,omitempty"`
	EntryPrice    *float64 `json:"entry_price,omitempty"`
	CurrentPrice  *float64 `json:"current_price,omitempty"`
	PnL           *float64 `json:"pnl,omitempty"`
	PnLPercentage *float64 `json:"pnl_percentage,omitempty"`
	TradeAmount   *float64 `json:"trade_amount,omitempty"`
	StartedAt     string   `json:"started_at,omitempty"`
}

// decodeStatusList accepts the shapes the status route has been seen to
// return: a bare array, an object wrapping the array, or a single status.
func decodeStatusList(raw []byte) ([]LiveTradeStatus, error) {
	var list []LiveTradeStatus
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	for _, key := range []string{"trades", "active_trades", "statuses", "data"} {
		inner, ok := obj[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(inner, &list); err != nil {
			return nil, fmt.Errorf("decode status %q: %w", key, err)
		}
		return list, nil
	}
	if _, ok := obj["symbol"]; ok {
		var one LiveTradeStatus
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, fmt.Errorf("decode status: %w", err)
		}
		return []LiveTradeStatus{one}, nil
	}
	return []LiveTradeStatus{}, nil
}

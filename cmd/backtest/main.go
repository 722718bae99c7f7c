// cmd/backtest runs a strategy through the backend backtest and prints the
// summary and trade list. The strategy is either a saved one (-id) or built
// ad hoc from flags without being saved.
//
// Usage:
//
//	go run ./cmd/backtest -id 3f6c... -balance 5000
//	go run ./cmd/backtest -coin BTC -tf 1h -indicators "RSI:lower=35,upper=65;MACD" -sl 1
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"cryptostrat/config"
	"cryptostrat/internal/app"
	"cryptostrat/internal/backend"
	"cryptostrat/internal/service"
	"cryptostrat/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	_ = godotenv.Load(".env")

	// Flags
	id := flag.String("id", "", "Saved strategy id (overrides the ad hoc flags)")
	coin := flag.String("coin", "BTC", "Market symbol for an ad hoc strategy")
	tf := flag.String("tf", "1h", "Timeframe for an ad hoc strategy")
	indicatorCfg := flag.String("indicators", "", "Indicator specs: NAME[:key=value,...];... (default: RSI;MACD)")
	balance := flag.Float64("balance", 0, "Initial balance (0 = INITIAL_BALANCE)")
	tp := flag.Float64("tp", 0, "Take profit % (0 = backend default)")
	sl := flag.Float64("sl", 0, "Stop loss % (0 = backend default)")
	maxTrades := flag.Int("trades", 20, "Trades to print (0 = none, -1 = all)")
	flag.Parse()

	cfg := config.Load()
	if *id == "" {
		cfg.StoreDriver = config.DriverMemory
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	a, err := app.Open(ctx, "backtest", cfg, os.Stderr)
	if err != nil {
		log.Fatalf("[backtest] init failed: %v", err)
	}
	defer a.Close()

	var st strategy.Strategy
	if *id != "" {
		st, err = a.Service.Get(ctx, *id)
	} else {
		st, err = adHoc(a.Service, *coin, *tf, *indicatorCfg, *tp, *sl)
	}
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	log.Printf("[backtest] %s %s/%s: %d indicators", st.Name, st.Coin, st.Timeframe, len(st.Indicators))
	resp, err := a.Service.BacktestStrategy(ctx, st, *balance)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	printResult(os.Stdout, st, resp, *maxTrades)
}

// adHoc builds an unsaved strategy. The snapshot is produced by the builder
// so it goes through the same normalization as a saved one.
func adHoc(svc *service.Service, coin, tf, specs string, tp, sl float64) (strategy.Strategy, error) {
	b := svc.NewBuilder().SelectMarket(coin).SelectTimeframe(tf)
	var err error
	for _, spec := range parseIndicatorSpecs(specs) {
		if b, err = b.AddIndicatorSpec(spec); err != nil {
			return strategy.Strategy{}, err
		}
	}
	if b, err = b.SetRiskSettings(positive(tp), positive(sl), nil); err != nil {
		return strategy.Strategy{}, err
	}
	_, st, err := b.Save("ad hoc " + strings.ToUpper(coin))
	return st, err
}

func parseIndicatorSpecs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{"RSI", "MACD"}
	}
	var specs []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			specs = append(specs, part)
		}
	}
	return specs
}

func positive(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}

func printResult(w io.Writer, st strategy.Strategy, resp backend.BacktestResponse, maxTrades int) {
	s := resp.Summary
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════════╗")
	fmt.Fprintln(w, "║            BACKTEST COMPLETE             ║")
	fmt.Fprintln(w, "╠══════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Strategy:        %-22s ║\n", truncate(st.Name, 22))
	fmt.Fprintf(w, "║  Market:          %-22s ║\n", st.Coin+"/"+st.Timeframe)
	fmt.Fprintf(w, "║  Initial balance: %-22s ║\n", s.InitialBalance.StringFixed(2))
	fmt.Fprintf(w, "║  Final balance:   %-22s ║\n", s.FinalBalance.StringFixed(2))
	fmt.Fprintf(w, "║  Profit/Loss:     %-22s ║\n", fmt.Sprintf("%s (%.2f%%)", s.TotalProfitLoss.StringFixed(2), s.TotalProfitLossPercentage))
	fmt.Fprintf(w, "║  Trades:          %-22s ║\n", fmt.Sprintf("%d (%d won, %d lost)", s.TotalTrades, s.WinningTrades, s.LosingTrades))
	fmt.Fprintf(w, "║  Win rate:        %-22s ║\n", fmt.Sprintf("%.1f%%", s.WinRate))
	fmt.Fprintf(w, "║  Max drawdown:    %-22s ║\n", fmt.Sprintf("%.2f%%", s.MaxDrawdown))
	fmt.Fprintf(w, "║  Sharpe ratio:    %-22s ║\n", fmt.Sprintf("%.2f", s.SharpeRatio))
	fmt.Fprintf(w, "║  Risk/reward:     %-22s ║\n", fmt.Sprintf("%.2f", s.RiskRewardRatio))
	fmt.Fprintf(w, "║  Avg per trade:   %-22s ║\n", s.AverageProfitPerTrade.StringFixed(2))
	fmt.Fprintln(w, "╚══════════════════════════════════════════╝")

	if maxTrades == 0 || len(resp.Trades) == 0 {
		return
	}
	fmt.Fprintln(w)
	total := decimal.Zero
	for i, t := range resp.Trades {
		total = total.Add(t.ProfitLoss)
		if maxTrades > 0 && i >= maxTrades {
			continue
		}
		fmt.Fprintf(w, "  %3d  %s → %s  %12s → %-12s  %10s (%6.2f%%)  %s\n",
			i+1, t.EntryTime, t.ExitTime,
			t.EntryPrice.StringFixed(2), t.ExitPrice.StringFixed(2),
			t.ProfitLoss.StringFixed(2), t.ProfitPercentage, t.ExitType)
	}
	if maxTrades > 0 && len(resp.Trades) > maxTrades {
		fmt.Fprintf(w, "  ... %d more\n", len(resp.Trades)-maxTrades)
	}
	fmt.Fprintf(w, "  sum of trade P/L: %s\n", total.StringFixed(2))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"cryptostrat/internal/backend"
	"cryptostrat/internal/service"
	"cryptostrat/internal/strategy"
)

var errUsage = errors.New("usage")

// run executes one command. Output goes to out; logs go wherever the
// default slog logger points.
func run(ctx context.Context, svc *service.Service, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "indicators":
		return cmdIndicators(svc, out)
	case "create":
		return cmdCreate(ctx, svc, rest, out)
	case "list":
		return cmdList(ctx, svc, out)
	case "show":
		return cmdShow(ctx, svc, rest, out)
	case "activate":
		return cmdActivate(ctx, svc, rest, out)
	case "risk":
		return cmdRisk(ctx, svc, rest, out)
	case "delete":
		id, err := oneID(rest)
		if err != nil {
			return err
		}
		if err := svc.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %s\n", id)
		return nil
	case "backtest":
		return cmdBacktest(ctx, svc, rest, out)
	case "live":
		return cmdLive(ctx, svc, rest, out)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func oneID(args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("%w: expected one strategy id", errUsage)
	}
	return args[0], nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func cmdIndicators(svc *service.Service, out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCATEGORY\tPARAMS\tTRIGGER")
	for _, def := range svc.Catalog().List() {
		params := make([]string, len(def.Params))
		for i, p := range def.Params {
			params[i] = fmt.Sprintf("%s=%g [%g..%g/%g]", p.Name, p.Default, p.Min, p.Max, p.Step)
		}
		trig := string(def.Trigger.Type)
		if def.Kind.EditableSignal() {
			trig += " (editable signal)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", def.Name, def.Category, strings.Join(params, " "), trig)
	}
	return tw.Flush()
}

func cmdCreate(ctx context.Context, svc *service.Service, args []string, out io.Writer) error {
	fs := newFlagSet("create")
	name := fs.String("name", "", "strategy name")
	coin := fs.String("coin", "BTC", "market symbol")
	tf := fs.String("tf", "1h", "timeframe code")
	var specs indicatorFlags
	var tp, sl, amount optionalFloat
	fs.Var(&specs, "i", "indicator spec, repeatable")
	fs.Var(&tp, "tp", "take profit %")
	fs.Var(&sl, "sl", "stop loss %")
	fs.Var(&amount, "amount", "trade amount")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	b := svc.NewBuilder().SelectMarket(*coin).SelectTimeframe(*tf)
	var err error
	for _, spec := range specs {
		if b, err = b.AddIndicatorSpec(spec); err != nil {
			return err
		}
	}
	if b, err = b.SetRiskSettings(tp.v, sl.v, amount.v); err != nil {
		return err
	}
	_, st, err := svc.Save(ctx, b, *name)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, st.ID)
	return nil
}

func cmdList(ctx context.Context, svc *service.Service, out io.Writer) error {
	list, err := svc.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tMARKET\tINDICATORS\tACTIVE\tCREATED")
	for _, st := range list {
		names := make([]string, len(st.Indicators))
		for i, inst := range st.Indicators {
			names[i] = inst.Name()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s/%s\t%s\t%v\t%s\n",
			st.ID, st.Name, st.Coin, st.Timeframe, strings.Join(names, ","), st.Active,
			st.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func cmdShow(ctx context.Context, svc *service.Service, args []string, out io.Writer) error {
	fs := newFlagSet("show")
	withRequest := fs.Bool("request", false, "also print the backtest request the backend would receive")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	id, err := oneID(fs.Args())
	if err != nil {
		return err
	}
	st, err := svc.Get(ctx, id)
	if err != nil {
		return err
	}
	doc := map[string]any{"strategy": st}
	if *withRequest {
		req, err := svc.BacktestRequest(st)
		if err != nil {
			return err
		}
		doc["backtest_request"] = req
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func cmdActivate(ctx context.Context, svc *service.Service, args []string, out io.Writer) error {
	fs := newFlagSet("activate")
	off := fs.Bool("off", false, "clear the active flag")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	id, err := oneID(fs.Args())
	if err != nil {
		return err
	}
	if err := svc.SetActive(ctx, id, !*off); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s active=%v\n", id, !*off)
	return nil
}

func cmdRisk(ctx context.Context, svc *service.Service, args []string, out io.Writer) error {
	fs := newFlagSet("risk")
	var tp, sl, amount optionalFloat
	fs.Var(&tp, "tp", "take profit %")
	fs.Var(&sl, "sl", "stop loss %")
	fs.Var(&amount, "amount", "trade amount")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	id, err := oneID(fs.Args())
	if err != nil {
		return err
	}
	r := strategy.RiskSettings{TakeProfit: tp.v, StopLoss: sl.v, TradeAmount: amount.v}
	if err := svc.SetTradeSettings(ctx, id, r); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s risk updated\n", id)
	return nil
}

func cmdBacktest(ctx context.Context, svc *service.Service, args []string, out io.Writer) error {
	fs := newFlagSet("backtest")
	balance := fs.Float64("balance", 0, "initial balance (0 = INITIAL_BALANCE)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	id, err := oneID(fs.Args())
	if err != nil {
		return err
	}
	resp, err := svc.Backtest(ctx, id, *balance)
	if err != nil {
		return err
	}
	s := resp.Summary
	fmt.Fprintf(out, "final balance %s  P/L %s (%.2f%%)  trades %d  win rate %.1f%%\n",
		s.FinalBalance.StringFixed(2), s.TotalProfitLoss.StringFixed(2),
		s.TotalProfitLossPercentage, s.TotalTrades, s.WinRate)
	return nil
}

func cmdLive(ctx context.Context, svc *service.Service, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: live needs start, stop, stop-symbol or status", errUsage)
	}
	sub, rest := args[0], args[1:]
	var (
		ack backend.Ack
		err error
	)
	switch sub {
	case "start":
		var id string
		if id, err = oneID(rest); err != nil {
			return err
		}
		ack, err = svc.StartLive(ctx, id)
	case "stop":
		var id string
		if id, err = oneID(rest); err != nil {
			return err
		}
		ack, err = svc.StopLive(ctx, id)
	case "stop-symbol":
		ack, err = svc.StopSymbol(ctx, firstOrEmpty(rest))
	case "status":
		return liveStatus(ctx, svc, firstOrEmpty(rest), out)
	default:
		return fmt.Errorf("%w: unknown live command %q", errUsage, sub)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s\n", ack.Status, ack.Message)
	return nil
}

func liveStatus(ctx context.Context, svc *service.Service, symbol string, out io.Writer) error {
	list, err := svc.Status(ctx, symbol)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "no live trades")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tSTRATEGY\tSTATUS\tPOSITION\tPNL")
	for _, s := range list {
		pnl := "-"
		if s.PnL != nil {
			pnl = fmt.Sprintf("%.2f", *s.PnL)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Symbol, s.StrategyName, s.Status, s.Position, pnl)
	}
	return tw.Flush()
}

func firstOrEmpty(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

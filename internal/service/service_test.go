package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"cryptostrat/internal/apperr"
	"cryptostrat/internal/backend"
	"cryptostrat/internal/indicator"
	"cryptostrat/internal/metrics"
	"cryptostrat/internal/store/memory"
	"cryptostrat/internal/strategy"
	"cryptostrat/internal/translate"
)

type fakeGateway struct {
	backtests []backend.BacktestRequest
	starts    []backend.LiveTradeRequest
	stops     []string
	err       error
}

func (g *fakeGateway) RunBacktest(_ context.Context, req backend.BacktestRequest) (backend.BacktestResponse, error) {
	g.backtests = append(g.backtests, req)
	return backend.BacktestResponse{Trades: []backend.Trade{}}, g.err
}

func (g *fakeGateway) StartLiveTrade(_ context.Context, req backend.LiveTradeRequest) (backend.Ack, error) {
	g.starts = append(g.starts, req)
	return backend.Ack{Status: "started"}, g.err
}

func (g *fakeGateway) LiveTradeStatus(context.Context, string) ([]backend.LiveTradeStatus, error) {
	return nil, g.err
}

func (g *fakeGateway) StopLiveTrade(_ context.Context, symbol string) (backend.Ack, error) {
	g.stops = append(g.stops, symbol)
	return backend.Ack{Status: "stopped"}, g.err
}

func newService(t *testing.T, gw Gateway) (*Service, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := New(Config{
		Catalog:        indicator.Builtin(),
		Store:          memory.New(),
		Gateway:        gw,
		InitialBalance: 5000,
		Metrics:        m,
		BuilderOptions: []strategy.Option{strategy.WithClock(func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		})},
	})
	return svc, m
}

func rsiBuilder(t *testing.T, svc *Service, extra ...string) strategy.Builder {
	t.Helper()
	b := svc.NewBuilder().SelectMarket("btc").SelectTimeframe("1h")
	var err error
	for _, name := range append([]string{"RSI"}, extra...) {
		if b, err = b.AddIndicator(name); err != nil {
			t.Fatal(err)
		}
	}
	return b
}

func TestService_SaveListEdit(t *testing.T) {
	svc, _ := newService(t, &fakeGateway{})
	ctx := context.Background()

	_, first, err := svc.Save(ctx, rsiBuilder(t, svc), "first")
	if err != nil {
		t.Fatal(err)
	}
	_, second, err := svc.Save(ctx, rsiBuilder(t, svc, "MACD"), "second")
	if err != nil {
		t.Fatal(err)
	}

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}

	b, err := svc.Edit(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if b.State() != strategy.StateEditing || b.ID() != first.ID || b.Coin() != "BTC" {
		t.Errorf("edit builder: state=%v id=%q coin=%q", b.State(), b.ID(), b.Coin())
	}
	_, resaved, err := svc.Save(ctx, b, "renamed")
	if err != nil {
		t.Fatal(err)
	}
	if resaved.ID != first.ID || !resaved.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("re-save changed identity: %+v", resaved)
	}
	if list, _ := svc.List(ctx); len(list) != 2 {
		t.Errorf("re-save should replace, got %d strategies", len(list))
	}
}

func TestService_SaveBlankNameTouchesNothing(t *testing.T) {
	svc, _ := newService(t, &fakeGateway{})
	b := rsiBuilder(t, svc)

	got, _, err := svc.Save(context.Background(), b, "   ")
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got.State() != strategy.StateEditing {
		t.Errorf("builder state changed to %v", got.State())
	}
	if list, _ := svc.List(context.Background()); len(list) != 0 {
		t.Errorf("nothing should be stored, got %d", len(list))
	}
}

func TestService_GetMissing(t *testing.T) {
	svc, _ := newService(t, &fakeGateway{})
	_, err := svc.Get(context.Background(), "nope")
	if !errors.Is(err, apperr.ErrNotFound) || !errors.Is(err, ErrStrategyNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := svc.Backtest(context.Background(), "nope", 0); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("backtest of missing id: %v", err)
	}
}

func TestService_BacktestUsesDefaultBalance(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newService(t, gw)
	_, st, _ := svc.Save(context.Background(), rsiBuilder(t, svc, "OBV"), "rsi")

	if _, err := svc.Backtest(context.Background(), st.ID, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Backtest(context.Background(), st.ID, 750); err != nil {
		t.Fatal(err)
	}
	if len(gw.backtests) != 2 {
		t.Fatalf("expected 2 backtests, got %d", len(gw.backtests))
	}
	if gw.backtests[0].InitialBalance != 5000 || gw.backtests[1].InitialBalance != 750 {
		t.Errorf("balances: %v %v", gw.backtests[0].InitialBalance, gw.backtests[1].InitialBalance)
	}
	req := gw.backtests[0]
	if req.Symbol != "BTC" || req.IndicatorSettings.RSI == nil || req.RiskManagement == nil {
		t.Errorf("request: %+v", req)
	}
}

func TestService_TranslationFailsBeforeNetwork(t *testing.T) {
	gw := &fakeGateway{}
	svc, m := newService(t, gw)
	_, st, _ := svc.Save(context.Background(), rsiBuilder(t, svc, "RSI"), "twice")

	_, err := svc.Backtest(context.Background(), st.ID, 0)
	if !errors.Is(err, translate.ErrDuplicateIndicator) || !errors.Is(err, apperr.ErrTranslation) {
		t.Fatalf("expected duplicate translation error, got %v", err)
	}
	if _, err := svc.StartLive(context.Background(), st.ID); !errors.Is(err, apperr.ErrTranslation) {
		t.Fatalf("expected translation error on live start, got %v", err)
	}
	if len(gw.backtests) != 0 || len(gw.starts) != 0 {
		t.Error("gateway must not be called after a translation failure")
	}
	if v := testutil.ToFloat64(m.TranslateErrors); v != 2 {
		t.Errorf("translate errors = %v, want 2", v)
	}
	got, _ := svc.Get(context.Background(), st.ID)
	if got.Active {
		t.Error("failed start must not mark the strategy active")
	}
}

func TestService_LiveLifecycle(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newService(t, gw)
	ctx := context.Background()
	_, st, _ := svc.Save(ctx, rsiBuilder(t, svc), "live")

	ack, err := svc.StartLive(ctx, st.ID)
	if err != nil || ack.Status != "started" {
		t.Fatalf("start: %+v %v", ack, err)
	}
	if gw.starts[0].StrategyID != st.ID || gw.starts[0].Symbol != "BTC" {
		t.Errorf("live request: %+v", gw.starts[0])
	}
	if got, _ := svc.Get(ctx, st.ID); !got.Active {
		t.Error("expected active after start")
	}

	if _, err := svc.StopLive(ctx, st.ID); err != nil {
		t.Fatal(err)
	}
	if gw.stops[0] != "BTC" {
		t.Errorf("stopped symbol %q", gw.stops[0])
	}
	if got, _ := svc.Get(ctx, st.ID); got.Active {
		t.Error("expected inactive after stop")
	}
}

func TestService_StopSymbolClearsMatching(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newService(t, gw)
	ctx := context.Background()
	_, btc, _ := svc.Save(ctx, rsiBuilder(t, svc), "btc")
	eb := svc.NewBuilder().SelectMarket("ETH").SelectTimeframe("4h")
	_, eth, _ := svc.Save(ctx, eb, "eth")
	svc.SetActive(ctx, btc.ID, true)
	svc.SetActive(ctx, eth.ID, true)

	if _, err := svc.StopSymbol(ctx, "btc"); err != nil {
		t.Fatal(err)
	}
	if gw.stops[0] != "BTC" {
		t.Errorf("stopped %q", gw.stops[0])
	}
	b, _ := svc.Get(ctx, btc.ID)
	e, _ := svc.Get(ctx, eth.ID)
	if b.Active || !e.Active {
		t.Errorf("btc active=%v eth active=%v", b.Active, e.Active)
	}
}

func TestService_GatewayFailureLeavesStoreAlone(t *testing.T) {
	gw := &fakeGateway{err: apperr.Collaborator("backend live.start", errors.New("connection refused"))}
	svc, _ := newService(t, gw)
	ctx := context.Background()
	_, st, _ := svc.Save(ctx, rsiBuilder(t, svc), "x")

	if _, err := svc.StartLive(ctx, st.ID); !errors.Is(err, apperr.ErrCollaborator) {
		t.Fatalf("expected collaborator error, got %v", err)
	}
	if got, _ := svc.Get(ctx, st.ID); got.Active {
		t.Error("active flag set despite backend failure")
	}
}

func TestService_SetTradeSettings(t *testing.T) {
	svc, _ := newService(t, &fakeGateway{})
	ctx := context.Background()
	_, st, _ := svc.Save(ctx, rsiBuilder(t, svc), "risk")

	sl := 0.8
	if err := svc.SetTradeSettings(ctx, st.ID, strategy.RiskSettings{StopLoss: &sl}); err != nil {
		t.Fatal(err)
	}
	got, _ := svc.Get(ctx, st.ID)
	if got.StopLoss == nil || *got.StopLoss != 0.8 {
		t.Errorf("stop loss not stored: %+v", got.RiskSettings)
	}

	neg := -1.0
	if err := svc.SetTradeSettings(ctx, st.ID, strategy.RiskSettings{TakeProfit: &neg}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if err := svc.SetTradeSettings(ctx, "missing", strategy.RiskSettings{}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_BacktestOverHTTP(t *testing.T) {
	var body map[string]any
	var trace string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trace = r.Header.Get(backend.TraceHeader)
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &body)
		io.WriteString(w, `{"summary":{"initial_balance":5000,"final_balance":5100.25,"total_trades":1},"trades":[]}`)
	}))
	defer srv.Close()

	client := backend.NewClient(backend.Config{BaseURL: srv.URL})
	svc, _ := newService(t, client)
	ctx := context.Background()

	b := rsiBuilder(t, svc)
	b, err := b.SetThresholds(0, ptr(35), ptr(65))
	if err != nil {
		t.Fatal(err)
	}
	_, st, err := svc.Save(ctx, b, "rsi 35/65")
	if err != nil {
		t.Fatal(err)
	}

	resp, err := svc.Backtest(ctx, st.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Summary.FinalBalance.StringFixed(2) != "5100.25" {
		t.Errorf("final balance %s", resp.Summary.FinalBalance)
	}
	if !strings.HasPrefix(trace, st.ID+"-") {
		t.Errorf("trace header %q should start with strategy id", trace)
	}
	rsi := body["indicator_settings"].(map[string]any)["rsi"].(map[string]any)
	if rsi["oversold"] != 35.0 || rsi["overbought"] != 65.0 || rsi["period"] != 14.0 {
		t.Errorf("rsi on the wire: %v", rsi)
	}
}

func ptr(v float64) *float64 { return &v }

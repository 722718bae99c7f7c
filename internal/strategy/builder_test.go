package strategy

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"cryptostrat/internal/apperr"
	"cryptostrat/internal/indicator"
)

func f(v float64) *float64 { return &v }

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// seqIDs returns a deterministic id generator: id-1, id-2, ...
func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestBuilder() Builder {
	return New(indicator.Builtin(),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(seqIDs()),
	)
}

func mustAdd(t *testing.T, b Builder, name string) Builder {
	t.Helper()
	nb, err := b.AddIndicator(name)
	if err != nil {
		t.Fatalf("AddIndicator(%q): %v", name, err)
	}
	return nb
}

func TestBuilder_StartsEmpty(t *testing.T) {
	b := newTestBuilder()
	if b.State() != StateEmpty {
		t.Errorf("state: got %s, want empty", b.State())
	}
	if len(b.Indicators()) != 0 || b.ID() != "" {
		t.Errorf("new builder not empty: %+v", b)
	}
}

func TestBuilder_SelectMovesToEditing(t *testing.T) {
	b := newTestBuilder().SelectMarket(" btcusdt ")
	if b.State() != StateEditing || b.Coin() != "BTCUSDT" {
		t.Errorf("got state=%s coin=%q", b.State(), b.Coin())
	}
	b = b.SelectTimeframe("1h")
	if b.Timeframe() != "1h" {
		t.Errorf("timeframe: %q", b.Timeframe())
	}
}

func TestBuilder_EndToEndRSI(t *testing.T) {
	b := newTestBuilder().SelectMarket("BTC").SelectTimeframe("1h")
	b = mustAdd(t, b, "RSI")
	b, err := b.SetThresholds(0, f(35), f(65))
	if err != nil {
		t.Fatal(err)
	}

	saved, s, err := b.Save("My RSI")
	if err != nil {
		t.Fatal(err)
	}
	if saved.State() != StateSaved {
		t.Errorf("state after save: %s", saved.State())
	}
	if s.Name != "My RSI" || s.Coin != "BTC" || s.Timeframe != "1h" {
		t.Errorf("snapshot: %+v", s)
	}
	if !s.CreatedAt.Equal(fixedNow) || s.ID == "" {
		t.Errorf("identity: id=%q created=%v", s.ID, s.CreatedAt)
	}
	if len(s.Indicators) != 1 {
		t.Fatalf("indicators: %d", len(s.Indicators))
	}
	trig := s.Indicators[0].Trigger
	if trig.Type != indicator.Between || trig.Value != 35 || *trig.CompareValue != 65 {
		t.Errorf("trigger: %+v", trig)
	}
}

func TestBuilder_TransitionsDoNotMutateReceiver(t *testing.T) {
	b := mustAdd(t, newTestBuilder(), "RSI")
	before := b.Indicators()

	if _, err := b.SetParam(0, "period", 21); err != nil {
		t.Fatal(err)
	}
	if _, err := b.SetThresholds(0, f(10), f(90)); err != nil {
		t.Fatal(err)
	}
	b.RemoveIndicator(before[0].ID)
	if _, err := b.AddIndicator("EMA"); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(b.Indicators(), before) {
		t.Errorf("receiver changed:\n got %+v\nwant %+v", b.Indicators(), before)
	}
}

func TestBuilder_IndicatorsReturnsCopy(t *testing.T) {
	b := mustAdd(t, newTestBuilder(), "RSI")
	list := b.Indicators()
	list[0].Params[0].Value = 999
	*list[0].Trigger.CompareValue = 1

	inst, _ := b.Indicator(0)
	if v, _ := inst.Param("period"); v != 14 {
		t.Errorf("builder state leaked through copy: period=%v", v)
	}
	if *inst.Trigger.CompareValue != 70 {
		t.Errorf("builder trigger leaked: %v", *inst.Trigger.CompareValue)
	}
}

func TestBuilder_SnapshotDetachedFromLaterEdits(t *testing.T) {
	b := mustAdd(t, newTestBuilder(), "SMA")
	b, s, err := b.Save("snap")
	if err != nil {
		t.Fatal(err)
	}
	want := s.Clone()

	b, _ = b.SetParam(0, "period", 50)
	b = mustAdd(t, b, "EMA")
	_, _ = b.SetRiskSettings(f(1), f(1), f(1))

	if !reflect.DeepEqual(s, want) {
		t.Errorf("snapshot changed after builder edits")
	}
}

func TestBuilder_AddUnknownIndicator(t *testing.T) {
	b := newTestBuilder()
	nb, err := b.AddIndicator("Ichimoku")
	if !errors.Is(err, indicator.ErrIndicatorNotFound) || !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if nb.State() != StateEmpty || len(nb.Indicators()) != 0 {
		t.Errorf("failed add changed builder")
	}
}

func TestBuilder_AddedInstancesHaveDistinctIDs(t *testing.T) {
	b := newTestBuilder()
	for _, name := range []string{"RSI", "RSI", "MACD"} {
		b = mustAdd(t, b, name)
	}
	seen := map[string]bool{}
	for _, inst := range b.Indicators() {
		if inst.ID == "" || seen[inst.ID] {
			t.Errorf("duplicate or empty id %q", inst.ID)
		}
		seen[inst.ID] = true
	}
}

func TestBuilder_RemoveIndicator(t *testing.T) {
	b := newTestBuilder()
	b = mustAdd(t, b, "RSI")
	b = mustAdd(t, b, "MACD")
	b = mustAdd(t, b, "OBV")
	list := b.Indicators()

	b = b.RemoveIndicator(list[1].ID)
	got := b.Indicators()
	if len(got) != 2 || got[0].ID != list[0].ID || got[1].ID != list[2].ID {
		t.Errorf("remove kept wrong instances: %+v", got)
	}

	same := b.RemoveIndicator("missing")
	if !reflect.DeepEqual(same.Indicators(), got) {
		t.Errorf("removing unknown id changed the list")
	}
}

func TestBuilder_UpdateIndicatorOutOfRange(t *testing.T) {
	b := mustAdd(t, newTestBuilder(), "RSI")
	inst, _ := b.Indicator(0)

	for _, idx := range []int{-1, 1, 7} {
		nb, err := b.UpdateIndicator(idx, inst)
		if !errors.Is(err, ErrIndexOutOfRange) || !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("index %d: expected ErrIndexOutOfRange, got %v", idx, err)
		}
		if !reflect.DeepEqual(nb.Indicators(), b.Indicators()) {
			t.Errorf("index %d: failed update changed builder", idx)
		}
	}
	if _, err := b.SetParam(3, "period", 5); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("SetParam: expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestBuilder_UpdateIndicatorNormalizes(t *testing.T) {
	b := mustAdd(t, newTestBuilder(), "Bollinger Bands")
	orig, _ := b.Indicator(0)

	edited := orig.Clone()
	edited.ID = ""
	edited.Params = []indicator.ParamValue{{Name: "stdDev", Value: 2.46}}

	b, err := b.UpdateIndicator(0, edited)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := b.Indicator(0)
	if got.ID != orig.ID {
		t.Errorf("id: got %q, want %q", got.ID, orig.ID)
	}
	if v, _ := got.Param("period"); v != 20 {
		t.Errorf("missing period not defaulted: %v", v)
	}
	if v, _ := got.Param("stdDev"); v != 2.5 {
		t.Errorf("stdDev: got %v, want 2.5", v)
	}
}

func TestBuilder_SetTriggerType(t *testing.T) {
	b := mustAdd(t, newTestBuilder(), "ADX")
	b, err := b.SetTriggerType(0, indicator.LessThan)
	if err != nil {
		t.Fatal(err)
	}
	inst, _ := b.Indicator(0)
	if inst.Trigger.Type != indicator.LessThan {
		t.Errorf("type: %s", inst.Trigger.Type)
	}

	b = mustAdd(t, b, "CCI")
	if _, err := b.SetTriggerType(1, indicator.Equals); !errors.Is(err, indicator.ErrFixedTriggerType) {
		t.Errorf("expected ErrFixedTriggerType, got %v", err)
	}
}

func TestBuilder_SetRiskSettings(t *testing.T) {
	b := newTestBuilder()
	b, err := b.SetRiskSettings(f(2.5), nil, f(100))
	if err != nil {
		t.Fatal(err)
	}
	r := b.Risk()
	if *r.TakeProfit != 2.5 || r.StopLoss != nil || *r.TradeAmount != 100 {
		t.Errorf("risk: %+v", r)
	}

	nb, err := b.SetRiskSettings(f(1), f(-0.5), nil)
	if !errors.Is(err, ErrNegativeRisk) || !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected ErrNegativeRisk, got %v", err)
	}
	if *nb.Risk().TakeProfit != 2.5 {
		t.Errorf("rejected risk edit was applied")
	}
}

func TestBuilder_SaveRequiresName(t *testing.T) {
	b := mustAdd(t, newTestBuilder().SelectMarket("ETH"), "EMA")
	for _, name := range []string{"", "   ", "\t\n"} {
		nb, _, err := b.Save(name)
		if !errors.Is(err, ErrInvalidName) {
			t.Errorf("Save(%q): expected ErrInvalidName, got %v", name, err)
		}
		if nb.State() != StateEditing || nb.ID() != "" {
			t.Errorf("Save(%q): failed save changed builder", name)
		}
	}
}

func TestBuilder_SaveRightAfterEditing(t *testing.T) {
	b := newTestBuilder().SelectMarket("SOL")
	_, s, err := b.Save("bare")
	if err != nil {
		t.Fatalf("save after first edit: %v", err)
	}
	if s.Indicators == nil || len(s.Indicators) != 0 {
		t.Errorf("indicators should be an empty list, got %#v", s.Indicators)
	}
}

func TestBuilder_ResaveKeepsIdentity(t *testing.T) {
	clock := fixedNow
	b := New(indicator.Builtin(),
		WithClock(func() time.Time { return clock }),
		WithIDGenerator(seqIDs()),
	)
	b = mustAdd(t, b, "RSI")
	b, first, err := b.Save("v1")
	if err != nil {
		t.Fatal(err)
	}

	clock = clock.Add(time.Hour)
	b, _ = b.SetParam(0, "period", 21)
	_, second, err := b.Save("v2")
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID || !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("re-save changed identity: %q@%v vs %q@%v", second.ID, second.CreatedAt, first.ID, first.CreatedAt)
	}
	if second.Name != "v2" {
		t.Errorf("name: %q", second.Name)
	}
}

func TestBuilder_LoadThenSaveRoundTrips(t *testing.T) {
	b := newTestBuilder().SelectMarket("BTC").SelectTimeframe("4h")
	b = mustAdd(t, b, "RSI")
	b = mustAdd(t, b, "SuperTrend")
	b, _ = b.SetThresholds(0, f(25), f(75))
	b, _ = b.SetParam(1, "multiplier", 2.3)
	b, _ = b.SetRiskSettings(f(3), f(1.2), f(250))
	_, orig, err := b.Save("roundtrip")
	if err != nil {
		t.Fatal(err)
	}
	orig = orig.WithActive(true)

	loaded := New(indicator.Builtin(), WithClock(func() time.Time { return fixedNow.Add(24 * time.Hour) })).Load(orig)
	if loaded.State() != StateEditing {
		t.Errorf("state after load: %s", loaded.State())
	}
	_, again, err := loaded.Save(orig.Name)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(again, orig) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", again, orig)
	}
}

func TestBuilder_LoadDetachesFromSource(t *testing.T) {
	b := mustAdd(t, newTestBuilder(), "RSI")
	_, s, _ := b.Save("src")

	loaded := newTestBuilder().Load(s)
	s.Indicators[0].Params[0].Value = 3

	inst, _ := loaded.Indicator(0)
	if v, _ := inst.Param("period"); v != 14 {
		t.Errorf("loaded builder shares state with source: %v", v)
	}
}

func TestStrategy_WithTradeSettings(t *testing.T) {
	s := Strategy{ID: "s1", Name: "x", CreatedAt: fixedNow}
	out, err := s.WithTradeSettings(RiskSettings{StopLoss: f(1)})
	if err != nil {
		t.Fatal(err)
	}
	if out.ID != "s1" || !out.CreatedAt.Equal(fixedNow) || *out.StopLoss != 1 {
		t.Errorf("unexpected copy: %+v", out)
	}
	if s.StopLoss != nil {
		t.Errorf("receiver mutated")
	}
	if _, err := s.WithTradeSettings(RiskSettings{TradeAmount: f(-1)}); !errors.Is(err, ErrNegativeRisk) {
		t.Errorf("expected ErrNegativeRisk, got %v", err)
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{StateEmpty: "empty", StateEditing: "editing", StateSaved: "saved", State(9): "unknown"} {
		if s.String() != want {
			t.Errorf("%d: got %q, want %q", s, s.String(), want)
		}
	}
}

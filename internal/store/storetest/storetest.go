// Package storetest holds the behaviour every store.Store backend must share.
// Backend test files call Run with a constructor for a fresh, empty store.
package storetest

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"cryptostrat/internal/indicator"
	"cryptostrat/internal/store"
	"cryptostrat/internal/strategy"
)

var base = time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

// Sample returns a fully populated strategy created n minutes after a fixed
// base time.
func Sample(t *testing.T, id string, n int) strategy.Strategy {
	t.Helper()
	cat := indicator.Builtin()
	ids := 0
	b := strategy.New(cat,
		strategy.WithClock(func() time.Time { return base.Add(time.Duration(n) * time.Minute) }),
		strategy.WithIDGenerator(func() string { ids++; return id + "-i" + string(rune('0'+ids)) }),
	).SelectMarket("BTC").SelectTimeframe("1h")

	var err error
	for _, name := range []string{"RSI", "SuperTrend", "OBV"} {
		if b, err = b.AddIndicator(name); err != nil {
			t.Fatal(err)
		}
	}
	if b, err = b.SetThresholds(0, f(25), f(75)); err != nil {
		t.Fatal(err)
	}
	if b, err = b.SetParam(1, "multiplier", 2.7); err != nil {
		t.Fatal(err)
	}
	if b, err = b.SetRiskSettings(f(3), nil, f(150)); err != nil {
		t.Fatal(err)
	}
	_, s, err := b.Save("strategy " + id)
	if err != nil {
		t.Fatal(err)
	}
	s.ID = id
	return s
}

// AssertEqual compares strategies, treating equal instants as equal times.
func AssertEqual(t *testing.T, got, want strategy.Strategy) {
	t.Helper()
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("created_at: got %v, want %v", got.CreatedAt, want.CreatedAt)
	}
	got.CreatedAt, want.CreatedAt = time.Time{}, time.Time{}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("strategy mismatch:\n got %+v\nwant %+v", got, want)
	}
}

// Run exercises newStore against the shared contract.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	ctx := context.Background()

	t.Run("EmptyList", func(t *testing.T) {
		s := newStore(t)
		list, err := s.List(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 0 {
			t.Errorf("expected empty store, got %d", len(list))
		}
	})

	t.Run("UpsertGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		want := Sample(t, "a", 0)
		if err := s.Upsert(ctx, want); err != nil {
			t.Fatal(err)
		}
		got, ok, err := s.Get(ctx, "a")
		if err != nil || !ok {
			t.Fatalf("Get: ok=%v err=%v", ok, err)
		}
		AssertEqual(t, got, want)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.Get(ctx, "nope")
		if err != nil || ok {
			t.Errorf("expected absent without error, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		s := newStore(t)
		for i, id := range []string{"old", "newest", "mid"} {
			n := []int{0, 20, 10}[i]
			if err := s.Upsert(ctx, Sample(t, id, n)); err != nil {
				t.Fatal(err)
			}
		}
		list, err := s.List(ctx)
		if err != nil {
			t.Fatal(err)
		}
		var ids []string
		for _, st := range list {
			ids = append(ids, st.ID)
		}
		if !reflect.DeepEqual(ids, []string{"newest", "mid", "old"}) {
			t.Errorf("order: %v", ids)
		}
	})

	t.Run("UpsertReplaces", func(t *testing.T) {
		s := newStore(t)
		orig := Sample(t, "r", 0)
		s.Upsert(ctx, orig)

		edited := orig.Clone()
		edited.Name = "renamed"
		edited.Indicators = edited.Indicators[:1]
		if err := s.Upsert(ctx, edited); err != nil {
			t.Fatal(err)
		}
		got, _, _ := s.Get(ctx, "r")
		AssertEqual(t, got, edited)
		list, _ := s.List(ctx)
		if len(list) != 1 {
			t.Errorf("upsert duplicated the row: %d", len(list))
		}
	})

	t.Run("SetActive", func(t *testing.T) {
		s := newStore(t)
		s.Upsert(ctx, Sample(t, "x", 0))
		if err := s.SetActive(ctx, "x", true); err != nil {
			t.Fatal(err)
		}
		got, _, _ := s.Get(ctx, "x")
		if !got.Active {
			t.Error("active flag not stored")
		}
		if err := s.SetActive(ctx, "missing", true); !errors.Is(err, store.ErrStrategyNotFound) {
			t.Errorf("expected ErrStrategyNotFound, got %v", err)
		}
	})

	t.Run("SetTradeSettings", func(t *testing.T) {
		s := newStore(t)
		orig := Sample(t, "x", 0)
		s.Upsert(ctx, orig)

		r := strategy.RiskSettings{StopLoss: f(0.7)}
		if err := s.SetTradeSettings(ctx, "x", r); err != nil {
			t.Fatal(err)
		}
		got, _, _ := s.Get(ctx, "x")
		if got.TakeProfit != nil || got.TradeAmount != nil || got.StopLoss == nil || *got.StopLoss != 0.7 {
			t.Errorf("risk settings: %+v", got.RiskSettings)
		}
		if got.Name != orig.Name || len(got.Indicators) != len(orig.Indicators) {
			t.Errorf("other fields changed")
		}

		if err := s.SetTradeSettings(ctx, "missing", r); !errors.Is(err, store.ErrStrategyNotFound) {
			t.Errorf("expected ErrStrategyNotFound, got %v", err)
		}
		bad := strategy.RiskSettings{TradeAmount: f(-5)}
		if err := s.SetTradeSettings(ctx, "x", bad); !errors.Is(err, strategy.ErrNegativeRisk) {
			t.Errorf("expected ErrNegativeRisk, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		s.Upsert(ctx, Sample(t, "d", 0))
		s.Upsert(ctx, Sample(t, "keep", 1))
		if err := s.Delete(ctx, "d"); err != nil {
			t.Fatal(err)
		}
		if _, ok, _ := s.Get(ctx, "d"); ok {
			t.Error("deleted strategy still present")
		}
		if err := s.Delete(ctx, "d"); err != nil {
			t.Errorf("second delete: %v", err)
		}
		list, _ := s.List(ctx)
		if len(list) != 1 || list[0].ID != "keep" {
			t.Errorf("list after delete: %v", list)
		}
	})

	t.Run("ReturnsCopies", func(t *testing.T) {
		s := newStore(t)
		s.Upsert(ctx, Sample(t, "c", 0))
		got, _, _ := s.Get(ctx, "c")
		got.Indicators[0].Params[0].Value = 999
		*got.TakeProfit = 99

		again, _, _ := s.Get(ctx, "c")
		if again.Indicators[0].Params[0].Value == 999 || *again.TakeProfit == 99 {
			t.Error("store shares memory with returned strategy")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := newStore(t).Ping(ctx); err != nil {
			t.Errorf("ping: %v", err)
		}
	})
}

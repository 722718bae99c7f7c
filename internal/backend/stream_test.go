package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"cryptostrat/internal/metrics"
)

func TestDecodeEvent(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name, msg, typ, symbol, data string
	}{
		{"typed with data", `{"type":"trade_update","data":{"symbol":"BTC","pnl":1.2}}`, "trade_update", "BTC", `{"symbol":"BTC","pnl":1.2}`},
		{"event key", `{"event":"signal","symbol":"ETH","side":"BUY"}`, "signal", "ETH", `{"event":"signal","symbol":"ETH","side":"BUY"}`},
		{"untyped object", `{"hello":1}`, "message", "", `{"hello":1}`},
		{"plain text", `connected`, EventText, "", ``},
		{"json array", `[1,2]`, EventText, "", ``},
		{"broken json", `{"type":`, EventText, "", ``},
	}
	for _, tc := range cases {
		ev := DecodeEvent([]byte(tc.msg), at)
		if ev.Type != tc.typ || ev.Symbol != tc.symbol || string(ev.Data) != tc.data {
			t.Errorf("%s: got type=%q symbol=%q data=%s", tc.name, ev.Type, ev.Symbol, ev.Data)
		}
		if string(ev.Raw) != tc.msg || !ev.ReceivedAt.Equal(at) {
			t.Errorf("%s: raw/time not kept", tc.name)
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestStream_DeliversEventsInOrder(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"signal","symbol":"BTC"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`live trade started`))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := Dial(ctx, StreamConfig{URL: wsURL(srv), Metrics: m})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var got []Event
	for ev := range s.Events() {
		got = append(got, ev)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != "signal" || got[0].Symbol != "BTC" {
		t.Errorf("first event: %+v", got[0])
	}
	if got[1].Type != EventText || string(got[1].Raw) != "live trade started" {
		t.Errorf("second event: %+v", got[1])
	}
	if s.Err() != nil {
		t.Errorf("normal close reported error: %v", s.Err())
	}
	if v := testutil.ToFloat64(m.StreamEvents.WithLabelValues("signal")); v != 1 {
		t.Errorf("signal events counted: %v", v)
	}
}

func TestStream_AbruptDisconnectSetsErr(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"trade_update"}`))
		conn.UnderlyingConn().Close()
	}))
	defer srv.Close()

	s, err := Dial(context.Background(), StreamConfig{URL: wsURL(srv)})
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for range s.Events() {
		n++
	}
	if n != 1 {
		t.Errorf("expected 1 event before disconnect, got %d", n)
	}
	if s.Err() == nil {
		t.Error("expected an error after abrupt disconnect")
	}
}

func TestStream_DialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := Dial(ctx, StreamConfig{URL: "ws://127.0.0.1:1/ws"}); err == nil {
		t.Error("expected dial error")
	}
}

func TestStream_CloseEndsEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	s, err := Dial(context.Background(), StreamConfig{URL: wsURL(srv)})
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	s.Close()

	select {
	case _, ok := <-s.Events():
		if ok {
			t.Error("unexpected event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed after Close")
	}
	if s.Err() != nil {
		t.Errorf("Close should not set Err, got %v", s.Err())
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"cryptostrat/internal/backend"
	"cryptostrat/internal/metrics"
	"cryptostrat/internal/notification"
	"cryptostrat/internal/ringbuf"
)

const alertTimeout = 10 * time.Second

// eventSink prints, records and alerts on stream events. Only health,
// history and notifier may be nil.
type eventSink struct {
	out        io.Writer
	asJSON     bool
	symbol     string
	health     *metrics.HealthStatus
	history    *ringbuf.Ring[backend.Event]
	notifier   notification.Notifier
	alertTypes []string

	wasConnected bool
}

// run consumes events until the channel is closed and returns how many
// were printed.
func (s *eventSink) run(ctx context.Context, events <-chan backend.Event) int {
	enc := json.NewEncoder(s.out)
	n := 0
	for ev := range events {
		if s.health != nil {
			s.health.SetLastEventTime(ev.ReceivedAt)
		}
		if s.symbol != "" && !strings.EqualFold(ev.Symbol, s.symbol) {
			continue
		}
		if s.history != nil {
			s.history.Push(ev)
		}
		n++
		if s.asJSON {
			enc.Encode(ev)
		} else {
			fmt.Fprintln(s.out, formatEvent(ev))
		}
		if alert, ok := alertFor(ev, s.alertTypes); ok {
			s.send(ctx, alert)
		}
	}
	return n
}

// connected tracks stream state and raises one alert per lost connection.
func (s *eventSink) connected(v bool) {
	if s.health != nil {
		s.health.SetStreamConnected(v)
	}
	if s.wasConnected && !v {
		s.send(context.Background(), notification.Alert{
			Level:   notification.AlertWarning,
			Title:   "stream disconnected",
			Message: "reconnecting to the backend stream",
			At:      time.Now(),
		})
	}
	s.wasConnected = v
}

func (s *eventSink) send(ctx context.Context, alert notification.Alert) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, alertTimeout)
	defer cancel()
	if err := s.notifier.Send(ctx, alert); err != nil {
		log.Printf("[livewatch] alert delivery failed: %v", err)
	}
}

// alertFor turns ev into an alert when its type is one of types.
func alertFor(ev backend.Event, types []string) (notification.Alert, bool) {
	if !slices.Contains(types, ev.Type) {
		return notification.Alert{}, false
	}
	level := notification.AlertInfo
	switch ev.Type {
	case "error":
		level = notification.AlertCritical
	case "trade_closed", "stop_loss":
		level = notification.AlertWarning
	}
	msg := string(ev.Data)
	if msg == "" {
		msg = string(ev.Raw)
	}
	return notification.Alert{
		Level:   level,
		Title:   ev.Type,
		Message: msg,
		Symbol:  ev.Symbol,
		At:      ev.ReceivedAt,
	}, true
}

func formatEvent(ev backend.Event) string {
	ts := ev.ReceivedAt.Local().Format("15:04:05.000")
	if ev.Type == backend.EventText {
		return fmt.Sprintf("%s  %-14s %s", ts, ev.Type, ev.Raw)
	}
	sym := ev.Symbol
	if sym == "" {
		sym = "-"
	}
	return fmt.Sprintf("%s  %-14s %-8s %s", ts, ev.Type, sym, ev.Data)
}

// eventsHandler serves the most recent events, oldest first. ?n= limits
// the count.
func eventsHandler(history *ringbuf.Ring[backend.Event]) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.URL.Query().Get("n"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(history.Last(n))
	})
}

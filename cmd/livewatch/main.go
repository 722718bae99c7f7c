// cmd/livewatch subscribes to the backend's live-trade stream and prints
// trade updates and signals as they arrive. It reconnects on its own,
// forwards selected events to the configured alert channels and exposes
// /metrics, /healthz and /events while running.
//
// Usage:
//
//	go run ./cmd/livewatch -symbol BTC -format json
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cryptostrat/config"
	"cryptostrat/internal/app"
	"cryptostrat/internal/backend"
	"cryptostrat/internal/metrics"
	"cryptostrat/internal/notification"
	"cryptostrat/internal/ringbuf"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	_ = godotenv.Load(".env")

	symbol := flag.String("symbol", "", "Only print events for this symbol")
	format := flag.String("format", "text", "Output format: text or json")
	flag.Parse()

	cfg := config.Load()
	a, err := app.Open(context.Background(), "livewatch", cfg, os.Stderr)
	if err != nil {
		log.Fatalf("[livewatch] init failed: %v", err)
	}
	defer a.Close()

	// ---- Metrics & health ----
	health := metrics.NewHealthStatus(cfg.StoreDriver)
	if br := a.Client.Breaker(); br != nil {
		prev := br.OnStateChange
		br.OnStateChange = func(from, to backend.BreakerState) {
			if prev != nil {
				prev(from, to)
			}
			health.SetBreakerState(to.String())
		}
	}
	history := ringbuf.New[backend.Event](cfg.EventHistory)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, a.Registry)
	metricsSrv.Handle("/events", eventsHandler(history))
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[livewatch] shutdown signal received")
		cancel()
	}()

	health.CheckStore(ctx, a.Store)
	health.StartLivenessChecker(ctx, a.Store, 10*time.Second)

	// ---- Current state before streaming ----
	if list, err := a.Service.Status(ctx, *symbol); err != nil {
		log.Printf("[livewatch] live status unavailable: %v", err)
	} else {
		log.Printf("[livewatch] %d live trade(s) running", len(list))
		for _, s := range list {
			log.Printf("[livewatch]   %s %s %s", s.Symbol, s.StrategyName, s.Status)
		}
	}

	// ---- Stream ----
	sink := &eventSink{
		out:        os.Stdout,
		asJSON:     *format == "json",
		symbol:     strings.ToUpper(*symbol),
		health:     health,
		history:    history,
		notifier:   buildNotifier(cfg, a),
		alertTypes: cfg.NotifyEvents,
	}
	watcher := backend.NewWatcher(backend.WatchConfig{Stream: a.StreamConfig()})
	watcher.OnConnect = sink.connected
	events := make(chan backend.Event, 256)
	go func() {
		watcher.Run(ctx, events)
		close(events)
	}()

	log.Printf("[livewatch] watching %s (symbol=%q, alerts on %v)", cfg.BackendWSURL, *symbol, cfg.NotifyEvents)
	n := sink.run(ctx, events)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	log.Printf("[livewatch] shutdown complete, %d events printed", n)
}

// buildNotifier always logs alerts and adds the webhook and Telegram
// channels when they are configured.
func buildNotifier(cfg *config.Config, a *app.App) notification.Notifier {
	multi := notification.Multi{notification.NewLogNotifier(a.Log)}
	if cfg.NotifyWebhookURL != "" {
		multi = append(multi, notification.NewWebhookNotifier(cfg.NotifyWebhookURL))
	}
	if cfg.TelegramBotToken != "" {
		multi = append(multi, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	return multi
}

package backend

import (
	"context"
	"log/slog"
	"time"
)

// WatchConfig configures a Watcher.
type WatchConfig struct {
	Stream StreamConfig

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *WatchConfig) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Watcher keeps a Stream open, redialing with exponential backoff whenever
// the connection drops.
type Watcher struct {
	cfg WatchConfig
	log *slog.Logger

	// Optional hooks.
	OnConnect   func(connected bool)
	OnReconnect func()
}

func NewWatcher(cfg WatchConfig) *Watcher {
	cfg.defaults()
	lg := cfg.Stream.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Watcher{cfg: cfg, log: lg.With("component", "watcher")}
}

// Run forwards events into out until ctx is cancelled. It does not close out.
func (w *Watcher) Run(ctx context.Context, out chan<- Event) error {
	delay := w.cfg.ReconnectDelay
	for {
		if ctx.Err() != nil {
			return nil
		}

		delivered, err := w.runOnce(ctx, out)
		if ctx.Err() != nil {
			return nil
		}
		if delivered {
			delay = w.cfg.ReconnectDelay
		}

		w.log.Warn("stream disconnected", "error", err, "retry_in", delay)
		if w.cfg.Stream.Metrics != nil {
			w.cfg.Stream.Metrics.StreamReconnects.Inc()
		}
		if w.OnReconnect != nil {
			w.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > w.cfg.MaxReconnectDelay {
			delay = w.cfg.MaxReconnectDelay
		}
	}
}

// runOnce reads one connection to its end. delivered reports whether any
// event arrived, which resets the backoff.
func (w *Watcher) runOnce(ctx context.Context, out chan<- Event) (delivered bool, err error) {
	s, err := Dial(ctx, w.cfg.Stream)
	if err != nil {
		return false, err
	}
	defer s.Close()
	w.setConnected(true)
	defer w.setConnected(false)

	for {
		select {
		case <-ctx.Done():
			return delivered, nil
		case ev, ok := <-s.Events():
			if !ok {
				return delivered, s.Err()
			}
			delivered = true
			select {
			case out <- ev:
			case <-ctx.Done():
				return delivered, nil
			}
		}
	}
}

func (w *Watcher) setConnected(v bool) {
	if w.OnConnect != nil {
		w.OnConnect(v)
	}
}

package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the strategy client.
type Metrics struct {
	// Backend REST calls, labelled by route name
	BackendRequestDur *prometheus.HistogramVec
	BackendErrors     *prometheus.CounterVec // labels: route, kind=status|transport|decode|circuit

	// Circuit breaker guarding the backend
	BreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	BreakerTrips prometheus.Counter

	// Streaming channel
	StreamEvents     *prometheus.CounterVec // labels: type
	StreamReconnects prometheus.Counter
	StreamConnected  prometheus.Gauge

	// Strategy store
	StoreOpDur  *prometheus.HistogramVec // labels: driver, op
	StoreErrors *prometheus.CounterVec   // labels: driver, op

	// Translation failures (unsupported or duplicate indicators)
	TranslateErrors prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BackendRequestDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stratclient_backend_request_duration_seconds",
			Help:    "Backend REST request latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"route"}),
		BackendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stratclient_backend_errors_total",
			Help: "Backend request failures by route and kind",
		}, []string{"route", "kind"}),

		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stratclient_backend_circuit_breaker_state",
			Help: "Backend circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		BreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratclient_backend_circuit_breaker_trips_total",
			Help: "Times the backend circuit breaker tripped open",
		}),

		StreamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stratclient_stream_events_total",
			Help: "Events received on the backend stream by type",
		}, []string{"type"}),
		StreamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratclient_stream_reconnects_total",
			Help: "Backend stream reconnection attempts",
		}),
		StreamConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stratclient_stream_connected",
			Help: "1 while the backend stream is connected",
		}),

		StoreOpDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stratclient_store_op_duration_seconds",
			Help:    "Strategy store operation latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"driver", "op"}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stratclient_store_errors_total",
			Help: "Strategy store operation failures",
		}, []string{"driver", "op"}),

		TranslateErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratclient_translate_errors_total",
			Help: "Strategies rejected while building a backend request",
		}),
	}

	reg.MustRegister(
		m.BackendRequestDur,
		m.BackendErrors,
		m.BreakerState,
		m.BreakerTrips,
		m.StreamEvents,
		m.StreamReconnects,
		m.StreamConnected,
		m.StoreOpDur,
		m.StoreErrors,
		m.TranslateErrors,
	)

	return m
}

// Pinger is a dependency whose liveness can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the client's health.
type HealthStatus struct {
	mu sync.RWMutex

	StreamConnected bool      `json:"stream_connected"`
	LastEventTime   time.Time `json:"last_event_time"`
	StoreDriver     string    `json:"store_driver"`
	StoreOK         bool      `json:"store_ok"`
	BreakerState    string    `json:"breaker_state"`

	StoreLatencyMs float64   `json:"store_latency_ms"`
	LastCheckAt    time.Time `json:"last_check_at"`
	StartedAt      time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(storeDriver string) *HealthStatus {
	return &HealthStatus{
		StoreDriver:  storeDriver,
		BreakerState: "closed",
		StartedAt:    time.Now(),
	}
}

func (h *HealthStatus) SetStreamConnected(v bool) {
	h.mu.Lock()
	h.StreamConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastEventTime(t time.Time) {
	h.mu.Lock()
	h.LastEventTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetBreakerState(s string) {
	h.mu.Lock()
	h.BreakerState = s
	h.mu.Unlock()
}

// CheckStore pings the strategy store and records latency + health.
func (h *HealthStatus) CheckStore(ctx context.Context, p Pinger) {
	start := time.Now()
	err := p.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.StoreOK = err == nil
	h.StoreLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, p Pinger, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if p != nil {
					h.CheckStore(probeCtx, p)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.StreamConnected || !h.StoreOK || h.BreakerState == "open" {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.StreamConnected && !h.StoreOK {
		overallStatus = "unhealthy"
	}

	eventAge := ""
	if !h.LastEventTime.IsZero() {
		eventAge = time.Since(h.LastEventTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		StreamConnected bool    `json:"stream_connected"`
		LastEventTime   string  `json:"last_event_time"`
		EventAge        string  `json:"event_age"`
		StoreDriver     string  `json:"store_driver"`
		StoreOK         bool    `json:"store_ok"`
		StoreLatencyMs  float64 `json:"store_latency_ms"`
		BreakerState    string  `json:"breaker_state"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		StreamConnected: h.StreamConnected,
		LastEventTime:   h.LastEventTime.Format(time.RFC3339),
		EventAge:        eventAge,
		StoreDriver:     h.StoreDriver,
		StoreOK:         h.StoreOK,
		StoreLatencyMs:  h.StoreLatencyMs,
		BreakerState:    h.BreakerState,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	mux    *http.ServeMux
	srv    *http.Server
}

// NewServer creates a metrics and health server. Metrics are served from g.
func NewServer(addr string, health *HealthStatus, g prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		mux:    mux,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Handle registers an extra route on the server. Call before Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Handler exposes the server's mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

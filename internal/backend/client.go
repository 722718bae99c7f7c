package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cryptostrat/internal/apperr"
	"cryptostrat/internal/logger"
	"cryptostrat/internal/metrics"
)

const defaultTimeout = 30 * time.Second

// TraceHeader carries the caller's trace id to the backend.
const TraceHeader = "X-Trace-Id"

var routes = map[string]string{
	"backtest":    "/api/backtest",
	"live.start":  "/api/live-trade/start",
	"live.status": "/api/live-trade/status",
	"live.stop":   "/api/live-trade/stop",
}

// Config configures a Client.
type Config struct {
	BaseURL    string        // e.g. http://localhost:8000
	Timeout    time.Duration // default: 30s
	HTTPClient *http.Client  // optional; Timeout is ignored when set
	Breaker    *Breaker      // optional
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Client calls the backend REST routes. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *Breaker
	metrics    *metrics.Metrics
	log        *slog.Logger
}

// StatusError is a non-2xx reply. Detail is the backend's own message when
// the body carried one.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Detail)
}

// NewClient creates a backend client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	lg := cfg.Logger
	if lg == nil {
		lg = slog.Default()
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: hc,
		breaker:    cfg.Breaker,
		metrics:    cfg.Metrics,
		log:        lg.With("component", "backend"),
	}
	if c.breaker != nil {
		c.watchBreaker()
	}
	return c
}

// Breaker returns the client's circuit breaker, or nil.
func (c *Client) Breaker() *Breaker { return c.breaker }

func (c *Client) watchBreaker() {
	prev := c.breaker.OnStateChange
	c.breaker.OnStateChange = func(from, to BreakerState) {
		c.log.Warn("circuit breaker transition", "from", from.String(), "to", to.String())
		if c.metrics != nil {
			c.metrics.BreakerState.Set(float64(to))
			if to == StateOpen {
				c.metrics.BreakerTrips.Inc()
			}
		}
		if prev != nil {
			prev(from, to)
		}
	}
}

// RunBacktest submits a backtest and waits for its result.
func (c *Client) RunBacktest(ctx context.Context, req BacktestRequest) (BacktestResponse, error) {
	var out BacktestResponse
	if err := c.do(ctx, http.MethodPost, "backtest", nil, req, &out); err != nil {
		return BacktestResponse{}, err
	}
	if out.Trades == nil {
		out.Trades = []Trade{}
	}
	return out, nil
}

// StartLiveTrade asks the backend to start trading a strategy.
func (c *Client) StartLiveTrade(ctx context.Context, req LiveTradeRequest) (Ack, error) {
	var out Ack
	err := c.do(ctx, http.MethodPost, "live.start", nil, req, &out)
	return out, err
}

// LiveTradeStatus lists running live trades, filtered to symbol when set.
func (c *Client) LiveTradeStatus(ctx context.Context, symbol string) ([]LiveTradeStatus, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "live.status", symbolQuery(symbol), nil, &raw); err != nil {
		return nil, err
	}
	list, err := decodeStatusList(raw)
	if err != nil {
		c.countError("live.status", "decode")
		return nil, apperr.Collaborator("backend live.status", err)
	}
	return list, nil
}

// StopLiveTrade stops the live trade for symbol, or all of them when empty.
func (c *Client) StopLiveTrade(ctx context.Context, symbol string) (Ack, error) {
	var out Ack
	err := c.do(ctx, http.MethodPost, "live.stop", symbolQuery(symbol), nil, &out)
	return out, err
}

func symbolQuery(symbol string) url.Values {
	if symbol == "" {
		return nil
	}
	return url.Values{"symbol": {symbol}}
}

func (c *Client) buildURL(route string, q url.Values) (string, error) {
	uri, ok := routes[route]
	if !ok {
		return "", fmt.Errorf("unknown route: %s", route)
	}
	u := c.baseURL + uri
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u, nil
}

// do performs one request. Transport failures and 5xx replies count
// against the breaker; 4xx replies do not, since retrying them cannot help.
func (c *Client) do(ctx context.Context, method, route string, q url.Values, in, out any) error {
	op := "backend " + route
	fullURL, err := c.buildURL(route, q)
	if err != nil {
		return apperr.Collaborator(op, err)
	}

	var payload []byte
	if in != nil {
		payload, err = json.Marshal(in)
		if err != nil {
			return apperr.Collaborator(op, fmt.Errorf("encode request: %w", err))
		}
	}

	start := time.Now()
	var raw []byte
	var clientErr error
	call := func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if tid := logger.TraceID(ctx); tid != "" {
			req.Header.Set(TraceHeader, tid)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return &StatusError{StatusCode: resp.StatusCode, Detail: errorDetail(raw)}
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			clientErr = &StatusError{StatusCode: resp.StatusCode, Detail: errorDetail(raw)}
		}
		return nil
	}

	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err == nil {
		err = clientErr
	}
	c.observe(route, start)

	attrs := append([]any{"route", route, "method", method, "elapsed", time.Since(start)}, logger.LogWithTrace(ctx)...)
	if err != nil {
		c.countError(route, errorKind(err))
		c.log.Warn("backend request failed", append(attrs, "error", err)...)
		return apperr.Collaborator(op, err)
	}
	c.log.Debug("backend request", attrs...)

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.countError(route, "decode")
		return apperr.Collaborator(op, fmt.Errorf("couldn't parse JSON response: %w", err))
	}
	return nil
}

func (c *Client) observe(route string, start time.Time) {
	if c.metrics != nil {
		c.metrics.BackendRequestDur.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func (c *Client) countError(route, kind string) {
	if c.metrics != nil {
		c.metrics.BackendErrors.WithLabelValues(route, kind).Inc()
	}
}

func errorKind(err error) string {
	var se *StatusError
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return "circuit"
	case errors.As(err, &se):
		return "status"
	default:
		return "transport"
	}
}

// errorDetail pulls a human message out of an error body. FastAPI style
// {"detail": "..."} and {"detail": [{"msg": "..."}]} are both handled.
func errorDetail(raw []byte) string {
	var body struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if len(body.Detail) > 0 {
			var s string
			if json.Unmarshal(body.Detail, &s) == nil {
				return s
			}
			var items []struct {
				Msg string `json:"msg"`
			}
			if json.Unmarshal(body.Detail, &items) == nil {
				msgs := make([]string, 0, len(items))
				for _, it := range items {
					if it.Msg != "" {
						msgs = append(msgs, it.Msg)
					}
				}
				if len(msgs) > 0 {
					return strings.Join(msgs, "; ")
				}
			}
			return string(body.Detail)
		}
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

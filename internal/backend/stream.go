package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cryptostrat/internal/apperr"
	"cryptostrat/internal/logger"
	"cryptostrat/internal/metrics"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultPongWait     = 60 * time.Second
	writeWait           = 10 * time.Second
)

// EventText is the type given to frames that are not JSON objects.
const EventText = "text"

// Event is one message from the backend stream. Data holds the "data"
// member when present, otherwise the whole JSON object.
type Event struct {
	Type       string          `json:"type"`
	Symbol     string          `json:"symbol,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Raw        []byte          `json:"-"`
	ReceivedAt time.Time       `json:"received_at"`
}

// StreamConfig configures Dial.
type StreamConfig struct {
	URL          string // ws://host/ws
	PingInterval time.Duration
	PongWait     time.Duration
	Buffer       int // event channel capacity, default 256
	Dialer       *websocket.Dialer
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Stream is a connected websocket subscription. Events are delivered on a
// channel owned by a single consumer; it is closed when the connection ends.
type Stream struct {
	conn    *websocket.Conn
	events  chan Event
	cfg     StreamConfig
	log     *slog.Logger
	done    chan struct{}
	closeMu sync.Once

	errMu sync.Mutex
	err   error
}

// Dial connects to the backend stream.
func Dial(ctx context.Context, cfg StreamConfig) (*Stream, error) {
	if cfg.PingInterval == 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongWait == 0 {
		cfg.PongWait = defaultPongWait
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	lg := cfg.Logger
	if lg == nil {
		lg = slog.Default()
	}

	header := http.Header{}
	if tid := logger.TraceID(ctx); tid != "" {
		header.Set(TraceHeader, tid)
	}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		return nil, apperr.Collaborator("backend stream dial", err)
	}

	s := &Stream{
		conn:   conn,
		events: make(chan Event, cfg.Buffer),
		cfg:    cfg,
		log:    lg.With("component", "stream"),
		done:   make(chan struct{}),
	}
	if cfg.Metrics != nil {
		cfg.Metrics.StreamConnected.Set(1)
	}
	s.log.Info("stream connected", "url", cfg.URL)

	go s.readPump()
	go s.pingPump()
	return s, nil
}

// Events returns the event channel.
func (s *Stream) Events() <-chan Event { return s.events }

// Err returns the error that ended the stream, or nil after Close.
func (s *Stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close ends the stream. It is safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeMu.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		err = s.conn.Close()
	})
	return err
}

func (s *Stream) readPump() {
	defer func() {
		close(s.events)
		s.Close()
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.StreamConnected.Set(0)
		}
	}()

	s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		mt, msg, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.setErr(apperr.Collaborator("backend stream read", err))
					s.log.Warn("stream read failed", "error", err)
				}
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))

		ev := DecodeEvent(msg, time.Now())
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.StreamEvents.WithLabelValues(ev.Type).Inc()
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *Stream) pingPump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.log.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

func (s *Stream) setErr(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

// DecodeEvent turns one frame into an Event. Objects are read for a type
// ("type", "event" or "event_type") and a symbol; anything else becomes a
// text event carrying the raw frame.
func DecodeEvent(msg []byte, at time.Time) Event {
	ev := Event{Raw: append([]byte(nil), msg...), ReceivedAt: at}

	trimmed := bytes.TrimSpace(msg)
	var obj map[string]json.RawMessage
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &obj) != nil {
		ev.Type = EventText
		return ev
	}

	for _, key := range []string{"type", "event", "event_type"} {
		if s := rawString(obj[key]); s != "" {
			ev.Type = s
			break
		}
	}
	if ev.Type == "" {
		ev.Type = "message"
	}

	if data, ok := obj["data"]; ok {
		ev.Data = data
		var inner map[string]json.RawMessage
		if json.Unmarshal(data, &inner) == nil {
			ev.Symbol = rawString(inner["symbol"])
		}
	} else {
		ev.Data = json.RawMessage(trimmed)
	}
	if s := rawString(obj["symbol"]); s != "" {
		ev.Symbol = s
	}
	return ev
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

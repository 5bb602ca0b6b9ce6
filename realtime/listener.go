// Package realtime subscribes to the backend's change feed over a websocket
// and hands decoded insert/update events to a caller-supplied handler. The
// cache core never subscribes itself — the handler is expected to call the
// per-entity optimistic helpers, which is exactly what
// research.Service.HandleEvent does.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nestfall/stash/retry"
)

// EventType discriminates pushed changes.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
)

// Event is one pushed change: the affected table and the row as raw JSON.
// The listener does not interpret Record; the handler knows the shape of the
// tables it cares about.
type Event struct {
	Type   EventType       `json:"type"`
	Table  string          `json:"table"`
	Record json.RawMessage `json:"record"`
}

// Handler receives each decoded event. It is called from the read loop, so
// it should be quick; optimistic cache patches are.
type Handler func(ctx context.Context, ev Event)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Listener maintains a subscription to one topic (typically "user:<id>"),
// reconnecting with exponential backoff when the connection drops.
type Listener struct {
	url     string
	token   string
	topic   string
	handler Handler

	log       *slog.Logger
	dialer    *websocket.Dialer
	reconnect retry.Config
}

// Option configures a Listener.
type Option func(*Listener)

// WithLogger sets the listener's logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Listener) { l.log = log }
}

// WithDialer overrides the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(l *Listener) { l.dialer = d }
}

// WithReconnect overrides the reconnect backoff configuration.
func WithReconnect(cfg retry.Config) Option {
	return func(l *Listener) { l.reconnect = cfg }
}

// NewListener creates a Listener for the given change-feed URL and topic.
// The token is sent as a bearer Authorization header on dial.
func NewListener(url, token, topic string, h Handler, opts ...Option) *Listener {
	l := &Listener{
		url:     url,
		token:   token,
		topic:   topic,
		handler: h,
		log:     slog.Default(),
		dialer:  websocket.DefaultDialer,
		reconnect: retry.Config{
			BaseDelay: time.Second,
			MaxDelay:  30 * time.Second,
			Jitter:    0.2,
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run dials, subscribes, and dispatches events until ctx is done, returning
// ctx.Err(). Connection drops are logged and retried with backoff; the
// backoff resets once a session delivers an event.
func (l *Listener) Run(ctx context.Context) error {
	attempt := 0
	for {
		delivered, err := l.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if delivered {
			attempt = 0
		}
		delay := retry.Backoff(l.reconnect, min(attempt, 8))
		attempt++
		l.log.Warn("realtime connection lost, reconnecting", "topic", l.topic, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// session runs one connection: dial, subscribe, read until failure. It
// reports whether at least one event was delivered.
func (l *Listener) session(ctx context.Context) (delivered bool, err error) {
	header := http.Header{}
	if l.token != "" {
		header.Set("Authorization", "Bearer "+l.token)
	}
	conn, resp, err := l.dialer.DialContext(ctx, l.url, header)
	if err != nil {
		return false, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	sub := map[string]string{"type": "subscribe", "topic": l.topic}
	if err := conn.WriteJSON(sub); err != nil {
		return false, err
	}
	l.log.Debug("realtime subscribed", "topic", l.topic)

	// Unblock the read loop when ctx is canceled, and keep the connection
	// alive with pings in the meantime.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return delivered, err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			l.log.Warn("realtime frame dropped: bad JSON", "error", err)
			continue
		}
		// Heartbeats and subscription acks carry no table.
		if ev.Type == "" || ev.Table == "" {
			continue
		}
		delivered = true
		l.dispatch(ctx, ev)
	}
}

// dispatch guards the handler: a panic in one event must not take down the
// subscription.
func (l *Listener) dispatch(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("realtime handler panicked", "table", ev.Table, "panic", r)
		}
	}()
	l.handler(ctx, ev)
}

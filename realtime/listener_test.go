package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nestfall/stash/retry"
)

// feedServer upgrades connections, records the subscribe frame, and pushes
// the given frames.
func feedServer(t *testing.T, frames []string) (*httptest.Server, *sync.Map) {
	t.Helper()
	var subs sync.Map
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var sub map[string]string
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subs.Store(sub["topic"], true)

		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return srv, &subs
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestListener_DispatchesEvents(t *testing.T) {
	frames := []string{
		`{"type":"ack"}`, // subscription ack: no table, must be skipped
		`{"type":"INSERT","table":"research","record":{"id":"r1"}}`,
		`{"type":"UPDATE","table":"research","record":{"id":"r1","status":"completed"}}`,
	}
	srv, subs := feedServer(t, frames)
	defer srv.Close()

	var mu sync.Mutex
	var got []Event
	events := make(chan struct{}, len(frames))
	l := NewListener(wsURL(srv), "tok", "user:42", func(_ context.Context, ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
		events <- struct{}{}
	})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	runDone := make(chan struct{})
	go func() {
		_ = l.Run(ctx)
		close(runDone)
	}()

	for range 2 {
		select {
		case <-events:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for events")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("dispatched %d events, want 2", len(got))
	}
	if got[0].Type != EventInsert || got[0].Table != "research" {
		t.Fatalf("first event = %+v", got[0])
	}
	var rec map[string]string
	if err := json.Unmarshal(got[1].Record, &rec); err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec["status"] != "completed" {
		t.Fatalf("second record = %v", rec)
	}
	if _, ok := subs.Load("user:42"); !ok {
		t.Fatal("expected a subscribe frame for user:42")
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
}

func TestListener_SkipsBadFrames(t *testing.T) {
	frames := []string{
		`{not json`,
		`{"type":"INSERT","table":"research","record":{"id":"r2"}}`,
	}
	srv, _ := feedServer(t, frames)
	defer srv.Close()

	events := make(chan Event, 2)
	l := NewListener(wsURL(srv), "tok", "user:1", func(_ context.Context, ev Event) {
		events <- ev
	})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	select {
	case ev := <-events:
		var rec map[string]string
		_ = json.Unmarshal(ev.Record, &rec)
		if rec["id"] != "r2" {
			t.Fatalf("event record = %v", rec)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the valid event")
	}
}

func TestListener_ReconnectsAfterDrop(t *testing.T) {
	// First session delivers one event then the server closes the
	// connection; the listener must come back and resubscribe.
	var mu sync.Mutex
	sessions := 0
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		sessions++
		n := sessions
		mu.Unlock()

		var sub map[string]string
		if err := conn.ReadJSON(&sub); err != nil {
			conn.Close()
			return
		}
		if n == 1 {
			_ = conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"type":"INSERT","table":"research","record":{"id":"r1"}}`))
			conn.Close() // drop
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"INSERT","table":"research","record":{"id":"r2"}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}))
	defer srv.Close()

	events := make(chan Event, 4)
	l := NewListener(wsURL(srv), "", "user:1", func(_ context.Context, ev Event) {
		events <- ev
	}, WithReconnect(retry.Config{BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case ev := <-events:
			var rec map[string]string
			_ = json.Unmarshal(ev.Record, &rec)
			seen[rec["id"]] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out; saw %v", seen)
		}
	}
	if !seen["r1"] || !seen["r2"] {
		t.Fatalf("expected events from both sessions, saw %v", seen)
	}
}

package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/nestfall/stash/contextx"
)

func TestClient_GetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/research" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("user_id"); got != "eq.42" {
			t.Errorf("user_id = %q, want eq.42", got)
		}
		if got := r.Header.Get("apikey"); got != "anon-key" {
			t.Errorf("apikey header = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer session-token" {
			t.Errorf("Authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode([]map[string]string{{"id": "r1"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon-key", WithTokenProvider(func(context.Context) (string, error) {
		return "session-token", nil
	}))

	var out []map[string]string
	q := url.Values{"user_id": {"eq.42"}}
	if err := c.GetJSON(t.Context(), "/rest/v1/research", q, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if len(out) != 1 || out[0]["id"] != "r1" {
		t.Fatalf("out = %v", out)
	}
}

func TestClient_PostRPC(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/rest/v1/rpc/get_user_research_history" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var args map[string]string
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			t.Errorf("decode args: %v", err)
		}
		if args["p_user_id"] != "42" {
			t.Errorf("args = %v", args)
		}
		_ = json.NewEncoder(w).Encode([]map[string]string{{"id": "r1"}, {"id": "r2"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon-key")

	var out []map[string]string
	err := c.PostRPC(t.Context(), "get_user_research_history", map[string]string{"p_user_id": "42"}, &out)
	if err != nil {
		t.Fatalf("PostRPC: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("out = %v, want 2 rows", out)
	}
}

func TestClient_PropagatesRequestID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Request-ID"); got != "req-7" {
			t.Errorf("X-Request-ID = %q, want req-7", got)
		}
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon-key")
	ctx := contextx.WithRequestID(t.Context(), "req-7")
	if err := c.GetJSON(ctx, "/rest/v1/research", nil, nil); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
}

func TestClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "relation does not exist", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon-key")
	err := c.GetJSON(t.Context(), "/rest/v1/missing", nil, nil)

	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if he.Status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", he.Status)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", &HTTPError{Status: 502}, true},
		{"rate limited", &HTTPError{Status: 429}, true},
		{"not found", &HTTPError{Status: 404}, false},
		{"bad request", &HTTPError{Status: 400}, false},
		{"transport error", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("connection refused")}, true},
		{"plain error", errors.New("nope"), false},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Errorf("%s: Retryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

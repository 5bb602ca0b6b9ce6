package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nestfall/stash/contextx"
)

// TokenProvider supplies the bearer token attached to backend requests. It
// is called per request so a refreshed session token is picked up without
// rebuilding the client.
type TokenProvider func(ctx context.Context) (string, error)

// Client is a thin JSON client for the hosted backend: direct table queries
// via GetJSON and server-side aggregation procedures via PostRPC.
type Client struct {
	baseURL string
	apiKey  string
	hc      *http.Client
	token   TokenProvider
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.hc = hc }
}

// WithTokenProvider sets the per-request bearer-token source. Without one the
// API key doubles as the bearer token.
func WithTokenProvider(tp TokenProvider) ClientOption {
	return func(c *Client) { c.token = tp }
}

// NewClient creates a backend client rooted at baseURL.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		hc:      &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON issues a GET against path with the given query and decodes the
// response body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// PostRPC invokes a server-side procedure by name with the given JSON
// arguments and decodes the response into out.
func (c *Client) PostRPC(ctx context.Context, name string, args any, out any) error {
	body, err := json.Marshal(args)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/v1/rpc/"+name, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("apikey", c.apiKey)
	if id := contextx.RequestIDFromContext(req.Context()); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	tok := c.apiKey
	if c.token != nil {
		t, err := c.token(req.Context())
		if err != nil {
			return fmt.Errorf("resolve bearer token: %w", err)
		}
		tok = t
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &HTTPError{Status: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// HTTPError is a non-2xx backend response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Body)
}

// Retryable classifies errors for the retry helper: server-side failures and
// transient network errors are worth retrying, client errors are not.
func Retryable(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status >= 500 || he.Status == http.StatusTooManyRequests
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	// url.Error wraps connection-level failures (refused, reset).
	var ue *url.Error
	return errors.As(err, &ue)
}

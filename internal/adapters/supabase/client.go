// Package supabase talks to a hosted Supabase project: PostgREST for rows
// and stored procedures, GoTrue for password sign-in. Calls made with a
// context carrying an identity use that identity's access token, so the
// project's row-level security decides what each caller may read or change.
package supabase

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

	"messageboard/internal/adapters/http/perf"
	"messageboard/internal/domain/identity"
)

// DefaultTimeout bounds every remote call.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Config configures a Client.
type Config struct {
	URL        string // project URL, e.g. https://xyz.supabase.co
	AnonKey    string
	Timeout    time.Duration
	Collector  *perf.Collector
	HTTPClient *http.Client // optional; Timeout is ignored when set
}

// Client is a minimal Supabase REST client.
type Client struct {
	base      *url.URL
	anonKey   string
	http      *http.Client
	collector *perf.Collector
}

// APIError is a non-2xx response from PostgREST or GoTrue.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase: %d: %s", e.Status, e.Message)
}

// New creates a Client.
// PRE: cfg.URL is an absolute http(s) URL; cfg.AnonKey is non-empty
// POST: Returns a ready client or a configuration error
func New(cfg Config) (*Client, error) {
	if cfg.AnonKey == "" {
		return nil, errors.New("supabase: anon key is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("supabase: invalid project URL %q", cfg.URL)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{base: base, anonKey: cfg.AnonKey, http: hc, collector: cfg.Collector}, nil
}

// request describes one call.
type request struct {
	method string
	path   string // e.g. "/rest/v1/messages"
	query  url.Values
	body   any
	prefer string
	token  string // bearer override; empty means caller identity or anon key
}

// bearer picks the token for ctx: the caller's access token when signed in,
// otherwise the anon key.
func (c *Client) bearer(ctx context.Context) string {
	if id, ok := identity.FromContext(ctx); ok && id.AccessToken != "" {
		return id.AccessToken
	}
	return c.anonKey
}

// do sends r and decodes a JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, r request, out any) error {
	u := *c.base
	u.Path = c.base.Path + r.path
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("supabase: encode %s %s: %w", r.method, r.path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return fmt.Errorf("supabase: build request: %w", err)
	}
	token := r.token
	if token == "" {
		token = c.bearer(ctx)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.prefer != "" {
		req.Header.Set("Prefer", r.prefer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	c.record(r.method+" "+r.path, status, start, err)
	if err != nil {
		return fmt.Errorf("supabase: %s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("supabase: decode %s %s: %w", r.method, r.path, err)
	}
	return nil
}

func (c *Client) record(path string, status int, start time.Time, err error) {
	durationMs := float64(time.Since(start).Microseconds()) / 1000.0
	if err != nil || status >= 400 {
		slog.Warn("remote_call", "path", path, "status", status, "duration_ms", durationMs)
	} else {
		slog.Debug("remote_call", "path", path, "status", status, "duration_ms", durationMs)
	}
	if c.collector != nil {
		c.collector.Record(perf.Entry{
			Kind:       perf.KindRemote,
			Path:       path,
			StatusCode: status,
			DurationMs: durationMs,
			Timestamp:  start,
		})
	}
}

// errorBody covers both PostgREST ({code, message}) and GoTrue
// ({error, error_description} or {error_code, msg}) error shapes.
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	Message          string          `json:"message"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Status: resp.StatusCode}

	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		var code string
		if len(eb.Code) > 0 && json.Unmarshal(eb.Code, &code) != nil {
			code = ""
		}
		apiErr.Code = firstNonEmpty(eb.ErrorCode, code, eb.Error)
		apiErr.Message = firstNonEmpty(eb.Message, eb.ErrorDescription, eb.Msg)
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

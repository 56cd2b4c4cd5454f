// Package client is the HTTP transport to the TimeForged daemon.
//
// Every call issues exactly one request bounded by a fixed deadline. There
// is no retry and no caching. Response bodies are read in full before the
// status is inspected so that error messages can carry them verbatim.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/timeforged/timeforged-mcp/internal/config"
	"github.com/timeforged/timeforged-mcp/internal/observe"
)

// Timeout bounds every backend request, including reading the body.
const Timeout = 10 * time.Second

// APIKeyHeader carries the configured API key.
const APIKeyHeader = "X-Api-Key"

// ErrTimeout is wrapped by errors returned when a request exceeds its
// deadline.
var ErrTimeout = errors.New("request timed out")

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// RequestOptions tunes a single request. The zero value is a bodyless GET.
type RequestOptions struct {
	Method  string
	Body    []byte
	Headers map[string]string // applied last; may override the defaults
}

// Response is a successful reply. Either the body is valid JSON (IsJSON)
// or it is kept as raw text. The body is only decoded on demand.
type Response struct {
	StatusCode int
	IsJSON     bool

	body []byte
}

// Text returns the body exactly as received.
func (r *Response) Text() string {
	return string(r.body)
}

// Value returns the generic decoding of a JSON body, or the raw text when
// the body is not JSON.
func (r *Response) Value() any {
	if !r.IsJSON {
		return r.Text()
	}
	var v any
	_ = json.Unmarshal(r.body, &v)
	return v
}

// Decode unmarshals a JSON body into v. A raw-text body is an error since
// there are no fields to read from it.
func (r *Response) Decode(v any) error {
	if !r.IsJSON {
		return fmt.Errorf("unexpected non-JSON response: %q", truncate(r.Text(), 200))
	}
	if err := json.Unmarshal(r.body, v); err != nil {
		return fmt.Errorf("unexpected response shape: %w", err)
	}
	return nil
}

// Client talks to one TimeForged server. It holds only immutable settings
// and is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	metrics *observe.Metrics
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithMetrics records request counts and latency into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New returns a Client for cfg.ServerURL, authenticating with cfg.APIKey
// when it is non-empty.
func New(cfg config.Config, opts ...Option) *Client {
	c := &Client{
		baseURL: cfg.ServerURL,
		apiKey:  cfg.APIKey,
		timeout: Timeout,
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured server URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Get issues a GET for path, which may include a query string.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Send(ctx, path, RequestOptions{})
}

// PostJSON marshals payload and POSTs it to path.
func (c *Client) PostJSON(ctx context.Context, path string, payload any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return c.Send(ctx, path, RequestOptions{Method: http.MethodPost, Body: body})
}

// Send issues one request to baseURL+path. The URL is a plain
// concatenation; path must be well formed.
//
// Non-2xx responses return an *HTTPError. Exceeding the deadline returns
// an error wrapping ErrTimeout. A 2xx body that is not JSON is returned as
// raw text rather than failing.
func (c *Client) Send(ctx context.Context, path string, opts RequestOptions) (resp *Response, err error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	route := routeOf(path)
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := observe.StartSpan(ctx, "HTTP "+method+" "+route,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(method),
			semconv.URLPath(route),
		),
	)
	defer func() {
		status := "ok"
		var httpErr *HTTPError
		switch {
		case err == nil:
		case errors.Is(err, ErrTimeout):
			status = "timeout"
		case errors.As(err, &httpErr):
			status = "http_error"
		default:
			status = "error"
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		}
		span.End()

		elapsed := time.Since(start)
		if c.metrics != nil {
			c.metrics.RecordBackendRequest(ctx, method, route, status, elapsed.Seconds())
		}
		observe.Logger(ctx).Debug("backend request",
			"method", method, "path", route, "status", status, "duration", elapsed)
	}()

	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, c.classify(ctx, fmt.Errorf("read response body: %w", err))
	}
	span.SetAttributes(semconv.HTTPResponseStatusCode(httpResp.StatusCode))

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: httpResp.StatusCode, Body: string(raw)}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		IsJSON:     json.Valid(raw),
		body:       raw,
	}, nil
}

// classify turns a deadline expiry into ErrTimeout and leaves other
// failures wrapped as they are.
func (c *Client) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
	}
	return fmt.Errorf("request failed: %w", err)
}

// routeOf drops the query string so metrics and spans stay low-cardinality.
func routeOf(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}

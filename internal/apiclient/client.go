// Package apiclient issues single requests against the restaurant REST API.
// Callers above it never deal with base URLs, auth headers or body encoding.
package apiclient

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

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/restaurant-admin/internal/obs"
	"github.com/noah-isme/restaurant-admin/internal/resilience"
)

// ContentTypeJSON is sent by the order endpoints.
const ContentTypeJSON = "application/json"

// maxErrorBody caps how much of a failed response is kept on StatusError.
const maxErrorBody = 4 << 10

// Doer executes a prepared request. resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	HTTPClient  *http.Client
	Timeout     time.Duration
	MaxAttempts int
	Breaker     *resilience.Breaker
	Logger      zerolog.Logger
	Metrics     *obs.APIMetrics
}

// Client is the HTTP client wrapper shared by every hook.
type Client struct {
	baseURL string
	doer    Doer
	logger  zerolog.Logger
	metrics *obs.APIMetrics
}

// New builds a Client from opts. BaseURL is required.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("apiclient: base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	breaker := opts.Breaker
	if breaker == nil {
		breaker = resilience.NewBreaker(resilience.BreakerConfig{MinRequests: 10, OpenFor: 30 * time.Second, Logger: opts.Logger})
	}
	return &Client{
		baseURL: base,
		doer: resilience.HTTPClient{
			Client:      httpClient,
			Breaker:     breaker,
			MaxAttempts: opts.MaxAttempts,
			Timeout:     opts.Timeout,
			Jitter:      0.2,
		},
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

// NewWithDoer builds a Client around a custom Doer, mainly for tests.
func NewWithDoer(baseURL string, doer Doer, logger zerolog.Logger) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), doer: doer, logger: logger}
}

// NewHTTPClient returns an http.Client whose transport emits OpenTelemetry
// client spans and propagates trace headers.
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// BaseURL returns the API root requests are resolved against.
func (c *Client) BaseURL() string { return c.baseURL }

// Request describes one API call.
type Request struct {
	// Operation names the call in logs, metrics and spans.
	Operation   string
	Method      string
	Path        string
	Token       string
	ContentType string
	Body        io.Reader
}

// Response is a fully read 2xx response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the response body into dst.
func (r *Response) DecodeJSON(dst any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return ErrEmptyBody
	}
	if err := json.Unmarshal(r.Body, dst); err != nil {
		return fmt.Errorf("apiclient: decode response: %w", err)
	}
	return nil
}

// Do issues req and reads the whole response. Transport failures come back as
// *TransportError, non-2xx statuses as *StatusError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	op := req.Operation
	if op == "" {
		op = req.Method + " " + req.Path
	}
	ctx, span := otel.Tracer("apiclient").Start(ctx, op)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("api.path", req.Path),
	)

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, req.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("apiclient: build request: %w", err)
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	logger := c.logger.With().Str("operation", op).Str("method", req.Method).Str("path", req.Path).Logger()
	start := time.Now()
	resp, err := c.doer.Do(ctx, httpReq)
	if err != nil {
		c.metrics.ObserveRequest(op, "transport_error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		logger.Warn().Err(err).Int64("duration_ms", time.Since(start).Milliseconds()).Msg("api_request_failed")
		return nil, &TransportError{Operation: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if err != nil {
		c.metrics.ObserveRequest(op, "transport_error", duration)
		span.RecordError(err)
		return nil, &TransportError{Operation: op, Err: fmt.Errorf("read body: %w", err)}
	}

	evt := logger.Debug()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		evt = logger.Warn()
	}
	evt.Int("status", resp.StatusCode).Int64("duration_ms", duration.Milliseconds()).Msg("api_request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.ObserveRequest(op, "http_"+statusClass(resp.StatusCode), duration)
		span.SetStatus(codes.Error, resp.Status)
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &StatusError{Operation: op, Method: req.Method, Path: req.Path, StatusCode: resp.StatusCode, Body: body}
	}
	c.metrics.ObserveRequest(op, "ok", duration)
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// JSONBody encodes v for use as Request.Body.
func JSONBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("apiclient: encode body: %w", err)
	}
	return bytes.NewReader(data), nil
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

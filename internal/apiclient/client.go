// Package apiclient is a thin JSON client for the remote product/auth API.
//
// All calls go through Do, which builds the absolute URL, merges headers,
// encodes the body, classifies the status and decodes the response. Typed
// endpoints (Login, CurrentUser, FetchProducts) are built on top of it.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AnnaKryuchkova/product-console/internal/errs"
	"github.com/AnnaKryuchkova/product-console/internal/metrics"
)

// DefaultBaseURL is the public demo service.
const DefaultBaseURL = "https://dummyjson.com"

// Config configures a Client. Zero values get sensible defaults.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
	// Metrics is optional; nil disables instrumentation.
	Metrics *metrics.Client
	// Transport overrides the base round-tripper (tests).
	Transport http.RoundTripper
}

// Client executes requests against one base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// New creates a Client. The transport chain is
// request id → logging → metrics → base transport.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	base := cfg.Transport
	if base == nil {
		base = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}
	var rt http.RoundTripper = base
	if cfg.Metrics != nil {
		rt = &instrumentedTransport{next: rt, m: cfg.Metrics}
	}
	rt = &loggingTransport{next: rt, log: cfg.Logger}
	rt = &requestIDTransport{next: rt}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: rt},
		log:        cfg.Logger,
	}
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// RequestOption customises the outgoing headers. Options run after the
// defaults, so they win on conflict.
type RequestOption func(h http.Header)

// WithHeader sets a single header.
func WithHeader(key, value string) RequestOption {
	return func(h http.Header) { h.Set(key, value) }
}

// WithBearer sets "Authorization: Bearer <token>".
func WithBearer(token string) RequestOption {
	return func(h http.Header) { h.Set("Authorization", "Bearer "+token) }
}

// HTTPError is returned for any status outside 200–299.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// Is maps auth and lookup failures onto the shared sentinels.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case errs.ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case errs.ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// StatusOf returns the HTTP status carried by err, or 0 if there is none.
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}

// Get issues a GET request and decodes the response into T.
func Get[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (T, error) {
	return Do[T](ctx, c, http.MethodGet, path, nil, opts...)
}

// Post issues a POST request with body.
func Post[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	return Do[T](ctx, c, http.MethodPost, path, body, opts...)
}

// Put issues a PUT request with body.
func Put[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	return Do[T](ctx, c, http.MethodPut, path, body, opts...)
}

// Patch issues a PATCH request with body.
func Patch[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	return Do[T](ctx, c, http.MethodPatch, path, body, opts...)
}

// Do is the single request executor behind the verb helpers.
//
// A 204 resolves to the zero T. Any other 2xx body that does not decode into
// T yields an error wrapping errs.ErrMalformedResponse.
func Do[T any](ctx context.Context, c *Client, method, path string, body any, opts ...RequestOption) (T, error) {
	var zero T

	payload, err := encodeBody(body)
	if err != nil {
		return zero, fmt.Errorf("%s %s: encode body: %w", method, path, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for _, o := range opts {
		o(req.Header)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return zero, decodeHTTPError(resp)
	}
	if resp.StatusCode == http.StatusNoContent {
		return zero, nil
	}

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return zero, fmt.Errorf("%s %s: %w: %v", method, path, errs.ErrMalformedResponse, err)
	}
	return out, nil
}

func encodeBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case io.Reader:
		return b, nil
	case []byte:
		return bytes.NewReader(b), nil
	case string:
		return strings.NewReader(b), nil
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(raw), nil
	}
}

// decodeHTTPError picks the first available message: body "message",
// status-line text, the standard status text, then a generic fallback.
func decodeHTTPError(resp *http.Response) *HTTPError {
	var body struct {
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return &HTTPError{Status: resp.StatusCode, Message: body.Message}
	}
	if text := statusLineText(resp); text != "" {
		return &HTTPError{Status: resp.StatusCode, Message: text}
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return &HTTPError{Status: resp.StatusCode, Message: text}
	}
	return &HTTPError{Status: resp.StatusCode, Message: "Request failed"}
}

// resp.Status looks like "404 Not Found"; keep the text after the code.
func statusLineText(resp *http.Response) string {
	return strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
}

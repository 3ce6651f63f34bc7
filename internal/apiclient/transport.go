package apiclient

import (
	"net/http"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/AnnaKryuchkova/product-console/internal/metrics"
)

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-ID"

type requestIDTransport struct {
	next http.RoundTripper
}

func (t *requestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(HeaderRequestID) != "" {
		return t.next.RoundTrip(req)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return t.next.RoundTrip(req)
	}
	// RoundTripper must not mutate the caller's request
	r := req.Clone(req.Context())
	r.Header.Set(HeaderRequestID, id.String())
	return t.next.RoundTrip(r)
}

type loggingTransport struct {
	next http.RoundTripper
	log  *zap.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)

	// никаких пейлоадов и токенов, только метаданные
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Duration("dur", time.Since(start)),
		zap.String("request_id", req.Header.Get(HeaderRequestID)),
	}
	if err != nil {
		t.log.Warn("api", append(fields, zap.Error(err))...)
		return resp, err
	}
	fields = append(fields, zap.Int("status", resp.StatusCode))
	if resp.StatusCode >= 500 {
		t.log.Warn("api", fields...)
	} else {
		t.log.Debug("api", fields...)
	}
	return resp, nil
}

type instrumentedTransport struct {
	next http.RoundTripper
	m    *metrics.Client
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.m.InFlight.Inc()
	defer t.m.InFlight.Dec()

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	code := 0
	if err == nil {
		code = resp.StatusCode
	}
	t.m.Observe(req.Method, req.URL.Path, code, time.Since(start))
	return resp, err
}

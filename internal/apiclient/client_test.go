package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/AnnaKryuchkova/product-console/internal/errs"
	"github.com/AnnaKryuchkova/product-console/internal/metrics"
	"github.com/AnnaKryuchkova/product-console/internal/model"
)

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return New(Config{BaseURL: ts.URL})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type echo struct {
	Name string `json:"name"`
}

func TestGet_DecodesAndSetsHeaders(t *testing.T) {
	t.Parallel()
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/things", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get(HeaderRequestID))
		_, _ = w.Write([]byte(`{"name":"widget"}`))
	})

	got, err := Get[echo](context.Background(), c, "/things")
	require.NoError(t, err)
	assert.Equal(t, "widget", got.Name)
}

func TestOptions_OverrideDefaults(t *testing.T) {
	t.Parallel()
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		assert.Equal(t, "fixed-id", r.Header.Get(HeaderRequestID))
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := Get[echo](context.Background(), c, "/",
		WithHeader("Content-Type", "text/plain"),
		WithBearer("abc"),
		WithHeader(HeaderRequestID, "fixed-id"),
	)
	require.NoError(t, err)
}

func TestBodyEncoding(t *testing.T) {
	t.Parallel()
	var seen []string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = append(seen, r.Method+" "+string(b))
		_, _ = w.Write([]byte(`{}`))
	})
	ctx := context.Background()

	_, err := Post[echo](ctx, c, "/", echo{Name: "a"})
	require.NoError(t, err)
	_, err = Put[echo](ctx, c, "/", map[string]int{"n": 1})
	require.NoError(t, err)
	_, err = Patch[echo](ctx, c, "/", `{"raw":true}`)
	require.NoError(t, err)
	_, err = Post[echo](ctx, c, "/", []byte("bytes"))
	require.NoError(t, err)
	_, err = Post[echo](ctx, c, "/", strings.NewReader("reader"))
	require.NoError(t, err)
	_, err = Post[echo](ctx, c, "/", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		`POST {"name":"a"}`,
		`PUT {"n":1}`,
		`PATCH {"raw":true}`,
		`POST bytes`,
		`POST reader`,
		`POST `,
	}, seen)
}

func TestNoContent_ReturnsZero(t *testing.T) {
	t.Parallel()
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	got, err := Get[echo](context.Background(), c, "/")
	require.NoError(t, err)
	assert.Equal(t, echo{}, got)
}

func TestMalformedSuccessBody(t *testing.T) {
	t.Parallel()
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops`))
	})
	_, err := Get[echo](context.Background(), c, "/")
	require.ErrorIs(t, err, errs.ErrMalformedResponse)
	assert.Zero(t, StatusOf(err))
}

func TestHTTPError_Message(t *testing.T) {
	t.Parallel()
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"Invalid credentials"}`))
		case "/text":
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte(`not json`))
		case "/empty-message":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":""}`))
		}
	})
	ctx := context.Background()

	_, err := Get[echo](ctx, c, "/json")
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, 400, he.Status)
	assert.Equal(t, "Invalid credentials", he.Message)

	_, err = Get[echo](ctx, c, "/text")
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusTeapot, he.Status)
	assert.Equal(t, "I'm a teapot", he.Message)

	_, err = Get[echo](ctx, c, "/empty-message")
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "Internal Server Error", he.Message)
}

func TestHTTPError_MessageFallbackChain(t *testing.T) {
	t.Parallel()
	cases := []struct {
		status string
		code   int
		want   string
	}{
		{status: "499 Client Went Away", code: 499, want: "Client Went Away"},
		{status: "", code: http.StatusNotFound, want: "Not Found"},
		{status: "", code: 599, want: "Request failed"},
	}
	for _, tc := range cases {
		c := New(Config{BaseURL: "http://api.test", Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return &http.Response{
				Status:     tc.status,
				StatusCode: tc.code,
				Header:     http.Header{},
				Body:       io.NopCloser(strings.NewReader("")),
				Request:    r,
			}, nil
		})})
		_, err := Get[echo](context.Background(), c, "/")
		var he *HTTPError
		require.ErrorAs(t, err, &he)
		assert.Equal(t, tc.want, he.Message, "status %d", tc.code)
	}
}

func TestHTTPError_Sentinels(t *testing.T) {
	t.Parallel()
	assert.ErrorIs(t, &HTTPError{Status: 401}, errs.ErrUnauthorized)
	assert.ErrorIs(t, &HTTPError{Status: 403}, errs.ErrUnauthorized)
	assert.ErrorIs(t, &HTTPError{Status: 404}, errs.ErrNotFound)
	assert.NotErrorIs(t, &HTTPError{Status: 500}, errs.ErrUnauthorized)
	assert.NotErrorIs(t, &HTTPError{Status: 500}, errs.ErrNotFound)
	assert.Equal(t, 404, StatusOf(&HTTPError{Status: 404}))
}

func TestTransportFailure(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := New(Config{BaseURL: url})
	_, err := Get[echo](context.Background(), c, "/products")
	require.Error(t, err)
	assert.Zero(t, StatusOf(err))
	assert.Contains(t, err.Error(), "GET /products")
}

func TestLogin_And_CurrentUser(t *testing.T) {
	t.Parallel()
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/auth/login":
			var in model.LoginRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, model.LoginRequest{Username: "emilys", Password: "emilyspass", ExpiresInMins: 60}, in)
			_, _ = w.Write([]byte(`{"id":1,"username":"emilys","firstName":"Emily","accessToken":"a","refreshToken":"r"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/auth/me":
			if r.Header.Get("Authorization") != "Bearer a" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"message":"Invalid/expired Token!"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":1,"username":"emilys","firstName":"Emily"}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	})
	ctx := context.Background()

	resp, err := c.Login(ctx, model.LoginRequest{Username: "emilys", Password: "emilyspass", ExpiresInMins: 60})
	require.NoError(t, err)
	tokens, user := resp.Split()
	assert.Equal(t, "a", tokens.AccessToken)
	assert.Equal(t, "r", tokens.RefreshToken)
	assert.Equal(t, "Emily", user.FirstName)

	me, err := c.CurrentUser(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), me.ID)

	_, err = c.CurrentUser(ctx, "stale")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestProductsPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "/products?limit=10&order=asc&skip=20&sortBy=title",
		ProductsPath(model.ProductQuery{SortBy: model.SortByTitle, Order: model.SortAsc, Limit: 10, Skip: 20}))
	assert.Equal(t, "/products/search?limit=10&order=desc&q=phone&skip=0&sortBy=price",
		ProductsPath(model.ProductQuery{Search: "  phone ", SortBy: model.SortByPrice, Order: model.SortDesc, Limit: 10}))
	assert.Equal(t, "/products?limit=10&skip=0",
		ProductsPath(model.ProductQuery{Search: "   ", Limit: 10}))
}

func TestFetchProducts(t *testing.T) {
	t.Parallel()
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/search", r.URL.Path)
		assert.Equal(t, "lamp", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"products":[{"id":7,"title":"Lamp","price":12.5}],"total":1,"skip":0,"limit":10}`))
	})
	page, err := c.FetchProducts(context.Background(), model.ProductQuery{Search: "lamp", Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Products, 1)
	assert.Equal(t, "Lamp", page.Products[0].Title)
	assert.Equal(t, 1, page.Total)
}

func TestTransports_LogAndMeasure(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zapcore.DebugLevel)
	reg := prometheus.NewRegistry()
	m := metrics.NewClient(reg)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(ts.Close)
	c := New(Config{BaseURL: ts.URL, Logger: zap.New(core), Metrics: m})

	_, err := Get[echo](context.Background(), c, "/auth/me", WithBearer("secret-token"))
	require.NoError(t, err)

	entries := logs.FilterMessage("api").All()
	require.Len(t, entries, 1)
	ctxMap := entries[0].ContextMap()
	assert.Equal(t, "/auth/me", ctxMap["path"])
	assert.EqualValues(t, 200, ctxMap["status"])
	assert.NotEmpty(t, ctxMap["request_id"])
	for _, v := range ctxMap {
		if s, ok := v.(string); ok {
			assert.NotContains(t, s, "secret-token")
		}
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/auth/me", "200")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlight))
}

func TestTransportFailure_IsNotHTTPError(t *testing.T) {
	t.Parallel()
	boom := errors.New("dial refused")
	c := New(Config{BaseURL: "http://api.test", Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, boom
	})})
	_, err := Get[echo](context.Background(), c, "/products")
	require.ErrorIs(t, err, boom)
	var he *HTTPError
	assert.False(t, errors.As(err, &he))
}

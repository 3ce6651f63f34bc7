package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnnaKryuchkova/product-console/internal/config"
	"github.com/AnnaKryuchkova/product-console/internal/service"
	"github.com/AnnaKryuchkova/product-console/internal/tokenstore"
)

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			_, _ = w.Write([]byte(`{"id":1,"username":"emilys","firstName":"Emily","accessToken":"secret-access","refreshToken":"r"}`))
		case "/auth/me":
			_, _ = w.Write([]byte(`{"id":1,"username":"emilys","firstName":"Emily"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func testConfig(t *testing.T, apiURL string, env map[string]string) *config.Config {
	t.Helper()
	base := map[string]string{
		"PC_API_BASE_URL":            apiURL,
		"PC_TOKEN_STORE_DIR":         filepath.Join(t.TempDir(), "cfg"),
		"PC_TOKEN_STORE_SESSION_DIR": filepath.Join(t.TempDir(), "run"),
	}
	for k, v := range env {
		base[k] = v
	}
	cfg, err := config.LoadFrom(base)
	require.NoError(t, err)
	return cfg
}

func TestNew_FileBackend_LoginSurvivesRestart(t *testing.T) {
	ts := fakeAPI(t)
	cfg := testConfig(t, ts.URL, nil)
	ctx := context.Background()

	a, err := New(ctx, cfg, Options{})
	require.NoError(t, err)
	a.Session.Init(ctx)
	_, err = a.Session.Login(ctx, "emilys", "emilyspass", true)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	raw, err := os.ReadFile(filepath.Join(cfg.TokenStore.Dir, tokenstore.Key+".json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "secret-access", "unsealed store keeps plain JSON")

	b, err := New(ctx, cfg, Options{})
	require.NoError(t, err)
	defer b.Close()
	b.Session.Init(ctx)
	assert.Equal(t, service.StateAuthenticated, b.Session.State())
	assert.True(t, b.Session.Persistent())
}

func TestNew_Sealed(t *testing.T) {
	ts := fakeAPI(t)
	cfg := testConfig(t, ts.URL, map[string]string{"PC_TOKEN_STORE_SEAL": "true"})
	ctx := context.Background()

	a, err := New(ctx, cfg, Options{})
	require.NoError(t, err)
	defer a.Close()
	a.Session.Init(ctx)
	_, err = a.Session.Login(ctx, "emilys", "emilyspass", false)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(cfg.TokenStore.SessionDir, tokenstore.Key+".json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-access")
	_, err = os.Stat(filepath.Join(cfg.TokenStore.Dir, keyFile))
	require.NoError(t, err)

	loaded := a.Tokens.Load(ctx)
	require.NotNil(t, loaded.Tokens)
	assert.Equal(t, "secret-access", loaded.Tokens.AccessToken)
}

func TestNew_SealedWithPassphrase(t *testing.T) {
	ts := fakeAPI(t)
	cfg := testConfig(t, ts.URL, map[string]string{
		"PC_TOKEN_STORE_SEAL":       "true",
		"PC_TOKEN_STORE_PASSPHRASE": "correct horse",
	})
	ctx := context.Background()

	a, err := New(ctx, cfg, Options{})
	require.NoError(t, err)
	defer a.Close()
	a.Session.Init(ctx)
	_, err = a.Session.Login(ctx, "emilys", "emilyspass", true)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(cfg.TokenStore.Dir, saltFile))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.TokenStore.Dir, keyFile))
	assert.True(t, os.IsNotExist(err))

	// another passphrase cannot read the cached tokens
	cfg.TokenStore.Passphrase = "wrong"
	b, err := New(ctx, cfg, Options{})
	require.NoError(t, err)
	defer b.Close()
	assert.Nil(t, b.Tokens.Load(ctx).Tokens)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t, "http://localhost", map[string]string{"PC_TOKEN_STORE_BACKEND": "etcd"})
	_, err := New(context.Background(), cfg, Options{})
	require.Error(t, err)
}

func TestServeMetrics(t *testing.T) {
	ts := fakeAPI(t)
	cfg := testConfig(t, ts.URL, map[string]string{"PC_TOKEN_STORE_BACKEND": "memory"})
	ctx := context.Background()

	a, err := New(ctx, cfg, Options{})
	require.NoError(t, err)
	defer a.Close()
	addr, err := a.ServeMetrics("127.0.0.1:0")
	require.NoError(t, err)

	a.Session.Init(ctx)
	_, err = a.Session.Login(ctx, "emilys", "emilyspass", false)
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(body), `route="/auth/login"`), "login request is counted")
}

func TestNewProductList_UsesConfig(t *testing.T) {
	cfg := testConfig(t, "http://localhost", map[string]string{"PC_PAGE_SIZE": "25", "PC_TOKEN_STORE_BACKEND": "memory"})
	a, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)
	defer a.Close()

	l := a.NewProductList()
	defer l.Close()
	assert.Equal(t, 25, l.Snapshot().PageSize)
}

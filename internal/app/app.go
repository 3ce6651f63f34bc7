// Package app builds the console's object graph from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/AnnaKryuchkova/product-console/internal/apiclient"
	"github.com/AnnaKryuchkova/product-console/internal/config"
	"github.com/AnnaKryuchkova/product-console/internal/crypto/clientcrypto"
	"github.com/AnnaKryuchkova/product-console/internal/form"
	"github.com/AnnaKryuchkova/product-console/internal/metrics"
	"github.com/AnnaKryuchkova/product-console/internal/migrate"
	"github.com/AnnaKryuchkova/product-console/internal/notify"
	"github.com/AnnaKryuchkova/product-console/internal/service"
	"github.com/AnnaKryuchkova/product-console/internal/storage"
	"github.com/AnnaKryuchkova/product-console/internal/storage/postgres"
	redisstore "github.com/AnnaKryuchkova/product-console/internal/storage/redis"
	"github.com/AnnaKryuchkova/product-console/internal/tokenstore"
)

const (
	keyFile  = "token.key"
	saltFile = "token.salt"
)

// App holds one console session's collaborators.
type App struct {
	Config    *config.Config
	Log       *zap.Logger
	Registry  *prometheus.Registry
	Metrics   *metrics.Client
	API       *apiclient.Client
	Tokens    *tokenstore.Store
	Session   *service.Session
	Notifier  notify.Notifier
	Validator *form.Validator

	closers []func() error
}

// Options carries the pieces the caller owns.
type Options struct {
	Logger   *zap.Logger
	Notifier notify.Notifier
	// Transport replaces the HTTP base transport (tests).
	Transport http.RoundTripper
}

// New connects the token backends and builds the client and session.
// The session is not initialised; call Session.Init.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop
	}

	a := &App{
		Config:    cfg,
		Log:       log,
		Notifier:  notifier,
		Validator: form.New(),
	}

	session, persistent, err := a.backends(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Tokens = tokenstore.New(session, persistent, log.Named("tokenstore"))

	a.Registry = metrics.NewRegistry()
	a.Metrics = metrics.NewClient(a.Registry)
	a.API = apiclient.New(apiclient.Config{
		BaseURL:   cfg.APIBaseURL,
		Timeout:   cfg.HTTPTimeout,
		Logger:    log.Named("api"),
		Metrics:   a.Metrics,
		Transport: opts.Transport,
	})
	a.Session = service.NewSession(a.API, a.Tokens, service.SessionConfig{
		SessionLengthMins: cfg.SessionLengthMins,
		Notifier:          notifier,
		Logger:            log.Named("session"),
	})
	return a, nil
}

// NewProductList builds a listing controller bound to this app's client.
func (a *App) NewProductList() *service.ProductList {
	return service.NewProductList(a.API, service.ListConfig{
		PageSize:       a.Config.PageSize,
		SearchDebounce: a.Config.SearchDebounce,
		Notifier:       a.Notifier,
		Logger:         a.Log.Named("products"),
	})
}

func (a *App) backends(ctx context.Context) (storage.Backend, storage.Backend, error) {
	ts := a.Config.TokenStore
	var session storage.Backend = storage.NewDir(ts.SessionDir)

	var persistent storage.Backend
	switch ts.Backend {
	case config.BackendFile:
		persistent = storage.NewDir(ts.Dir)
	case config.BackendMemory:
		persistent = storage.NewMemory()
	case config.BackendRedis:
		client, err := redisstore.Connect(ctx, a.Config.Redis, a.Log.Named("redis"))
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, client.Close)
		persistent = redisstore.NewStore(client, a.Config.Redis.Prefix)
	case config.BackendPostgres:
		if err := migrate.Up(ctx, a.Config.Postgres.DSN, a.Log.Named("migrate")); err != nil {
			return nil, nil, err
		}
		db, err := postgres.New(ctx, a.Config.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() error { db.Close(); return nil })
		persistent = postgres.NewKV(db, ts.Namespace)
	default:
		return nil, nil, fmt.Errorf("unknown token store backend %q", ts.Backend)
	}

	if !ts.Seal {
		return session, persistent, nil
	}
	key, err := sealingKey(ts)
	if err != nil {
		return nil, nil, err
	}
	sealedSession, err := storage.NewSealed(session, key)
	if err != nil {
		return nil, nil, err
	}
	sealedPersistent, err := storage.NewSealed(persistent, key)
	if err != nil {
		return nil, nil, err
	}
	return sealedSession, sealedPersistent, nil
}

// sealingKey derives the key from the passphrase when one is configured,
// otherwise reads (or creates) the random key file next to the token store.
func sealingKey(ts config.TokenStoreConfig) ([]byte, error) {
	if ts.Passphrase != "" {
		salt, err := clientcrypto.LoadOrCreateSalt(filepath.Join(ts.Dir, saltFile))
		if err != nil {
			return nil, fmt.Errorf("sealing salt: %w", err)
		}
		return clientcrypto.DeriveKey([]byte(ts.Passphrase), salt), nil
	}
	key, err := clientcrypto.LoadOrCreateKey(filepath.Join(ts.Dir, keyFile))
	if err != nil {
		return nil, fmt.Errorf("sealing key: %w", err)
	}
	return key, nil
}

// ServeMetrics exposes /metrics on addr until Close. It returns the bound
// address, which differs from addr when addr uses port 0.
func (a *App) ServeMetrics(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.Registry))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Error("metrics server", zap.Error(err))
		}
	}()
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	a.Log.Info("metrics listening", zap.String("addr", ln.Addr().String()))
	return ln.Addr().String(), nil
}

// Close releases backend connections and stops the metrics server.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

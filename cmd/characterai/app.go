package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"ai-agent-character-demo/characterai-client/characterai"
	"ai-agent-character-demo/characterai-client/pkg/cache"
	"ai-agent-character-demo/characterai-client/pkg/config"
	"ai-agent-character-demo/characterai-client/pkg/health"
	"ai-agent-character-demo/characterai-client/pkg/logger"
	"ai-agent-character-demo/characterai-client/pkg/secrets"
	"ai-agent-character-demo/characterai-client/shared/observability"
)

// app holds everything a command needs, built once per invocation
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	client  *characterai.Client
	secrets secrets.Manager
	checker *health.Checker

	store     cache.Store
	closers   []func(context.Context) error
	metricSrv *http.Server
}

func newApp(cfg *config.Config, stderr io.Writer) (*app, error) {
	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format == "json"
	logConfig.Output = stderr
	log := logger.New(logConfig)

	a := &app{cfg: cfg, log: log}

	if cfg.Observability.TracingEnabled {
		shutdown, err := observability.SetupTracing(cfg.Observability.ServiceName, stderr)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, shutdown)
	}

	var mux *http.ServeMux
	if cfg.Observability.MetricsAddr != "" {
		mux = http.NewServeMux()
		mp, err := observability.SetupPrometheusMetrics(mux)
		if err != nil {
			a.close(context.Background())
			return nil, err
		}
		a.closers = append(a.closers, mp.Shutdown)
	}

	if err := a.setupCache(); err != nil {
		a.close(context.Background())
		return nil, err
	}

	vaultManager, err := secrets.NewVaultManager(secrets.VaultConfigFromEnv(), log)
	if err != nil {
		a.close(context.Background())
		return nil, fmt.Errorf("failed to initialize secrets: %w", err)
	}
	a.secrets = vaultManager

	a.client = characterai.NewClientFromConfig(cfg, log, a.store)
	a.setupHealth()

	if mux != nil {
		mux.Handle("/healthz", a.checker.HTTPHandler())
		a.serveMetrics(mux)
	}
	return a, nil
}

func (a *app) setupCache() error {
	if !a.cfg.Cache.Enabled {
		return nil
	}
	if a.cfg.Cache.RedisURL != "" {
		store, err := cache.NewRedisStore(a.cfg.Cache.RedisURL, "characterai:")
		if err != nil {
			return fmt.Errorf("failed to initialize redis cache: %w", err)
		}
		a.store = store
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		return nil
	}

	store := cache.NewMemoryStore(cache.Options{
		MaxItems:        a.cfg.Cache.MaxSize,
		CleanupInterval: a.cfg.Cache.PurgeWindow,
	})
	a.store = store
	a.closers = append(a.closers, func(context.Context) error { store.Close(); return nil })
	return nil
}

// setupHealth probes the service through an uncached client so a cached
// category list cannot hide an outage.
func (a *app) setupHealth() {
	a.checker = health.NewChecker(a.log, time.Minute)
	probe := characterai.NewClientFromConfig(a.cfg, a.log, nil)
	a.checker.RegisterRemoteCheck("categories", func(ctx context.Context) error {
		_, err := probe.FetchCategories(ctx)
		return err
	})
	a.checker.RegisterSessionCheck(a.client.Authenticated)
	if p, ok := a.store.(health.Pinger); ok {
		a.checker.RegisterCacheCheck(p)
	}
}

func (a *app) serveMetrics(mux *http.ServeMux) {
	a.metricSrv = &http.Server{
		Addr:              a.cfg.Observability.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.log.Info("Metrics server starting", "addr", a.metricSrv.Addr)
		if err := a.metricSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.LogError(err, "Metrics server failed")
		}
	}()
	a.closers = append(a.closers, a.metricSrv.Shutdown)
}

// authenticate exchanges the configured access token for a session key
func (a *app) authenticate(ctx context.Context) error {
	token, err := secrets.AccessToken(ctx, a.secrets)
	if err != nil {
		if a.cfg.Auth.AccessToken == "" {
			return fmt.Errorf("no access token configured (set %s): %w", secrets.EnvKey(secrets.AccessTokenKey), err)
		}
		token = a.cfg.Auth.AccessToken
	}
	return a.client.Authenticate(ctx, token)
}

// chat authenticates and opens the history with characterID
func (a *app) chat(ctx context.Context, characterID string) (*characterai.Chat, error) {
	if characterID == "" {
		characterID = a.cfg.Auth.CharacterID
	}
	if characterID == "" {
		return nil, errors.New("no character given (use --character or CHARACTERAI_CHARID)")
	}
	if err := a.authenticate(ctx); err != nil {
		return nil, err
	}
	return a.client.ContinueOrCreateChat(ctx, characterID)
}

// close releases resources in reverse order of creation
func (a *app) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.LogError(err, "Shutdown step failed")
		}
	}
	a.closers = nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Sternrassler/tmdb-discover-gateway/pkg/cache"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/config"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/discover"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/fanart"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/logging"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/scheduler"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/tmdb"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/trakt"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/upstream"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "discover-proxy: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logFile := logging.Setup(cfg.Logging())
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info().Str("backend", cfg.CacheBackend).Msg("Cache store ready")

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()
	newUpstream := func(sc scheduler.Config, baseURL string) (*upstream.Client, error) {
		sched, err := scheduler.New(sc, logger)
		if err != nil {
			return nil, fmt.Errorf("%s scheduler: %w", sc.Name, err)
		}
		closers = append(closers, sched.Close)

		uc := upstream.DefaultConfig(baseURL)
		uc.Retry.MaxAttempts = cfg.UpstreamMaxAttempts
		return upstream.New(uc, sched, logger)
	}

	tmdbHTTP, err := newUpstream(cfg.TMDBScheduler(), cfg.TMDBBaseURL)
	if err != nil {
		return err
	}

	gatewayCfg := discover.DefaultConfig()
	gatewayCfg.CatalogTTL = cfg.CatalogTTL()
	gatewayCfg.DefaultRegion = cfg.TMDBWatchRegion
	gatewayCfg.DefaultLanguage = cfg.TMDBLanguage
	gatewayCfg.Prefetch.PageCount = cfg.PrefetchPageCount
	gatewayCfg.Prefetch.TTL = cfg.CatalogTTL()
	gateway := discover.New(store, tmdb.New(tmdbHTTP, cfg.TMDBBearerToken), gatewayCfg, logger)

	srv := &server{
		gateway:        gateway,
		store:          store,
		logger:         logging.NewLogger("http"),
		watchedEmoji:   cfg.TraktWatchedEmoji,
		requestTimeout: 60 * time.Second,
	}

	if cfg.TraktEnabled() {
		history, err := trakt.OpenPostgresHistoryStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		closers = append(closers, history.Close)

		get, err := newUpstream(cfg.TraktGetScheduler(), cfg.TraktBaseURL)
		if err != nil {
			return err
		}
		post, err := newUpstream(cfg.TraktPostScheduler(), cfg.TraktBaseURL)
		if err != nil {
			return err
		}
		srv.traktClient = trakt.New(get, post, cfg.TraktClientID)
		srv.history = history
		srv.syncer = trakt.NewSyncer(srv.traktClient, history, cfg.TraktHistoryFetchInterval, logger)
		logger.Info().Msg("Trakt history enabled")
	}

	if cfg.FanartEnabled() {
		fanartHTTP, err := newUpstream(cfg.FanartScheduler(), cfg.FanartBaseURL)
		if err != nil {
			return err
		}
		srv.logos = fanart.New(fanartHTTP, store, cfg.FanartAPIKey, cfg.LogoTTL(), logger)
		logger.Info().Msg("Fanart logos enabled")
	}

	go cache.RunSweeper(ctx, store, cfg.SweepInterval, logging.NewLogger("sweeper"))

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("Starting discover gateway")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Graceful shutdown incomplete")
	}
	waitPrefetch(shutdownCtx, gateway, logger)
	return nil
}

// openStore connects the configured cache backend.
func openStore(ctx context.Context, cfg config.Config) (cache.Store, error) {
	if cfg.CacheBackend == config.BackendRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisURL, err)
		}
		return cache.NewRedisStore(client, cfg.RedisPrefix), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	store, err := cache.OpenSQLiteStore(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	return store, nil
}

// waitPrefetch lets running prefetches finish until ctx expires.
func waitPrefetch(ctx context.Context, gateway *discover.Gateway, logger zerolog.Logger) {
	done := make(chan struct{})
	go func() {
		gateway.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn().Msg("Prefetches still running at shutdown")
	}
}

// Package config loads the gateway configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/tmdb-discover-gateway/pkg/logging"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/scheduler"
	"github.com/caarlos0/env/v11"
)

// Cache backends.
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config is the complete gateway configuration.
type Config struct {
	Port            string        `env:"PORT"             envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	LogLevel   string `env:"LOG_LEVEL"  envDefault:"info"`
	LogPretty  bool   `env:"LOG_PRETTY" envDefault:"false"`
	LogFile    string `env:"LOG_FILE"`
	LogMaxSize int    `env:"LOG_MAX_SIZE_MB" envDefault:"20"`

	CacheBackend  string        `env:"CACHE_BACKEND"        envDefault:"sqlite"`
	RedisURL      string        `env:"REDIS_URL"            envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB"             envDefault:"0"`
	RedisPrefix   string        `env:"REDIS_PREFIX"         envDefault:"gateway:"`
	SQLitePath    string        `env:"SQLITE_PATH"          envDefault:"data/cache.db"`
	SweepInterval time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"24h"`

	CatalogTTLDays    int `env:"CACHE_CATALOG_CONTENT_DURATION_DAYS" envDefault:"3"`
	LogoTTLDays       int `env:"CACHE_LOGO_DURATION_DAYS"            envDefault:"1"`
	PrefetchPageCount int `env:"PREFETCH_PAGE_COUNT"                 envDefault:"5"`

	TMDBBaseURL        string        `env:"TMDB_BASE_URL"        envDefault:"https://api.themoviedb.org/3"`
	TMDBBearerToken    string        `env:"TMDB_BEARER_TOKEN"`
	TMDBLanguage       string        `env:"TMDB_LANGUAGE"        envDefault:"en-US"`
	TMDBWatchRegion    string        `env:"TMDB_WATCH_REGION"`
	TMDBReservoir      int           `env:"TMDB_RESERVOIR"       envDefault:"50"`
	TMDBRefillInterval time.Duration `env:"TMDB_REFILL_INTERVAL" envDefault:"1s"`
	TMDBMaxConcurrent  int           `env:"TMDB_MAX_CONCURRENT"  envDefault:"20"`

	PostgresDSN               string        `env:"POSTGRES_DSN"`
	TraktBaseURL              string        `env:"TRAKT_BASE_URL"                envDefault:"https://api.trakt.tv"`
	TraktClientID             string        `env:"TRAKT_CLIENT_ID"`
	TraktReservoir            int           `env:"TRAKT_RESERVOIR"               envDefault:"1000"`
	TraktRefillInterval       time.Duration `env:"TRAKT_REFILL_INTERVAL"         envDefault:"5m"`
	TraktMaxConcurrent        int           `env:"TRAKT_MAX_CONCURRENT"          envDefault:"10"`
	TraktPostMinInterval      time.Duration `env:"TRAKT_POST_MIN_INTERVAL"       envDefault:"1s"`
	TraktHistoryFetchInterval time.Duration `env:"TRAKT_HISTORY_FETCH_INTERVAL"  envDefault:"24h"`
	TraktWatchedEmoji         string        `env:"TRAKT_WATCHED_EMOJI"           envDefault:"✔️"`

	FanartBaseURL        string        `env:"FANART_BASE_URL"        envDefault:"https://webservice.fanart.tv/v3"`
	FanartAPIKey         string        `env:"FANART_API_KEY"`
	FanartReservoir      int           `env:"FANART_RESERVOIR"       envDefault:"10"`
	FanartRefillInterval time.Duration `env:"FANART_REFILL_INTERVAL" envDefault:"1s"`
	FanartMaxConcurrent  int           `env:"FANART_MAX_CONCURRENT"  envDefault:"5"`

	UpstreamMaxAttempts int `env:"UPSTREAM_MAX_ATTEMPTS" envDefault:"1"`
}

// Load parses the process environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadFrom parses environ instead of the process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error

	switch c.CacheBackend {
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis backend"))
		}
	case BackendSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("CACHE_BACKEND must be %q or %q (got %q)", BackendRedis, BackendSQLite, c.CacheBackend))
	}

	positive := map[string]int{
		"CACHE_CATALOG_CONTENT_DURATION_DAYS": c.CatalogTTLDays,
		"CACHE_LOGO_DURATION_DAYS":            c.LogoTTLDays,
		"UPSTREAM_MAX_ATTEMPTS":               c.UpstreamMaxAttempts,
	}
	for name, v := range positive {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0 (got %d)", name, v))
		}
	}
	if c.PrefetchPageCount < 0 {
		errs = append(errs, fmt.Errorf("PREFETCH_PAGE_COUNT must be >= 0 (got %d)", c.PrefetchPageCount))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_SWEEP_INTERVAL must be > 0 (got %s)", c.SweepInterval))
	}

	for _, sc := range []scheduler.Config{c.TMDBScheduler(), c.TraktGetScheduler(), c.TraktPostScheduler(), c.FanartScheduler()} {
		if err := sc.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s scheduler: %w", sc.Name, err))
		}
	}

	return errors.Join(errs...)
}

// CatalogTTL is the lifetime of cached discover pages.
func (c Config) CatalogTTL() time.Duration {
	return time.Duration(c.CatalogTTLDays) * 24 * time.Hour
}

// LogoTTL is the lifetime of cached logo choices.
func (c Config) LogoTTL() time.Duration {
	return time.Duration(c.LogoTTLDays) * 24 * time.Hour
}

// TraktEnabled reports whether history annotation is configured.
func (c Config) TraktEnabled() bool {
	return c.PostgresDSN != "" && c.TraktClientID != ""
}

// FanartEnabled reports whether logo lookups are configured.
func (c Config) FanartEnabled() bool {
	return c.FanartAPIKey != ""
}

func (c Config) TMDBScheduler() scheduler.Config {
	cfg := scheduler.DefaultConfig("tmdb")
	cfg.ReservoirSize = c.TMDBReservoir
	cfg.RefillInterval = c.TMDBRefillInterval
	cfg.MaxConcurrent = c.TMDBMaxConcurrent
	return cfg
}

func (c Config) TraktGetScheduler() scheduler.Config {
	cfg := scheduler.DefaultConfig("trakt_get")
	cfg.ReservoirSize = c.TraktReservoir
	cfg.RefillInterval = c.TraktRefillInterval
	cfg.MaxConcurrent = c.TraktMaxConcurrent
	return cfg
}

// TraktPostScheduler paces writes one at a time. Its reservoir never binds
// before the pacing does.
func (c Config) TraktPostScheduler() scheduler.Config {
	cfg := scheduler.DefaultConfig("trakt_post")
	cfg.ReservoirSize = 60
	cfg.RefillInterval = time.Minute
	cfg.MaxConcurrent = 1
	cfg.MinInterval = c.TraktPostMinInterval
	return cfg
}

func (c Config) FanartScheduler() scheduler.Config {
	cfg := scheduler.DefaultConfig("fanart")
	cfg.ReservoirSize = c.FanartReservoir
	cfg.RefillInterval = c.FanartRefillInterval
	cfg.MaxConcurrent = c.FanartMaxConcurrent
	return cfg
}

// Logging returns the logger configuration.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	cfg.File = c.LogFile
	if c.LogMaxSize > 0 {
		cfg.MaxSizeMB = c.LogMaxSize
	}
	return cfg
}

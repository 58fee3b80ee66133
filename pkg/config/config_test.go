package config

import (
	"testing"
	"time"

	"github.com/Sternrassler/tmdb-discover-gateway/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendSQLite, cfg.CacheBackend)
	assert.Equal(t, 5, cfg.PrefetchPageCount)
	assert.Equal(t, 72*time.Hour, cfg.CatalogTTL())
	assert.Equal(t, 24*time.Hour, cfg.LogoTTL())
	assert.Equal(t, 24*time.Hour, cfg.SweepInterval)
	assert.Equal(t, 1, cfg.UpstreamMaxAttempts)
	assert.Equal(t, "en-US", cfg.TMDBLanguage)
	assert.Equal(t, "✔️", cfg.TraktWatchedEmoji)
	assert.False(t, cfg.TraktEnabled())
	assert.False(t, cfg.FanartEnabled())
}

func TestLoadFrom_Schedulers(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"TMDB_RESERVOIR":       "40",
		"TMDB_REFILL_INTERVAL": "2s",
	})
	require.NoError(t, err)

	tmdb := cfg.TMDBScheduler()
	assert.Equal(t, "tmdb", tmdb.Name)
	assert.Equal(t, 40, tmdb.ReservoirSize)
	assert.Equal(t, 2*time.Second, tmdb.RefillInterval)
	assert.Equal(t, 20, tmdb.MaxConcurrent)

	get := cfg.TraktGetScheduler()
	assert.Equal(t, 1000, get.ReservoirSize)
	assert.Equal(t, 5*time.Minute, get.RefillInterval)
	assert.Equal(t, 10, get.MaxConcurrent)

	post := cfg.TraktPostScheduler()
	assert.Equal(t, 1, post.MaxConcurrent)
	assert.Equal(t, time.Second, post.MinInterval)

	fanart := cfg.FanartScheduler()
	assert.Equal(t, 10, fanart.ReservoirSize)
	assert.Equal(t, 5, fanart.MaxConcurrent)
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"CACHE_BACKEND":                       "redis",
		"REDIS_URL":                           "cache:6379",
		"REDIS_DB":                            "2",
		"CACHE_CATALOG_CONTENT_DURATION_DAYS": "7",
		"PREFETCH_PAGE_COUNT":                 "0",
		"POSTGRES_DSN":                        "postgres://localhost/gateway",
		"TRAKT_CLIENT_ID":                     "id",
		"FANART_API_KEY":                      "key",
		"LOG_LEVEL":                           "debug",
		"LOG_FILE":                            "/var/log/gateway.log",
	})
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, cfg.CacheBackend)
	assert.Equal(t, "cache:6379", cfg.RedisURL)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 7*24*time.Hour, cfg.CatalogTTL())
	assert.Zero(t, cfg.PrefetchPageCount)
	assert.True(t, cfg.TraktEnabled())
	assert.True(t, cfg.FanartEnabled())

	logCfg := cfg.Logging()
	assert.Equal(t, logging.LevelDebug, logCfg.Level)
	assert.Equal(t, "/var/log/gateway.log", logCfg.File)
	assert.Equal(t, 20, logCfg.MaxSizeMB)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		wantErr string
	}{
		{
			name:    "unknown backend",
			environ: map[string]string{"CACHE_BACKEND": "memcached"},
			wantErr: "CACHE_BACKEND",
		},
		{
			name:    "empty sqlite path",
			environ: map[string]string{"SQLITE_PATH": " "},
			wantErr: "SQLITE_PATH",
		},
		{
			name:    "zero ttl",
			environ: map[string]string{"CACHE_CATALOG_CONTENT_DURATION_DAYS": "0"},
			wantErr: "CACHE_CATALOG_CONTENT_DURATION_DAYS",
		},
		{
			name:    "negative prefetch",
			environ: map[string]string{"PREFETCH_PAGE_COUNT": "-1"},
			wantErr: "PREFETCH_PAGE_COUNT",
		},
		{
			name:    "zero attempts",
			environ: map[string]string{"UPSTREAM_MAX_ATTEMPTS": "0"},
			wantErr: "UPSTREAM_MAX_ATTEMPTS",
		},
		{
			name:    "scheduler limits",
			environ: map[string]string{"TMDB_MAX_CONCURRENT": "0"},
			wantErr: "tmdb scheduler",
		},
		{
			name:    "unparseable duration",
			environ: map[string]string{"CACHE_SWEEP_INTERVAL": "daily"},
			wantErr: "parse env",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.environ)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	_, err := LoadFrom(map[string]string{
		"CACHE_BACKEND":         "memcached",
		"UPSTREAM_MAX_ATTEMPTS": "0",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CACHE_BACKEND")
	assert.Contains(t, err.Error(), "UPSTREAM_MAX_ATTEMPTS")
}

package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"backend"}, // "redis", "sqlite"
	)

	// CacheMisses tracks cache misses by backend
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"backend"},
	)

	// CacheWrites tracks stored entries by backend
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_writes_total",
			Help: "Total number of cache entries written",
		},
		[]string{"backend"},
	)

	// SuppressedWrites tracks writes dropped because the page lies past the last upstream page
	SuppressedWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_suppressed_writes_total",
			Help: "Total number of writes skipped for pages beyond total_pages",
		},
		[]string{"backend"},
	)

	// SweptEntries tracks entries removed by the expiry sweep
	SweptEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_swept_entries_total",
			Help: "Total number of expired entries removed by sweeps",
		},
		[]string{"backend"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"backend", "operation"}, // "get", "put", "predecessor", "latest", "delete", "sweep"
	)
)

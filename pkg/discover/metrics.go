package discover

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_discover_requests_total",
		Help: "Discovery requests by media type and outcome",
	}, []string{"type", "outcome"}) // "success", "invalid", "failed"

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_discover_request_duration_seconds",
		Help:    "Duration of a whole fan-out including merge",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	regionsPerRequest = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_discover_regions_per_request",
		Help:    "Number of regions fanned out per request",
		Buckets: []float64{1, 2, 3, 5, 8},
	})

	regionFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_discover_region_fetches_total",
		Help: "Per-region page lookups by source",
	}, []string{"source"}) // "cache", "upstream", "error"

	duplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_discover_duplicates_dropped_total",
		Help: "Items dropped while merging regions",
	})
)

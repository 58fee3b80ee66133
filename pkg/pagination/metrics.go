package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_pagination_resolutions_total",
		Help: "Skip resolutions by the rule that decided the page",
	}, []string{"rule"})

	sharedLoadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_pagination_shared_loads_total",
		Help: "Page loads served by another caller's in-flight fetch",
	})

	prefetchPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_pagination_prefetch_pages_total",
		Help: "Prefetch candidates by outcome",
	}, []string{"outcome"}) // "fetched", "warm", "in_flight", "failed"
)

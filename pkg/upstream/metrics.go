package upstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_upstream_requests_total",
		Help: "Total upstream requests by upstream and status",
	}, []string{"upstream", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds, including queueing",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"upstream"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_upstream_errors_total",
		Help: "Total upstream errors by upstream and class",
	}, []string{"upstream", "class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_upstream_retries_total",
		Help: "Total number of retry attempts by upstream and error class",
	}, []string{"upstream", "class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_upstream_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by upstream",
	}, []string{"upstream"})
)

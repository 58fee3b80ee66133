// Package metrics exposes the gateway's Prometheus metrics.
// Metrics are declared with promauto in the packages that own them
// (scheduler, upstream, cache, pagination, discover, trakt, fanart) and
// registered with the default registry; this package serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all gateway metrics use.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects the metrics served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves all registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics
//
// Scheduler (pkg/scheduler), all labelled by upstream:
//   - gateway_scheduler_tokens_remaining (Gauge): reservoir tokens left in the window
//   - gateway_scheduler_exhausted_refills_total (Counter): windows that ran out of tokens
//   - gateway_scheduler_queue_depth (Gauge): tasks waiting for admission
//   - gateway_scheduler_in_flight (Gauge): tasks executing
//   - gateway_scheduler_tasks_total{result} (Counter)
//   - gateway_scheduler_queue_wait_seconds (Histogram)
//   - gateway_scheduler_task_duration_seconds (Histogram)
//
// Upstream requests (pkg/upstream):
//   - gateway_upstream_requests_total{upstream, status} (Counter)
//   - gateway_upstream_request_duration_seconds{upstream} (Histogram)
//   - gateway_upstream_errors_total{upstream, class} (Counter)
//   - gateway_upstream_retries_total{upstream, class} (Counter)
//   - gateway_upstream_retry_exhausted_total{upstream} (Counter)
//
// Cache (pkg/cache), labelled by backend:
//   - gateway_cache_hits_total, gateway_cache_misses_total (Counter)
//   - gateway_cache_writes_total, gateway_cache_suppressed_writes_total (Counter)
//   - gateway_cache_swept_entries_total (Counter)
//   - gateway_cache_errors_total{backend, operation} (Counter)
//
// Pagination (pkg/pagination):
//   - gateway_pagination_resolutions_total{rule} (Counter)
//   - gateway_pagination_shared_loads_total (Counter)
//   - gateway_pagination_prefetch_pages_total{outcome} (Counter)
//
// Discovery (pkg/discover):
//   - gateway_discover_requests_total{type, outcome} (Counter)
//   - gateway_discover_request_duration_seconds{type} (Histogram)
//   - gateway_discover_regions_per_request (Histogram)
//   - gateway_discover_region_fetches_total{source} (Counter)
//   - gateway_discover_duplicates_dropped_total (Counter)
//
// History and logos (pkg/trakt, pkg/fanart):
//   - gateway_trakt_syncs_total{outcome}, gateway_trakt_imported_entries_total (Counter)
//   - gateway_fanart_logo_lookups_total{source} (Counter)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(gateway_cache_hits_total[5m])) /
//   (sum(rate(gateway_cache_hits_total[5m])) + sum(rate(gateway_cache_misses_total[5m])))
//
//   # Share of skips resolved without history
//   sum(rate(gateway_pagination_resolutions_total{rule=~"default|lookup_error"}[5m])) /
//   sum(rate(gateway_pagination_resolutions_total[5m]))
//
//   # Reservoir pressure
//   rate(gateway_scheduler_exhausted_refills_total[5m]) > 0
//
//   # P95 Discovery Latency
//   histogram_quantile(0.95, rate(gateway_discover_request_duration_seconds_bucket[5m]))

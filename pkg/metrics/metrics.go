// Package metrics exposes the Prometheus registry used by the PNCP proxy.
// All metrics are defined in their respective packages (cache, client, proxy)
// to maintain modularity and avoid circular dependencies.
//
// This package provides the /metrics handler and documents every metric.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the proxy.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects everything registered on Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - pncp_cache_hits_total (Counter): Reads served from a valid entry
//   - pncp_cache_misses_total (Counter): Reads that found no valid entry
//   - pncp_cache_expirations_total (Counter): Entries dropped because their TTL elapsed
//   - pncp_cache_evictions_total (Counter): Entries dropped by the size cap
//   - pncp_cache_shared_fetches_total (Counter): Misses served by another caller's in-flight fetch
//   - pncp_cache_entries (Gauge): Current number of stored entries
//   - pncp_cache_written_bytes_total (Counter): Payload bytes written to the cache
//
// Upstream Metrics (pkg/client):
//   - pncp_upstream_requests_total{result} (Counter): Upstream calls by result kind
//   - pncp_upstream_responses_total{status} (Counter): Upstream responses by HTTP status
//   - pncp_upstream_request_duration_seconds{result} (Histogram): Upstream call duration
//
// Retry Metrics (pkg/proxy):
//   - pncp_retries_total{error_class} (Counter): Retry attempts by error class
//   - pncp_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - pncp_retry_exhausted_total{error_class} (Counter): Requests that exhausted their attempts
//
// Request Metrics (pkg/proxy):
//   - pncp_proxy_requests_total{route, status, cache} (Counter): Proxied requests
//   - pncp_proxy_request_duration_seconds{route} (Histogram): End-to-end proxy duration
//   - pncp_proxy_items{route} (Histogram): Items in freshly transformed payloads
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(pncp_cache_hits_total[5m])) /
//   (sum(rate(pncp_cache_hits_total[5m])) + sum(rate(pncp_cache_misses_total[5m])))
//
//   # Upstream Timeout Rate
//   rate(pncp_upstream_requests_total{result="timeout"}[5m])
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(pncp_upstream_request_duration_seconds_bucket[5m]))
//
//   # Vehicle Listing Hit Share
//   sum(rate(pncp_proxy_requests_total{route="veiculos",cache="HIT"}[5m])) /
//   sum(rate(pncp_proxy_requests_total{route="veiculos"}[5m]))

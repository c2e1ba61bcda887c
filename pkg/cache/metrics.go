package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks reads served from a valid entry
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pncp_cache_hits_total",
			Help: "Total number of PNCP cache hits",
		},
	)

	// CacheMisses tracks reads that found no valid entry
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pncp_cache_misses_total",
			Help: "Total number of PNCP cache misses",
		},
	)

	// CacheExpirations tracks entries dropped because their TTL elapsed
	CacheExpirations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pncp_cache_expirations_total",
			Help: "Total number of expired cache entries removed",
		},
	)

	// CacheEvictions tracks entries dropped by the capacity bound
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pncp_cache_evictions_total",
			Help: "Total number of cache entries evicted to respect the size cap",
		},
	)

	// CacheSharedFetches tracks callers that joined an in-flight load
	CacheSharedFetches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pncp_cache_shared_fetches_total",
			Help: "Total number of cache misses served by another caller's in-flight fetch",
		},
	)

	// CacheEntries tracks the current number of stored entries
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pncp_cache_entries",
			Help: "Current number of entries in the PNCP cache",
		},
	)

	// CacheSize tracks payload bytes written to the cache
	CacheSize = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pncp_cache_written_bytes_total",
			Help: "Total payload bytes written to the PNCP cache",
		},
	)
)

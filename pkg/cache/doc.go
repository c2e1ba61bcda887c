// Package cache provides the in-memory TTL cache that sits between the proxy
// and the PNCP API.
//
// Features:
//
// - Fixed, store-wide TTL; expiry is checked lazily on every read
// - Single-flight loading: concurrent misses on one key trigger one upstream call
// - Deterministic cache key generation (query order does not matter)
// - Optional size cap with oldest-insertion-first eviction
// - Optional cron janitor that sweeps expired entries
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	store, err := cache.NewStore(5 * time.Minute)
//	if err != nil {
//		return err
//	}
//
//	key := cache.CacheKey{
//		Route: "generic",
//		Path:  "/v1/contratacoes/publicacao",
//		Query: url.Values{"pagina": []string{"1"}},
//	}
//
//	payload, outcome, err := store.Fetch(ctx, key, func(ctx context.Context) (json.RawMessage, error) {
//		// Cache miss - fetch from PNCP and transform
//	})
//
// # Capacity
//
// The default store is unbounded: entries leave on expiry only. Pass
// WithMaxEntries to cap it; callers do not change.
//
//	store, err := cache.NewStore(ttl, cache.WithMaxEntries(10000))
//
// # Metrics
//
//   - pncp_cache_hits_total - Cache hits
//   - pncp_cache_misses_total - Cache misses
//   - pncp_cache_expirations_total - Expired entries removed
//   - pncp_cache_evictions_total - Entries evicted by the size cap
//   - pncp_cache_shared_fetches_total - Misses served by an in-flight fetch
//   - pncp_cache_entries - Current entry count
//   - pncp_cache_written_bytes_total - Payload bytes written
//
// Nothing is persisted; a restart starts with an empty cache.
package cache

// Package cache stores fetched upstream pages together with the pagination
// metadata needed to map caller cursors back to upstream page numbers.
//
// Every cached page records the upstream page number, the caller skip that
// produced it and the query dimensions of its series. Two backends implement
// the Store interface:
//
//   - RedisStore: JSON values with native TTL plus per-series sorted sets
//   - SQLiteStore: one durable table, schema managed by goose migrations
//
// Both apply the same freshness predicate (Fresh) on every read. Expired
// entries are never deleted by reads; RunSweeper removes them periodically.
//
// # Basic Usage
//
//	store, err := cache.OpenSQLiteStore(ctx, "/var/lib/gateway/cache.db")
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	dims := cache.Dimensions{Endpoint: "/discover/movie", Provider: "8", Region: "US"}
//	entry := &cache.Entry{
//		Key:        cache.PageKey("/discover/movie", params, 2),
//		Series:     dims.Series(),
//		Data:       body,
//		Page:       2,
//		Skip:       20,
//		TotalPages: 37,
//		Dimensions: dims,
//		ExpiresAt:  time.Now().Add(72 * time.Hour),
//	}
//	if err := store.Put(ctx, entry); err != nil {
//		return err
//	}
//
//	prev, err := store.Predecessor(ctx, dims.Series(), 25) // page 2
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// no history for this series
//	}
//
// # Write Suppression
//
// Put drops entries whose Page is larger than TotalPages. Such a page does
// not exist upstream and must not anchor later cursor lookups.
//
// # Metrics
//
//   - gateway_cache_hits_total{backend}
//   - gateway_cache_misses_total{backend}
//   - gateway_cache_writes_total{backend}
//   - gateway_cache_suppressed_writes_total{backend}
//   - gateway_cache_swept_entries_total{backend}
//   - gateway_cache_errors_total{backend,operation}
package cache

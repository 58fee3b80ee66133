// Package pagination maps item-based caller cursors onto page-based upstream
// pagination.
//
// Upstream catalogs serve fixed pages of PageSize items while callers page
// with a skip offset. The mapping cannot be inverted without replaying every
// intermediate page, so the Resolver uses the cache history of a series as a
// monotonic hint:
//
//  1. skip <= 0 resolves to page 1
//  2. the cached entry with the greatest skip <= requested skip: its page + 1
//  3. otherwise the most recently written entry of the series: its page + 1
//  4. otherwise page 1
//
// Lookup failures resolve to page 1.
//
// Example usage:
//
//	resolver := pagination.NewResolver(store, logger)
//	res := resolver.Resolve(ctx, dims.Series(), skip)
//
//	loader := pagination.NewLoader(tmdbClient)
//	page, err := loader.Load(ctx, key, "/discover/movie", params, res.Page)
//
//	prefetcher := pagination.NewPrefetcher(store, loader, pagination.DefaultPrefetchConfig(), logger)
//	prefetcher.Prefetch(ctx, pagination.PrefetchRequest{...})
//
// The Prefetcher warms the next pages of a series after a page was served.
// It never blocks the caller and never reports errors back; pages already
// cached or already being prefetched are skipped.
package pagination

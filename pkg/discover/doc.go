// Package discover answers cursor-paginated discovery queries across regions.
//
// A Request is shaped into one upstream discover query per region. Each region
// resolves its skip cursor to an upstream page through the pagination
// package, serves the page from the cache store or fetches it, and schedules
// a prefetch of the following pages. The per-region results are merged in
// region order and deduplicated by item id.
//
// Usage:
//
//	gw := discover.New(store, tmdbClient, discover.DefaultConfig(), logger)
//	page, err := gw.Discover(ctx, discover.Request{
//	    Type:      "movie",
//	    Providers: []string{"8"},
//	    SortBy:    "popularity.desc",
//	    Skip:      40,
//	    Regions:   []string{"US", "GB"},
//	})
package discover

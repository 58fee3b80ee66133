package pagination

import (
	"context"
	"net/url"

	"golang.org/x/sync/singleflight"
)

// PageFetcher fetches a single upstream page.
type PageFetcher interface {
	// FetchPage fetches page of endpoint with params and returns data + total page count
	FetchPage(ctx context.Context, endpoint string, params url.Values, page int) (data []byte, totalPages int, err error)
}

// Page is a fetched upstream page.
type Page struct {
	Data       []byte
	TotalPages int
}

// Loader collapses concurrent fetches of the same page into one upstream call.
type Loader struct {
	fetcher PageFetcher
	group   singleflight.Group
}

// NewLoader creates a loader over fetcher.
func NewLoader(fetcher PageFetcher) *Loader {
	return &Loader{fetcher: fetcher}
}

// Load fetches page through the fetcher, sharing the result with concurrent
// callers using the same key. A caller giving up does not cancel the fetch
// for the others.
func (l *Loader) Load(ctx context.Context, key, endpoint string, params url.Values, page int) (Page, error) {
	fetchCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (any, error) {
		data, total, err := l.fetcher.FetchPage(fetchCtx, endpoint, params, page)
		if err != nil {
			return nil, err
		}
		return Page{Data: data, TotalPages: total}, nil
	})

	select {
	case <-ctx.Done():
		return Page{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			sharedLoadsTotal.Inc()
		}
		if res.Err != nil {
			return Page{}, res.Err
		}
		return res.Val.(Page), nil
	}
}

package pagination

import (
	"context"
	"errors"

	"github.com/Sternrassler/tmdb-discover-gateway/pkg/cache"
	"github.com/rs/zerolog"
)

// PageSize is the number of items per upstream page.
const PageSize = 20

// Rule names the step that produced a Resolution.
type Rule string

const (
	RuleFirstPage   Rule = "first_page"
	RulePredecessor Rule = "predecessor"
	RuleLatest      Rule = "latest"
	RuleDefault     Rule = "default"
	RuleLookupError Rule = "lookup_error"
)

// Resolution is the upstream page chosen for a skip.
type Resolution struct {
	Page int
	Rule Rule

	// Anchor is the cache entry the page was derived from, if any.
	Anchor *cache.Entry
}

// Lookup is the part of cache.Store the resolver needs.
type Lookup interface {
	Predecessor(ctx context.Context, series string, skip int) (*cache.Entry, error)
	Latest(ctx context.Context, series string) (*cache.Entry, error)
}

// Resolver translates caller skips into upstream page numbers.
type Resolver struct {
	lookup Lookup
	logger zerolog.Logger
}

// NewResolver creates a resolver over lookup.
func NewResolver(lookup Lookup, logger zerolog.Logger) *Resolver {
	return &Resolver{
		lookup: lookup,
		logger: logger,
	}
}

// Resolve returns the page to request for skip within series. It never fails:
// lookup errors are logged and resolve to page 1.
func (r *Resolver) Resolve(ctx context.Context, series string, skip int) Resolution {
	res := r.resolve(ctx, series, skip)
	resolutionsTotal.WithLabelValues(string(res.Rule)).Inc()

	r.logger.Debug().
		Str("series", series).
		Int("skip", skip).
		Int("page", res.Page).
		Str("rule", string(res.Rule)).
		Msg("Resolved page")

	return res
}

func (r *Resolver) resolve(ctx context.Context, series string, skip int) Resolution {
	if skip <= 0 {
		return Resolution{Page: 1, Rule: RuleFirstPage}
	}

	prev, err := r.lookup.Predecessor(ctx, series, skip)
	switch {
	case err == nil:
		return Resolution{Page: prev.Page + 1, Rule: RulePredecessor, Anchor: prev}
	case !errors.Is(err, cache.ErrCacheMiss):
		r.logger.Warn().Err(err).Str("series", series).Int("skip", skip).Msg("Predecessor lookup failed")
		return Resolution{Page: 1, Rule: RuleLookupError}
	}

	latest, err := r.lookup.Latest(ctx, series)
	switch {
	case err == nil:
		return Resolution{Page: latest.Page + 1, Rule: RuleLatest, Anchor: latest}
	case !errors.Is(err, cache.ErrCacheMiss):
		r.logger.Warn().Err(err).Str("series", series).Int("skip", skip).Msg("Latest lookup failed")
		return Resolution{Page: 1, Rule: RuleLookupError}
	}

	return Resolution{Page: 1, Rule: RuleDefault}
}

// SyntheticSkip is the skip recorded for a prefetched page. Stored this way,
// a later request at that skip resolves to the page after it.
func SyntheticSkip(page int) int {
	return page * PageSize
}

package pagination

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/Sternrassler/tmdb-discover-gateway/pkg/cache"
	"github.com/rs/zerolog"
)

// fakeLookup answers predecessor/latest queries from a slice in write order.
type fakeLookup struct {
	entries []cache.Entry
	err     error
	calls   int
}

func (f *fakeLookup) Predecessor(ctx context.Context, series string, skip int) (*cache.Entry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var matches []cache.Entry
	for _, e := range f.entries {
		if e.Series == series && e.Skip <= skip {
			matches = append(matches, e)
		}
	}
	if len(matches) == 0 {
		return nil, cache.ErrCacheMiss
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Skip != matches[j].Skip {
			return matches[i].Skip > matches[j].Skip
		}
		return matches[i].Page > matches[j].Page
	})
	return &matches[0], nil
}

func (f *fakeLookup) Latest(ctx context.Context, series string) (*cache.Entry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].Series == series {
			e := f.entries[i]
			return &e, nil
		}
	}
	return nil, cache.ErrCacheMiss
}

func TestResolver_Resolve(t *testing.T) {
	const series = "series:discover/movie:provider=8"

	tests := []struct {
		name     string
		entries  []cache.Entry
		skip     int
		wantPage int
		wantRule Rule
	}{
		{
			name:     "skip zero is always page 1",
			entries:  []cache.Entry{{Series: series, Page: 7, Skip: 0}},
			skip:     0,
			wantPage: 1,
			wantRule: RuleFirstPage,
		},
		{
			name:     "negative skip is page 1",
			skip:     -20,
			wantPage: 1,
			wantRule: RuleFirstPage,
		},
		{
			name:     "no history defaults to page 1",
			skip:     40,
			wantPage: 1,
			wantRule: RuleDefault,
		},
		{
			name: "closest predecessor plus one",
			entries: []cache.Entry{
				{Series: series, Page: 1, Skip: 0},
				{Series: series, Page: 2, Skip: 20},
			},
			skip:     25,
			wantPage: 3,
			wantRule: RulePredecessor,
		},
		{
			name: "exact skip match",
			entries: []cache.Entry{
				{Series: series, Page: 1, Skip: 0},
				{Series: series, Page: 3, Skip: 60},
			},
			skip:     60,
			wantPage: 4,
			wantRule: RulePredecessor,
		},
		{
			name:     "latest entry fallback when no predecessor",
			entries:  []cache.Entry{{Series: series, Page: 8, Skip: 140}},
			skip:     100,
			wantPage: 9,
			wantRule: RuleLatest,
		},
		{
			name: "latest is the most recently written",
			entries: []cache.Entry{
				{Series: series, Page: 8, Skip: 140},
				{Series: series, Page: 5, Skip: 120},
			},
			skip:     100,
			wantPage: 6,
			wantRule: RuleLatest,
		},
		{
			name:     "other series ignored",
			entries:  []cache.Entry{{Series: "series:other", Page: 4, Skip: 20}},
			skip:     40,
			wantPage: 1,
			wantRule: RuleDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(&fakeLookup{entries: tt.entries}, zerolog.Nop())
			got := r.Resolve(context.Background(), series, tt.skip)
			if got.Page != tt.wantPage {
				t.Errorf("Page = %d, want %d", got.Page, tt.wantPage)
			}
			if got.Rule != tt.wantRule {
				t.Errorf("Rule = %q, want %q", got.Rule, tt.wantRule)
			}
		})
	}
}

func TestResolver_SkipZeroDoesNotTouchStore(t *testing.T) {
	lookup := &fakeLookup{entries: []cache.Entry{{Series: "s", Page: 9, Skip: 0}}}
	r := NewResolver(lookup, zerolog.Nop())

	r.Resolve(context.Background(), "s", 0)
	if lookup.calls != 0 {
		t.Errorf("lookup calls = %d, want 0", lookup.calls)
	}
}

func TestResolver_LookupErrorFailsOpen(t *testing.T) {
	lookup := &fakeLookup{err: &cache.LookupError{Backend: "redis", Op: "predecessor", Err: errors.New("i/o timeout")}}
	r := NewResolver(lookup, zerolog.Nop())

	got := r.Resolve(context.Background(), "s", 80)
	if got.Page != 1 || got.Rule != RuleLookupError {
		t.Errorf("Resolve() = %+v, want page 1 by %q", got, RuleLookupError)
	}
}

func TestResolver_WithSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	dims := cache.Dimensions{Endpoint: "/discover/movie", Provider: "8"}
	series := dims.Series()

	for _, e := range []struct{ page, skip int }{{1, 0}, {2, 20}} {
		if err := store.Put(ctx, testEntry(dims, e.page, e.skip)); err != nil {
			t.Fatal(err)
		}
	}

	r := NewResolver(store, zerolog.Nop())
	if got := r.Resolve(ctx, series, 25); got.Page != 3 {
		t.Errorf("Resolve(25).Page = %d, want 3", got.Page)
	}
	if got := r.Resolve(ctx, series, 0); got.Page != 1 {
		t.Errorf("Resolve(0).Page = %d, want 1", got.Page)
	}
}

func TestSyntheticSkip(t *testing.T) {
	tests := []struct {
		page int
		want int
	}{
		{page: 2, want: 40},
		{page: 3, want: 60},
		{page: 6, want: 120},
	}
	for _, tt := range tests {
		if got := SyntheticSkip(tt.page); got != tt.want {
			t.Errorf("SyntheticSkip(%d) = %d, want %d", tt.page, got, tt.want)
		}
	}
}

package discover

import "github.com/Sternrassler/tmdb-discover-gateway/pkg/tmdb"

// Merge concatenates the results of pages in order and drops repeated item
// ids, keeping the first occurrence. Page metadata comes from the first page.
func Merge(pages []*tmdb.Page) *tmdb.Page {
	merged := &tmdb.Page{}
	if len(pages) == 0 {
		return merged
	}
	if first := pages[0]; first != nil {
		merged.Page = first.Page
		merged.TotalPages = first.TotalPages
		merged.TotalResults = first.TotalResults
	}

	total := 0
	for _, p := range pages {
		if p != nil {
			total += len(p.Results)
		}
	}

	seen := make(map[int64]struct{}, total)
	merged.Results = make([]tmdb.Item, 0, total)
	for _, p := range pages {
		if p == nil {
			continue
		}
		for _, item := range p.Results {
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			merged.Results = append(merged.Results, item)
		}
	}
	return merged
}

// withPosters drops results without a poster path.
func withPosters(items []tmdb.Item) []tmdb.Item {
	out := items[:0]
	for _, item := range items {
		if item.PosterPath != "" {
			out = append(out, item)
		}
	}
	return out
}

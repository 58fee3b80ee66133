package discover

import (
	"regexp"
)

var catalogIDPattern = regexp.MustCompile(`^tmdb-discover-(movies|series)(-new|-popular)?-(\d+)$`)

// Catalog is a parsed catalog identifier such as "tmdb-discover-movies-new-8".
type Catalog struct {
	// Type is "movies" or "series".
	Type string

	// New selects the newest-first ordering instead of popularity.
	New bool

	ProviderID string
}

// ParseCatalogID parses id. Unknown formats yield a *ConfigurationError.
func ParseCatalogID(id string) (Catalog, error) {
	m := catalogIDPattern.FindStringSubmatch(id)
	if m == nil {
		return Catalog{}, &ConfigurationError{Field: "catalog id", Value: id, Reason: "unrecognized format"}
	}
	return Catalog{
		Type:       m[1],
		New:        m[2] == "-new",
		ProviderID: m[3],
	}, nil
}

// SortBy returns the upstream sort order of the catalog.
func (c Catalog) SortBy() string {
	if !c.New {
		return "popularity.desc"
	}
	if c.Type == "series" {
		return "first_air_date.desc"
	}
	return "primary_release_date.desc"
}

// Request returns a discovery request for the catalog. Callers fill in the
// cursor, filters and regions.
func (c Catalog) Request() Request {
	return Request{
		Type:      c.Type,
		Providers: []string{c.ProviderID},
		SortBy:    c.SortBy(),
	}
}

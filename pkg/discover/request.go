package discover

import (
	"strconv"
	"strings"

	"github.com/Sternrassler/tmdb-discover-gateway/pkg/cache"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/pagination"
)

// MaxPages is the deepest page TMDB discover serves.
const MaxPages = 500

// MaxSkip is the largest accepted skip.
const MaxSkip = MaxPages * pagination.PageSize

// Request is a discovery query. It is not modified by the gateway.
type Request struct {
	// Type is "movie" or "series" ("movies" and "tv" are accepted too).
	Type string

	// Providers are watch provider ids. Only the first one anchors the
	// skip→page history of a series.
	Providers []string

	SortBy string

	// Optional filters. YearRange is "YYYY-YYYY", RatingRange "min-max",
	// AgeRange one of 0-5, 6-11, 12-15, 16-17, 18+.
	AgeRange    string
	Genre       string
	YearRange   string
	RatingRange string

	Language string

	// Skip is the item offset of the first requested result.
	Skip int

	// Regions to fan out over. Empty means the gateway's default region.
	Regions []string

	// APIKey is an optional per-user TMDB key. It is sent upstream but never
	// becomes part of a cache key.
	APIKey string

	// RequirePoster drops merged results without a poster.
	RequirePoster bool
}

// AnchorProvider returns the provider the series history is keyed on.
func (r Request) AnchorProvider() string {
	if len(r.Providers) == 0 {
		return ""
	}
	return r.Providers[0]
}

// MediaType returns the upstream media type, "tv" or "movie".
func (r Request) MediaType() string {
	switch strings.ToLower(r.Type) {
	case "series", "tv":
		return "tv"
	default:
		return "movie"
	}
}

// Endpoint returns the upstream discover path for the request.
func (r Request) Endpoint() string {
	return "/discover/" + r.MediaType()
}

// Validate checks the request shape. Errors are *ConfigurationError.
func (r Request) Validate() error {
	switch strings.ToLower(r.Type) {
	case "movie", "movies", "series", "tv":
	default:
		return &ConfigurationError{Field: "type", Value: r.Type, Reason: "must be movie or series"}
	}
	if r.AnchorProvider() == "" {
		return &ConfigurationError{Field: "providers", Reason: "at least one provider is required"}
	}
	if r.Skip < 0 {
		return &ConfigurationError{Field: "skip", Value: strconv.Itoa(r.Skip), Reason: "must not be negative"}
	}
	if r.Skip > MaxSkip {
		return &ConfigurationError{Field: "skip", Value: strconv.Itoa(r.Skip), Reason: "must not exceed " + strconv.Itoa(MaxSkip)}
	}
	if _, err := ageParams(r.AgeRange, r.MediaType()); err != nil {
		return err
	}
	if _, _, err := splitRange("year", r.YearRange); err != nil {
		return err
	}
	if _, _, err := splitRange("rating", r.RatingRange); err != nil {
		return err
	}
	return nil
}

// dimensions returns the series dimensions for one region.
func (r Request) dimensions(region string) cache.Dimensions {
	return cache.Dimensions{
		Endpoint:    r.Endpoint(),
		Provider:    r.AnchorProvider(),
		Type:        r.MediaType(),
		SortBy:      r.SortBy,
		AgeRange:    r.AgeRange,
		Genre:       r.Genre,
		YearRange:   r.YearRange,
		RatingRange: r.RatingRange,
		Region:      region,
		Language:    r.Language,
	}
}

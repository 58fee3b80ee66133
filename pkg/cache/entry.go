package cache

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Dimensions are the query parameters that shape a paginated series.
// Two requests with equal Dimensions page through the same upstream result
// list, so their cached pages share one skip→page history.
type Dimensions struct {
	Endpoint    string `json:"endpoint"`
	Provider    string `json:"provider,omitempty"`
	Type        string `json:"type,omitempty"`
	SortBy      string `json:"sort_by,omitempty"`
	AgeRange    string `json:"age_range,omitempty"`
	Genre       string `json:"genre,omitempty"`
	YearRange   string `json:"year_range,omitempty"`
	RatingRange string `json:"rating_range,omitempty"`
	Region      string `json:"region,omitempty"`
	Language    string `json:"language,omitempty"`
}

// Series returns a deterministic fingerprint of the dimension tuple.
// Format: series:endpoint:field1=val1:field2=val2 (empty fields omitted)
//
// Example:
//
//	series:discover/movie:language=en-US:provider=8:region=US:sort_by=popularity.desc:type=movie
func (d Dimensions) Series() string {
	fields := map[string]string{
		"provider":     d.Provider,
		"type":         d.Type,
		"sort_by":      d.SortBy,
		"age_range":    d.AgeRange,
		"genre":        d.Genre,
		"year_range":   d.YearRange,
		"rating_range": d.RatingRange,
		"region":       d.Region,
		"language":     d.Language,
	}

	names := make([]string, 0, len(fields))
	for name, v := range fields {
		if v != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	parts := []string{"series"}
	if endpoint := strings.Trim(d.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, fields[name]))
	}
	return strings.Join(parts, ":")
}

// Entry is one cached upstream page.
type Entry struct {
	// Key is the fingerprint of endpoint and all query params including page.
	Key string `json:"key"`

	// Series is the fingerprint of the dimensions without the page.
	Series string `json:"series"`

	// Data is the raw upstream response body.
	Data []byte `json:"data"`

	// Page is the upstream page number of Data.
	Page int `json:"page"`

	// Skip is the caller cursor that produced this page.
	Skip int `json:"skip"`

	// TotalPages is the page count reported by the upstream.
	TotalPages int `json:"total_pages"`

	Dimensions Dimensions `json:"dimensions"`

	// ExpiresAt is when the entry stops being served.
	ExpiresAt time.Time `json:"expires_at"`

	// CachedAt is when the entry was written.
	CachedAt time.Time `json:"cached_at"`
}

// Fresh reports whether e may be served at now.
// Every read path of every backend goes through this predicate.
func Fresh(e *Entry, now time.Time) bool {
	return e != nil && now.Before(e.ExpiresAt)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Validate checks the fields every backend relies on.
func (e *Entry) Validate() error {
	switch {
	case e == nil:
		return fmt.Errorf("%w: nil entry", ErrInvalidEntry)
	case e.Key == "":
		return fmt.Errorf("%w: empty key", ErrInvalidEntry)
	case e.Series == "":
		return fmt.Errorf("%w: empty series", ErrInvalidEntry)
	case e.Page < 1:
		return fmt.Errorf("%w: page %d", ErrInvalidEntry, e.Page)
	case e.Skip < 0:
		return fmt.Errorf("%w: skip %d", ErrInvalidEntry, e.Skip)
	}
	return nil
}

// beyondLastPage reports whether the upstream said this page does not exist.
func (e *Entry) beyondLastPage() bool {
	return e.Page > e.TotalPages
}

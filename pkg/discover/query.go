package discover

import (
	"net/url"
	"strconv"
	"strings"
)

// excludedKidsGenres are movie genres hidden from the youngest age ranges.
const excludedKidsGenres = "27,18,53,80,10752,37,10749,10768,10767,10766,10764,10763,9648,99,36"

const (
	genreKids      = "10762"
	genreAnimation = "16"
)

// ageParams maps an age range to discover parameters for mediaType.
func ageParams(ageRange, mediaType string) (url.Values, error) {
	p := url.Values{}
	movie := mediaType == "movie"

	switch ageRange {
	case "":
	case "0-5", "6-11":
		if movie {
			p.Set("certification_country", "US")
			p.Set("certification", "G")
			p.Set("without_genres", excludedKidsGenres)
		} else {
			p.Set("with_genres", genreKids)
		}
	case "12-15":
		if movie {
			p.Set("certification_country", "US")
			p.Set("certification", "PG")
		} else {
			p.Set("with_genres", genreAnimation)
		}
	case "16-17":
		if movie {
			p.Set("certification_country", "US")
			p.Set("certification", "PG-13")
		}
	case "18+":
		if movie {
			p.Set("include_adult", "true")
		}
	default:
		return nil, &ConfigurationError{Field: "age range", Value: ageRange, Reason: "unknown age range"}
	}
	return p, nil
}

// splitRange parses "a-b". An empty value yields empty bounds.
func splitRange(field, value string) (string, string, error) {
	if value == "" {
		return "", "", nil
	}
	lo, hi, ok := strings.Cut(value, "-")
	if !ok || lo == "" || hi == "" {
		return "", "", &ConfigurationError{Field: field + " range", Value: value, Reason: "expected <min>-<max>"}
	}
	if _, err := strconv.ParseFloat(lo, 64); err != nil {
		return "", "", &ConfigurationError{Field: field + " range", Value: value, Reason: "bounds must be numeric"}
	}
	if _, err := strconv.ParseFloat(hi, 64); err != nil {
		return "", "", &ConfigurationError{Field: field + " range", Value: value, Reason: "bounds must be numeric"}
	}
	return lo, hi, nil
}

// buildQuery returns the upstream parameters shared by all regions of req,
// without page and watch_region. req must be valid.
func buildQuery(req Request) (url.Values, error) {
	mediaType := req.MediaType()

	q, err := ageParams(req.AgeRange, mediaType)
	if err != nil {
		return nil, err
	}

	q.Set("with_watch_providers", strings.Join(req.Providers, ","))
	if req.SortBy != "" {
		q.Set("sort_by", req.SortBy)
	}
	if req.Language != "" {
		q.Set("language", req.Language)
	}

	startYear, endYear, err := splitRange("year", req.YearRange)
	if err != nil {
		return nil, err
	}
	if startYear != "" {
		field := "primary_release_date"
		if mediaType == "tv" {
			field = "first_air_date"
		}
		q.Set(field+".gte", startYear+"-01-01")
		q.Set(field+".lte", endYear+"-12-31")
	}

	minRating, maxRating, err := splitRange("rating", req.RatingRange)
	if err != nil {
		return nil, err
	}
	if minRating != "" {
		q.Set("vote_average.gte", minRating)
		q.Set("vote_average.lte", maxRating)
	}

	if req.Genre != "" {
		q.Set("with_genres", req.Genre)
	}
	if req.APIKey != "" {
		q.Set("api_key", req.APIKey)
	}
	return q, nil
}

// regionQuery returns a copy of base scoped to region.
func regionQuery(base url.Values, region string) url.Values {
	q := make(url.Values, len(base)+1)
	for k, v := range base {
		q[k] = v
	}
	if region != "" {
		q.Set("watch_region", region)
	}
	return q
}

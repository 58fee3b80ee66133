package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// DefaultNamespace prefixes keys built without an explicit namespace.
const DefaultNamespace = "tmdb"

// sensitiveParams never become part of a key.
var sensitiveParams = map[string]bool{
	"api_key":      true,
	"access_token": true,
}

// CacheKey represents a unique identifier for a cached upstream response.
type CacheKey struct {
	// Namespace separates upstreams (e.g. "tmdb", "fanart"). Defaults to DefaultNamespace.
	Namespace string

	// Endpoint is the upstream path (e.g., "/discover/movie")
	Endpoint string

	// QueryParams are the query parameters including page
	QueryParams url.Values
}

// String generates a deterministic cache key string.
// Format: namespace:endpoint:query1=val1:query2=val2
//
// Example:
//
//	tmdb:discover/movie:page=2:sort_by=popularity.desc:with_watch_providers=8
func (k CacheKey) String() string {
	ns := k.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	parts := []string{ns}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Add query params (sorted for determinism)
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			if sensitiveParams[key] {
				continue
			}
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}

// PageKey returns the key of page n of endpoint with params.
// params is not modified.
func PageKey(endpoint string, params url.Values, n int) string {
	q := make(url.Values, len(params)+1)
	for k, v := range params {
		q[k] = v
	}
	q.Set("page", strconv.Itoa(n))
	return CacheKey{Endpoint: endpoint, QueryParams: q}.String()
}

// Package fanart picks the best movie logo from Fanart.tv and caches the
// choice in the gateway's cache store.
package fanart

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/tmdb-discover-gateway/pkg/cache"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/upstream"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the Fanart.tv v3 web service.
const DefaultBaseURL = "https://webservice.fanart.tv/v3"

const fallbackLanguage = "en"

// Logo is one hdmovielogo entry.
type Logo struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Lang  string `json:"lang"`
	Likes string `json:"likes"`
}

func (l Logo) likes() int {
	n, _ := strconv.Atoi(l.Likes)
	return n
}

// SelectLogo returns the most liked logo in lang, falling back to English.
// The URL is upgraded to https. It returns "" if neither language has one.
func SelectLogo(logos []Logo, lang string) string {
	best := func(lang string) (Logo, bool) {
		var matches []Logo
		for _, l := range logos {
			if l.Lang == lang && l.URL != "" {
				matches = append(matches, l)
			}
		}
		if len(matches) == 0 {
			return Logo{}, false
		}
		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].likes() > matches[j].likes()
		})
		return matches[0], true
	}

	logo, ok := best(lang)
	if !ok {
		logo, ok = best(fallbackLanguage)
	}
	if !ok {
		return ""
	}
	return strings.Replace(logo.URL, "http://", "https://", 1)
}

// Client resolves logos through the Fanart scheduler and the cache store.
type Client struct {
	http   *upstream.Client
	store  cache.Store
	apiKey string
	ttl    time.Duration
	logger zerolog.Logger
}

// New creates a client. Chosen logos stay cached for ttl.
func New(httpClient *upstream.Client, store cache.Store, apiKey string, ttl time.Duration, logger zerolog.Logger) *Client {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Client{
		http:   httpClient,
		store:  store,
		apiKey: apiKey,
		ttl:    ttl,
		logger: logger.With().Str("component", "fanart").Logger(),
	}
}

// BestLogo returns the logo URL for a TMDB movie id in language (e.g.
// "de-DE" or "de"). Failures are logged and yield "".
func (c *Client) BestLogo(ctx context.Context, tmdbID int64, language string) string {
	lang, _, _ := strings.Cut(language, "-")
	if lang == "" {
		lang = fallbackLanguage
	}

	endpoint := "/movies/" + strconv.FormatInt(tmdbID, 10)
	key := cache.CacheKey{
		Namespace:   "fanart",
		Endpoint:    endpoint,
		QueryParams: url.Values{"lang": {lang}},
	}.String()
	log := c.logger.With().Int64("tmdb_id", tmdbID).Str("lang", lang).Logger()

	entry, err := c.store.Get(ctx, key)
	if err == nil {
		logoLookups.WithLabelValues("cache").Inc()
		return string(entry.Data)
	}
	if !cache.IsMiss(err) {
		log.Warn().Err(err).Msg("Logo cache lookup failed")
	}

	logos, err := c.fetchLogos(ctx, endpoint)
	if err != nil {
		logoLookups.WithLabelValues("error").Inc()
		log.Warn().Err(err).Msg("Fetching logos failed")
		return ""
	}
	logoURL := SelectLogo(logos, lang)
	logoLookups.WithLabelValues("upstream").Inc()

	// a missing logo is cached as well
	err = c.store.Put(ctx, &cache.Entry{
		Key:        key,
		Series:     "series:fanart:logos",
		Data:       []byte(logoURL),
		Page:       1,
		TotalPages: 1,
		Dimensions: cache.Dimensions{Endpoint: endpoint, Language: lang},
		ExpiresAt:  time.Now().Add(c.ttl),
	})
	if err != nil {
		log.Warn().Err(err).Msg("Logo cache write failed")
	}

	log.Debug().Str("url", logoURL).Int("candidates", len(logos)).Msg("Logo selected")
	return logoURL
}

func (c *Client) fetchLogos(ctx context.Context, endpoint string) ([]Logo, error) {
	data, err := c.http.Get(ctx, endpoint, url.Values{"api_key": {c.apiKey}}, nil)
	if err != nil {
		if upstream.StatusCode(err) == 404 {
			return nil, nil
		}
		return nil, err
	}

	var resp struct {
		HDMovieLogo []Logo `json:"hdmovielogo"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode fanart response: %w", err)
	}
	return resp.HDMovieLogo, nil
}

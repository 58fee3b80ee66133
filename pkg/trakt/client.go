// Package trakt reads and writes a user's Trakt watch history and marks
// discovery results the user has already watched.
package trakt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/tmdb-discover-gateway/pkg/upstream"
)

const (
	// DefaultBaseURL is the public Trakt API.
	DefaultBaseURL = "https://api.trakt.tv"

	// APIVersion is sent as trakt-api-version.
	APIVersion = "2"
)

// ErrTokenExpired is returned when Trakt rejects the access token.
var ErrTokenExpired = errors.New("trakt access token expired")

// UpstreamError is returned for failed Trakt calls.
type UpstreamError = upstream.Error

// Kind selects movies or shows.
type Kind string

const (
	KindMovies Kind = "movies"
	KindShows  Kind = "shows"
)

// KindFor maps a catalog type ("movies", "movie", "series", "tv") to a Kind.
func KindFor(catalogType string) Kind {
	switch catalogType {
	case "series", "tv", "shows", "show":
		return KindShows
	default:
		return KindMovies
	}
}

// MediaType is the singular form stored in the history ("movie" or "show").
func (k Kind) MediaType() string {
	if k == KindShows {
		return "show"
	}
	return "movie"
}

// IDs are the cross-service identifiers of a movie or show.
type IDs struct {
	Trakt int64  `json:"trakt"`
	Slug  string `json:"slug,omitempty"`
	IMDB  string `json:"imdb,omitempty"`
	TMDB  int64  `json:"tmdb,omitempty"`
}

// Media is a movie or show.
type Media struct {
	Title string `json:"title"`
	Year  int    `json:"year,omitempty"`
	IDs   IDs    `json:"ids"`
}

// WatchedItem is one entry of /users/{id}/watched/{kind}.
type WatchedItem struct {
	Plays         int       `json:"plays"`
	LastWatchedAt time.Time `json:"last_watched_at"`
	Movie         *Media    `json:"movie,omitempty"`
	Show          *Media    `json:"show,omitempty"`
}

// Client talks to Trakt through two schedulers: reads are batched under a
// large reservoir, writes are paced one per second.
type Client struct {
	get      *upstream.Client
	post     *upstream.Client
	clientID string
}

// New creates a client. get and post must be bound to separate schedulers.
func New(get, post *upstream.Client, clientID string) *Client {
	return &Client{get: get, post: post, clientID: clientID}
}

func (c *Client) headers(accessToken string) http.Header {
	h := http.Header{}
	h.Set("trakt-api-version", APIVersion)
	h.Set("trakt-api-key", c.clientID)
	if accessToken != "" {
		h.Set("Authorization", "Bearer "+accessToken)
	}
	return h
}

// FetchWatched returns everything username has watched of kind.
func (c *Client) FetchWatched(ctx context.Context, username string, kind Kind, accessToken string) ([]WatchedItem, error) {
	endpoint := fmt.Sprintf("/users/%s/watched/%s", url.PathEscape(username), kind)

	data, err := c.get.Get(ctx, endpoint, nil, c.headers(accessToken))
	if err != nil {
		if upstream.StatusCode(err) == http.StatusUnauthorized {
			return nil, fmt.Errorf("fetch watched %s of %s: %w", kind, username, ErrTokenExpired)
		}
		return nil, err
	}

	var items []WatchedItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode watched %s: %w", kind, err)
	}
	return items, nil
}

// LookupTraktID finds the Trakt id of a TMDB id.
func (c *Client) LookupTraktID(ctx context.Context, tmdbID int64, kind Kind, accessToken string) (int64, error) {
	endpoint := "/search/tmdb/" + strconv.FormatInt(tmdbID, 10)
	params := url.Values{"type": {kind.MediaType()}}

	data, err := c.get.Get(ctx, endpoint, params, c.headers(accessToken))
	if err != nil {
		return 0, err
	}

	var results []struct {
		Type  string `json:"type"`
		Movie *Media `json:"movie"`
		Show  *Media `json:"show"`
	}
	if err := json.Unmarshal(data, &results); err != nil {
		return 0, fmt.Errorf("decode search result: %w", err)
	}
	for _, r := range results {
		if r.Type != kind.MediaType() {
			continue
		}
		if m := r.Movie; m != nil {
			return m.IDs.Trakt, nil
		}
		if s := r.Show; s != nil {
			return s.IDs.Trakt, nil
		}
	}
	return 0, fmt.Errorf("no trakt id for tmdb id %d", tmdbID)
}

type historyRef struct {
	IDs       IDs       `json:"ids"`
	WatchedAt time.Time `json:"watched_at"`
}

// MarkWatched adds traktID to the user's history through the write scheduler.
func (c *Client) MarkWatched(ctx context.Context, accessToken string, kind Kind, traktID int64, watchedAt time.Time) error {
	ref := []historyRef{{IDs: IDs{Trakt: traktID}, WatchedAt: watchedAt.UTC()}}
	body := map[string][]historyRef{string(kind): ref}

	if _, err := c.post.PostJSON(ctx, "/sync/history", body, c.headers(accessToken)); err != nil {
		if upstream.StatusCode(err) == http.StatusUnauthorized {
			return fmt.Errorf("mark watched: %w", ErrTokenExpired)
		}
		return err
	}
	return nil
}

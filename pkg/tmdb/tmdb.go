// Package tmdb is a thin client for the TMDB v3 discover API.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Sternrassler/tmdb-discover-gateway/pkg/upstream"
)

// DefaultBaseURL is the public TMDB v3 API.
const DefaultBaseURL = "https://api.themoviedb.org/3"

// UpstreamError is returned for failed TMDB calls.
type UpstreamError = upstream.Error

// Item is one discover result. Movies carry Title/ReleaseDate, series
// carry Name/FirstAirDate.
type Item struct {
	ID               int64    `json:"id"`
	Adult            bool     `json:"adult,omitempty"`
	Title            string   `json:"title,omitempty"`
	OriginalTitle    string   `json:"original_title,omitempty"`
	Name             string   `json:"name,omitempty"`
	OriginalName     string   `json:"original_name,omitempty"`
	OriginCountry    []string `json:"origin_country,omitempty"`
	OriginalLanguage string   `json:"original_language,omitempty"`
	Overview         string   `json:"overview,omitempty"`
	PosterPath       string   `json:"poster_path,omitempty"`
	BackdropPath     string   `json:"backdrop_path,omitempty"`
	ReleaseDate      string   `json:"release_date,omitempty"`
	FirstAirDate     string   `json:"first_air_date,omitempty"`
	VoteAverage      float64  `json:"vote_average"`
	VoteCount        int      `json:"vote_count,omitempty"`
	Popularity       float64  `json:"popularity,omitempty"`
	GenreIDs         []int    `json:"genre_ids,omitempty"`
}

// DisplayTitle returns Title for movies and Name for series.
func (i Item) DisplayTitle() string {
	if i.Title != "" {
		return i.Title
	}
	return i.Name
}

// SetDisplayTitle overwrites whichever title field the item uses.
func (i *Item) SetDisplayTitle(title string) {
	if i.Title != "" || i.Name == "" {
		i.Title = title
		return
	}
	i.Name = title
}

// Page is a discover response.
type Page struct {
	Page         int    `json:"page"`
	Results      []Item `json:"results"`
	TotalPages   int    `json:"total_pages"`
	TotalResults int    `json:"total_results"`
}

// DecodePage parses a raw discover response.
func DecodePage(data []byte) (*Page, error) {
	var p Page
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode tmdb page: %w", err)
	}
	return &p, nil
}

// Client fetches discover pages through the TMDB scheduler.
type Client struct {
	http        *upstream.Client
	bearerToken string
}

// New creates a client. bearerToken authenticates requests that carry no
// per-user api_key parameter.
func New(httpClient *upstream.Client, bearerToken string) *Client {
	return &Client{http: httpClient, bearerToken: bearerToken}
}

// FetchPage fetches page of endpoint and returns the raw body and total_pages.
func (c *Client) FetchPage(ctx context.Context, endpoint string, params url.Values, page int) ([]byte, int, error) {
	q := make(url.Values, len(params)+1)
	for k, v := range params {
		q[k] = v
	}
	q.Set("page", strconv.Itoa(page))

	var header http.Header
	if q.Get("api_key") == "" && c.bearerToken != "" {
		header = http.Header{"Authorization": {"Bearer " + c.bearerToken}}
	}

	data, err := c.http.Get(ctx, endpoint, q, header)
	if err != nil {
		return nil, 0, err
	}

	var meta struct {
		TotalPages int `json:"total_pages"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, 0, fmt.Errorf("decode tmdb page %d of %s: %w", page, endpoint, err)
	}
	return data, meta.TotalPages, nil
}

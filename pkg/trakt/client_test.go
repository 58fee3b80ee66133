package trakt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/tmdb-discover-gateway/pkg/scheduler"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/upstream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	newUpstream := func(cfg scheduler.Config) *upstream.Client {
		sched, err := scheduler.New(cfg, zerolog.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { sched.Close() })
		c, err := upstream.New(upstream.DefaultConfig(baseURL), sched, zerolog.Nop())
		require.NoError(t, err)
		return c
	}

	postCfg := scheduler.DefaultConfig("trakt-post")
	postCfg.MaxConcurrent = 1
	postCfg.MinInterval = 10 * time.Millisecond

	return New(newUpstream(scheduler.DefaultConfig("trakt-get")), newUpstream(postCfg), "client-id")
}

func TestClient_FetchWatched(t *testing.T) {
	var gotHeader http.Header
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		gotPath = r.URL.Path
		w.Write([]byte(`[
			{"plays": 2, "last_watched_at": "2024-05-01T20:00:00.000Z",
			 "movie": {"title": "Heat", "year": 1995, "ids": {"trakt": 1, "imdb": "tt0113277", "tmdb": 949}}}
		]`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	items, err := c.FetchWatched(context.Background(), "alice", KindMovies, "token")
	require.NoError(t, err)

	assert.Equal(t, "/users/alice/watched/movies", gotPath)
	assert.Equal(t, "2", gotHeader.Get("trakt-api-version"))
	assert.Equal(t, "client-id", gotHeader.Get("trakt-api-key"))
	assert.Equal(t, "Bearer token", gotHeader.Get("Authorization"))

	require.Len(t, items, 1)
	require.NotNil(t, items[0].Movie)
	assert.Equal(t, "Heat", items[0].Movie.Title)
	assert.Equal(t, int64(949), items[0].Movie.IDs.TMDB)
	assert.Equal(t, 2024, items[0].LastWatchedAt.Year())
}

func TestClient_FetchWatched_TokenExpired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.FetchWatched(context.Background(), "alice", KindShows, "stale")
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestClient_FetchWatched_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.FetchWatched(context.Background(), "alice", KindShows, "token")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTokenExpired))

	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, upstream.ErrorClassServer, upErr.Class)
	assert.Equal(t, "trakt-get", upErr.Upstream)
}

func TestClient_MarkWatched(t *testing.T) {
	var (
		mu     sync.Mutex
		body   map[string][]map[string]any
		method string
		ctype  string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		method = r.Method
		ctype = r.Header.Get("Content-Type")
		json.Unmarshal(raw, &body)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"added":{"movies":1}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	watchedAt := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	require.NoError(t, c.MarkWatched(context.Background(), "token", KindShows, 42, watchedAt))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "application/json", ctype)
	require.Len(t, body["shows"], 1)
	assert.Equal(t, "2024-05-01T20:00:00Z", body["shows"][0]["watched_at"])
	ids := body["shows"][0]["ids"].(map[string]any)
	assert.Equal(t, float64(42), ids["trakt"])
}

func TestClient_LookupTraktID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/tmdb/1399", r.URL.Path)
		assert.Equal(t, "show", r.URL.Query().Get("type"))
		w.Write([]byte(`[{"type":"show","show":{"title":"Game of Thrones","ids":{"trakt":1390,"tmdb":1399}}}]`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	id, err := c.LookupTraktID(context.Background(), 1399, KindShows, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1390), id)
}

func TestClient_LookupTraktID_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.LookupTraktID(context.Background(), 7, KindMovies, "")
	assert.Error(t, err)
}

func TestKindFor(t *testing.T) {
	tests := []struct {
		in        string
		want      Kind
		mediaType string
	}{
		{in: "movies", want: KindMovies, mediaType: "movie"},
		{in: "movie", want: KindMovies, mediaType: "movie"},
		{in: "series", want: KindShows, mediaType: "show"},
		{in: "tv", want: KindShows, mediaType: "show"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := KindFor(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.mediaType, got.MediaType())
		})
	}
}

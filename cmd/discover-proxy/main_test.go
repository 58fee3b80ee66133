package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/tmdb-discover-gateway/internal/testutil"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/cache"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/config"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/discover"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/scheduler"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/tmdb"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/trakt"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/upstream"
	"github.com/rs/zerolog"
)

// fakeHistory is an in-memory trakt.HistoryStore for a single user.
type fakeHistory struct {
	tokens  map[string]trakt.Tokens
	watched map[int64]struct{}
}

func (f *fakeHistory) ImportHistory(ctx context.Context, username string, entries []trakt.HistoryEntry) error {
	return nil
}

func (f *fakeHistory) WatchedTMDBIDs(ctx context.Context, username, mediaType string) (map[int64]struct{}, error) {
	return f.watched, nil
}

func (f *fakeHistory) SaveTokens(ctx context.Context, username, accessToken, refreshToken string) error {
	f.tokens[username] = trakt.Tokens{AccessToken: accessToken, RefreshToken: refreshToken}
	return nil
}

func (f *fakeHistory) Tokens(ctx context.Context, username string) (trakt.Tokens, error) {
	t, ok := f.tokens[username]
	if !ok {
		return trakt.Tokens{}, trakt.ErrUserNotFound
	}
	return t, nil
}

func (f *fakeHistory) MarkFetched(ctx context.Context, username string, at time.Time) error {
	return nil
}

func (f *fakeHistory) Ping(ctx context.Context) error { return nil }
func (f *fakeHistory) Close() error                   { return nil }

type noFetch struct{}

func (noFetch) FetchWatched(ctx context.Context, username string, kind trakt.Kind, accessToken string) ([]trakt.WatchedItem, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (*server, *testutil.MockTMDB) {
	t.Helper()

	mock := testutil.NewMockTMDB()
	t.Cleanup(mock.Close)

	store, err := cache.OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sched, err := scheduler.New(scheduler.DefaultConfig("tmdb"), zerolog.Nop())
	if err != nil {
		t.Fatalf("scheduler.New() error = %v", err)
	}
	t.Cleanup(func() { sched.Close() })

	httpClient, err := upstream.New(upstream.DefaultConfig(mock.URL()), sched, zerolog.Nop())
	if err != nil {
		t.Fatalf("upstream.New() error = %v", err)
	}

	gw := discover.New(store, tmdb.New(httpClient, "token"), discover.DefaultConfig(), zerolog.Nop())
	t.Cleanup(gw.Wait)

	return &server{
		gateway:        gw,
		store:          store,
		logger:         zerolog.Nop(),
		watchedEmoji:   trakt.DefaultWatchedEmoji,
		requestTimeout: 5 * time.Second,
	}, mock
}

func get(t *testing.T, h http.Handler, target string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Result()
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.routes()

	t.Run("ready", func(t *testing.T) {
		resp := get(t, h, "/ready")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status 200, got %d", resp.StatusCode)
		}
	})

	t.Run("not_ready_store_closed", func(t *testing.T) {
		srv.store.Close()
		resp := get(t, h, "/ready")
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", resp.StatusCode)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.routes()

	// one request so the discover metrics carry samples
	get(t, h, "/catalog/movie/tmdb-discover-movies-8")

	resp := get(t, h, "/metrics")
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	bodyStr := string(body)
	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	if !strings.Contains(bodyStr, "gateway_discover_requests_total") {
		t.Error("Expected metrics output to contain gateway_discover_requests_total")
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.routes()

	resp := get(t, h, "/health")
	if id := resp.Header.Get(requestIDHeader); len(id) != 36 {
		t.Errorf("generated request id = %q", id)
	}

	const given = "0f8fad5b-d9cb-469f-a165-70867728950e"
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, given)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Result().Header.Get(requestIDHeader); got != given {
		t.Errorf("request id = %q, want %q", got, given)
	}
}

func TestCatalogEndpoint(t *testing.T) {
	srv, mock := newTestServer(t)
	h := srv.routes()

	resp := get(t, h, "/catalog/movie/tmdb-discover-movies-new-8?skip=0&genre=28&regions=de,us")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var body struct {
		Catalog    string      `json:"catalog"`
		Page       int         `json:"page"`
		TotalPages int         `json:"total_pages"`
		Results    []tmdb.Item `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Catalog != "tmdb-discover-movies-new-8" || body.Page != 1 {
		t.Errorf("catalog = %q page = %d", body.Catalog, body.Page)
	}
	if len(body.Results) != 20 {
		t.Errorf("results = %d, want 20 (both regions return the same ids)", len(body.Results))
	}

	srv.gateway.Wait()
	q := mock.GetLastQuery()
	if got := q.Get("sort_by"); got != "primary_release_date.desc" {
		t.Errorf("sort_by = %q", got)
	}
	if got := q.Get("with_genres"); got != "28" {
		t.Errorf("with_genres = %q", got)
	}
	if mock.PageRequests("/discover/movie", "DE", 1) != 1 || mock.PageRequests("/discover/movie", "US", 1) != 1 {
		t.Error("expected one page 1 request per region")
	}
}

func TestCatalogEndpoint_Errors(t *testing.T) {
	srv, mock := newTestServer(t)
	h := srv.routes()

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"unknown catalog", "/catalog/movie/imdb-top-250", http.StatusNotFound},
		{"type mismatch", "/catalog/series/tmdb-discover-movies-8", http.StatusNotFound},
		{"skip not a number", "/catalog/movie/tmdb-discover-movies-8?skip=abc", http.StatusBadRequest},
		{"negative skip", "/catalog/movie/tmdb-discover-movies-8?skip=-20", http.StatusBadRequest},
		{"skip past last page", "/catalog/movie/tmdb-discover-movies-8?skip=10000000000000000", http.StatusBadRequest},
		{"unknown age range", "/catalog/series/tmdb-discover-series-8?age=99", http.StatusBadRequest},
		{"bad require_poster", "/catalog/movie/tmdb-discover-movies-8?require_poster=maybe", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, h, tt.target)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			var body map[string]string
			json.NewDecoder(resp.Body).Decode(&body)
			if body["error"] == "" {
				t.Error("expected an error message")
			}
		})
	}
	if n := mock.GetRequestCount(); n != 0 {
		t.Errorf("upstream requests = %d, want 0", n)
	}
}

func TestCatalogEndpoint_UpstreamFailure(t *testing.T) {
	srv, mock := newTestServer(t)
	h := srv.routes()

	mock.SetResponse("/discover/movie", testutil.NewUnauthorizedResponse())
	if resp := get(t, h, "/catalog/movie/tmdb-discover-movies-8"); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("401 upstream: status = %d, want 401", resp.StatusCode)
	}

	mock.SetResponse("/discover/movie", testutil.NewServerErrorResponse())
	if resp := get(t, h, "/catalog/movie/tmdb-discover-movies-8?skip=0&regions=FR"); resp.StatusCode != http.StatusBadGateway {
		t.Errorf("500 upstream: status = %d, want 502", resp.StatusCode)
	}
}

func TestCatalogEndpoint_TraktAnnotation(t *testing.T) {
	srv, _ := newTestServer(t)
	history := &fakeHistory{
		tokens:  map[string]trakt.Tokens{"alice": {AccessToken: "a", LastFetchedAt: time.Now()}},
		watched: map[int64]struct{}{testutil.ItemID(0, 1, 0): {}},
	}
	srv.history = history
	srv.syncer = trakt.NewSyncer(noFetch{}, history, time.Hour, zerolog.Nop())
	h := srv.routes()

	resp := get(t, h, "/catalog/movie/tmdb-discover-movies-8?trakt_user=alice")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	var body struct {
		Results []tmdb.Item `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(body.Results[0].DisplayTitle(), trakt.DefaultWatchedEmoji) {
		t.Errorf("watched title = %q", body.Results[0].DisplayTitle())
	}
	if strings.HasPrefix(body.Results[1].DisplayTitle(), trakt.DefaultWatchedEmoji) {
		t.Errorf("unwatched title = %q", body.Results[1].DisplayTitle())
	}
}

func TestSaveTokensEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.routes()

	post := func(body string) int {
		req := httptest.NewRequest(http.MethodPost, "/trakt/alice/tokens", strings.NewReader(body))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	if code := post(`{"access_token":"a"}`); code != http.StatusNotFound {
		t.Errorf("without trakt: status = %d, want 404", code)
	}

	history := &fakeHistory{tokens: map[string]trakt.Tokens{}}
	srv.history = history

	if code := post(`{}`); code != http.StatusBadRequest {
		t.Errorf("missing token: status = %d, want 400", code)
	}
	if code := post(`{"access_token":"a","refresh_token":"r"}`); code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", code)
	}
	if got := history.tokens["alice"]; got.AccessToken != "a" || got.RefreshToken != "r" {
		t.Errorf("stored tokens = %+v", got)
	}
}

func TestLogoEndpoint_Disabled(t *testing.T) {
	srv, _ := newTestServer(t)
	if resp := get(t, srv.routes(), "/logo/603"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestOpenStore_SQLite(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{
		"SQLITE_PATH": filepath.Join(t.TempDir(), "nested", "cache.db"),
	})
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	store, err := openStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openStore() error = %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

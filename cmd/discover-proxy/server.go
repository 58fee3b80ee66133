package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/tmdb-discover-gateway/pkg/cache"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/discover"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/fanart"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/metrics"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/tmdb"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/trakt"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/upstream"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

// server exposes the gateway over HTTP. The trakt and fanart fields are nil
// when the integration is not configured.
type server struct {
	gateway *discover.Gateway
	store   cache.Store
	logger  zerolog.Logger

	syncer       *trakt.Syncer
	traktClient  *trakt.Client
	history      trakt.HistoryStore
	watchedEmoji string

	logos *fanart.Client

	requestTimeout time.Duration
}

func (s *server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestID)

	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.readyHandler).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/catalog/{type}/{id}", s.catalogHandler).Methods(http.MethodGet)
	r.HandleFunc("/logo/{tmdbId:[0-9]+}", s.logoHandler).Methods(http.MethodGet)
	r.HandleFunc("/trakt/{username}/tokens", s.saveTokensHandler).Methods(http.MethodPost)
	r.HandleFunc("/trakt/{username}/watched/{type}/{tmdbId:[0-9]+}", s.markWatchedHandler).Methods(http.MethodPost)
	return r
}

// statusRecorder captures the status code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestID tags every request with an id (taken from X-Request-ID or
// generated), attaches a request logger to the context and logs the result.
func (s *server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		logger := s.logger.With().Str("request_id", id).Logger()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r.WithContext(logger.WithContext(r.Context())))

		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (s *server) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Cache store not ready")
		writeError(w, http.StatusServiceUnavailable, "cache store unavailable")
		return
	}
	if s.history != nil {
		if err := s.history.Ping(ctx); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("History store not ready")
			writeError(w, http.StatusServiceUnavailable, "history store unavailable")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "READY")
}

// catalogResponse is a merged discover page.
type catalogResponse struct {
	Catalog string `json:"catalog"`
	Skip    int    `json:"skip"`
	*tmdb.Page
}

func (s *server) catalogHandler(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())
	vars := mux.Vars(r)
	id := vars["id"]

	catalog, err := discover.ParseCatalogID(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if trakt.KindFor(vars["type"]) != trakt.KindFor(catalog.Type) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("catalog %s is not a %s catalog", id, vars["type"]))
		return
	}
	req, err := catalogRequest(catalog, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	page, err := s.gateway.Discover(ctx, req)
	if err != nil {
		status := discoverStatus(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("catalog", id).Msg("Catalog request failed")
		}
		writeError(w, status, err.Error())
		return
	}

	if user := r.URL.Query().Get("trakt_user"); user != "" && s.syncer != nil {
		page.Results = s.syncer.Annotate(ctx, user, trakt.KindFor(catalog.Type), page.Results, s.watchedEmoji)
	}

	writeJSON(w, http.StatusOK, catalogResponse{Catalog: id, Skip: req.Skip, Page: page})
}

// catalogRequest builds the discovery request from the catalog and the
// query string.
func catalogRequest(catalog discover.Catalog, r *http.Request) (discover.Request, error) {
	q := r.URL.Query()
	req := catalog.Request()

	if v := q.Get("skip"); v != "" {
		skip, err := strconv.Atoi(v)
		if err != nil {
			return req, &discover.ConfigurationError{Field: "skip", Value: v, Reason: "not a number"}
		}
		req.Skip = skip
	}
	if v := q.Get("require_poster"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, &discover.ConfigurationError{Field: "require_poster", Value: v, Reason: "not a boolean"}
		}
		req.RequirePoster = b
	}
	for _, region := range strings.Split(q.Get("regions"), ",") {
		if region = strings.TrimSpace(region); region != "" {
			req.Regions = append(req.Regions, strings.ToUpper(region))
		}
	}

	req.Genre = q.Get("genre")
	req.AgeRange = q.Get("age")
	req.YearRange = q.Get("year")
	req.RatingRange = q.Get("rating")
	req.Language = q.Get("language")
	req.APIKey = q.Get("api_key")
	return req, nil
}

// discoverStatus maps gateway errors to HTTP status codes.
func discoverStatus(err error) int {
	var cfgErr *discover.ConfigurationError
	if errors.As(err, &cfgErr) {
		return http.StatusBadRequest
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if upstream.StatusCode(err) == http.StatusUnauthorized {
		return http.StatusUnauthorized
	}
	return http.StatusBadGateway
}

func (s *server) logoHandler(w http.ResponseWriter, r *http.Request) {
	if s.logos == nil {
		writeError(w, http.StatusNotFound, "logos are not configured")
		return
	}

	tmdbID, err := strconv.ParseInt(mux.Vars(r)["tmdbId"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tmdb id")
		return
	}
	language := r.URL.Query().Get("language")

	logoURL := s.logos.BestLogo(r.Context(), tmdbID, language)
	if logoURL == "" {
		writeError(w, http.StatusNotFound, "no logo")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"logo": logoURL})
}

func (s *server) saveTokensHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "trakt is not configured")
		return
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.AccessToken == "" {
		writeError(w, http.StatusBadRequest, "access_token is required")
		return
	}

	username := mux.Vars(r)["username"]
	if err := s.history.SaveTokens(r.Context(), username, body.AccessToken, body.RefreshToken); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("username", username).Msg("Saving trakt tokens failed")
		writeError(w, http.StatusInternalServerError, "saving tokens failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) markWatchedHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil || s.traktClient == nil {
		writeError(w, http.StatusNotFound, "trakt is not configured")
		return
	}

	vars := mux.Vars(r)
	username := vars["username"]
	kind := trakt.KindFor(vars["type"])
	tmdbID, err := strconv.ParseInt(vars["tmdbId"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tmdb id")
		return
	}

	tokens, err := s.history.Tokens(r.Context(), username)
	if errors.Is(err, trakt.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reading tokens failed")
		return
	}

	traktID, err := s.traktClient.LookupTraktID(r.Context(), tmdbID, kind, tokens.AccessToken)
	if err == nil {
		err = s.traktClient.MarkWatched(r.Context(), tokens.AccessToken, kind, traktID, time.Now())
	}
	if errors.Is(err, trakt.ErrTokenExpired) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Int64("tmdb_id", tmdbID).Msg("Marking watched failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

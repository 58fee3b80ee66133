package trakt

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/tmdb-discover-gateway/pkg/tmdb"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// WatchedFetcher is the part of Client the syncer needs.
type WatchedFetcher interface {
	FetchWatched(ctx context.Context, username string, kind Kind, accessToken string) ([]WatchedItem, error)
}

// Syncer refreshes stored history at most once per interval per user.
type Syncer struct {
	fetcher  WatchedFetcher
	store    HistoryStore
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewSyncer creates a syncer. interval defaults to 24h.
func NewSyncer(fetcher WatchedFetcher, store HistoryStore, interval time.Duration, logger zerolog.Logger) *Syncer {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Syncer{
		fetcher:  fetcher,
		store:    store,
		interval: interval,
		logger:   logger.With().Str("component", "trakt").Logger(),
		now:      time.Now,
	}
}

// Sync imports the watched movies and shows of username if the last import
// is older than the interval. It reports whether an import happened.
func (s *Syncer) Sync(ctx context.Context, username string) (bool, error) {
	tokens, err := s.store.Tokens(ctx, username)
	if err != nil {
		return false, err
	}

	now := s.now()
	if !tokens.LastFetchedAt.IsZero() && now.Sub(tokens.LastFetchedAt) < s.interval {
		syncsTotal.WithLabelValues("fresh").Inc()
		return false, nil
	}

	var movies, shows []WatchedItem
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		movies, err = s.fetcher.FetchWatched(gctx, username, KindMovies, tokens.AccessToken)
		return err
	})
	g.Go(func() error {
		var err error
		shows, err = s.fetcher.FetchWatched(gctx, username, KindShows, tokens.AccessToken)
		return err
	})
	if err := g.Wait(); err != nil {
		outcome := "failed"
		if errors.Is(err, ErrTokenExpired) {
			outcome = "token_expired"
		}
		syncsTotal.WithLabelValues(outcome).Inc()
		return false, err
	}

	entries := append(EntriesFromWatched(movies), EntriesFromWatched(shows)...)
	if err := s.store.ImportHistory(ctx, username, entries); err != nil {
		syncsTotal.WithLabelValues("failed").Inc()
		return false, err
	}
	if err := s.store.MarkFetched(ctx, username, now); err != nil {
		syncsTotal.WithLabelValues("failed").Inc()
		return false, err
	}

	syncsTotal.WithLabelValues("imported").Inc()
	importedEntries.Add(float64(len(entries)))
	s.logger.Info().
		Str("username", username).
		Int("movies", len(movies)).
		Int("shows", len(shows)).
		Msg("Trakt history imported")
	return true, nil
}

// Annotate marks the items username has watched. Sync failures are logged
// and the stored history is used as is; items are returned unchanged when
// no history can be read.
func (s *Syncer) Annotate(ctx context.Context, username string, kind Kind, items []tmdb.Item, emoji string) []tmdb.Item {
	log := s.logger.With().Str("username", username).Str("kind", string(kind)).Logger()

	if _, err := s.Sync(ctx, username); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return items
		}
		log.Warn().Err(err).Msg("Trakt history sync failed")
	}

	watched, err := s.store.WatchedTMDBIDs(ctx, username, kind.MediaType())
	if err != nil {
		log.Warn().Err(err).Msg("Reading watched history failed")
		return items
	}

	log.Debug().Int("watched", len(watched)).Msg("Annotating watched items")
	return AnnotateWatched(items, watched, emoji)
}

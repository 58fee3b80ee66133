package trakt

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/Sternrassler/tmdb-discover-gateway/pkg/tmdb"
)

// DefaultWatchedEmoji prefixes the titles of watched items.
const DefaultWatchedEmoji = "✔️"

// ErrUserNotFound is returned for users without stored tokens.
var ErrUserNotFound = errors.New("trakt user not found")

// HistoryEntry is one stored watched movie or show.
type HistoryEntry struct {
	// MediaID is the IMDb id, or "tmdb:<id>" when Trakt knows none.
	MediaID   string
	IMDBID    string
	TMDBID    int64
	Type      string // "movie" or "show"
	Title     string
	WatchedAt time.Time
}

// Tokens are a user's stored Trakt credentials.
type Tokens struct {
	AccessToken   string
	RefreshToken  string
	LastFetchedAt time.Time // zero if never synced
}

// HistoryStore persists watch history.
type HistoryStore interface {
	// ImportHistory upserts entries for username. Either all entries are
	// written or none.
	ImportHistory(ctx context.Context, username string, entries []HistoryEntry) error

	// WatchedTMDBIDs returns the TMDB ids of mediaType username has watched.
	WatchedTMDBIDs(ctx context.Context, username, mediaType string) (map[int64]struct{}, error)

	// SaveTokens stores credentials obtained elsewhere.
	SaveTokens(ctx context.Context, username, accessToken, refreshToken string) error

	// Tokens returns ErrUserNotFound for unknown users.
	Tokens(ctx context.Context, username string) (Tokens, error)

	MarkFetched(ctx context.Context, username string, at time.Time) error

	Ping(ctx context.Context) error
	Close() error
}

// EntriesFromWatched converts a Trakt response into history entries.
// Items without any usable id are skipped.
func EntriesFromWatched(items []WatchedItem) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(items))
	for _, item := range items {
		media, mediaType := item.Movie, "movie"
		if media == nil {
			media, mediaType = item.Show, "show"
		}
		if media == nil {
			continue
		}

		mediaID := media.IDs.IMDB
		if mediaID == "" {
			if media.IDs.TMDB == 0 {
				continue
			}
			// tmdb ids are only unique per media type
			mediaID = "tmdb:" + mediaType + ":" + strconv.FormatInt(media.IDs.TMDB, 10)
		}

		out = append(out, HistoryEntry{
			MediaID:   mediaID,
			IMDBID:    media.IDs.IMDB,
			TMDBID:    media.IDs.TMDB,
			Type:      mediaType,
			Title:     media.Title,
			WatchedAt: item.LastWatchedAt,
		})
	}
	return out
}

// AnnotateWatched prefixes the display title of every watched item with
// emoji. items is modified in place and returned.
func AnnotateWatched(items []tmdb.Item, watched map[int64]struct{}, emoji string) []tmdb.Item {
	if emoji == "" {
		emoji = DefaultWatchedEmoji
	}
	for i := range items {
		if _, ok := watched[items[i].ID]; ok {
			items[i].SetDisplayTitle(emoji + " " + items[i].DisplayTitle())
		}
	}
	return items
}

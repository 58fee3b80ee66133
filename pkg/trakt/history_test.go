package trakt

import (
	"testing"
	"time"

	"github.com/Sternrassler/tmdb-discover-gateway/pkg/tmdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntriesFromWatched(t *testing.T) {
	watchedAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	items := []WatchedItem{
		{LastWatchedAt: watchedAt, Movie: &Media{Title: "Heat", IDs: IDs{Trakt: 1, IMDB: "tt0113277", TMDB: 949}}},
		{LastWatchedAt: watchedAt, Show: &Media{Title: "Dark", IDs: IDs{Trakt: 2, TMDB: 70523}}},
		{LastWatchedAt: watchedAt, Show: &Media{Title: "No ids", IDs: IDs{Trakt: 3}}},
		{LastWatchedAt: watchedAt},
	}

	entries := EntriesFromWatched(items)
	require.Len(t, entries, 2)

	assert.Equal(t, HistoryEntry{
		MediaID: "tt0113277", IMDBID: "tt0113277", TMDBID: 949,
		Type: "movie", Title: "Heat", WatchedAt: watchedAt,
	}, entries[0])

	assert.Equal(t, "tmdb:show:70523", entries[1].MediaID)
	assert.Equal(t, "show", entries[1].Type)
	assert.Empty(t, entries[1].IMDBID)
}

func TestEntriesFromWatched_SharedTMDBID(t *testing.T) {
	watchedAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	items := []WatchedItem{
		{LastWatchedAt: watchedAt, Movie: &Media{Title: "Thrones movie", IDs: IDs{Trakt: 10, TMDB: 1399}}},
		{LastWatchedAt: watchedAt, Show: &Media{Title: "Game of Thrones", IDs: IDs{Trakt: 11, TMDB: 1399}}},
	}

	entries := EntriesFromWatched(items)
	require.Len(t, entries, 2)

	assert.Equal(t, "tmdb:movie:1399", entries[0].MediaID)
	assert.Equal(t, "tmdb:show:1399", entries[1].MediaID)
	assert.NotEqual(t, entries[0].MediaID, entries[1].MediaID, "movie and show must not share a history row")
}

func TestAnnotateWatched(t *testing.T) {
	items := []tmdb.Item{
		{ID: 1, Title: "Heat"},
		{ID: 2, Title: "Ronin"},
		{ID: 3, Name: "Dark"},
	}
	watched := map[int64]struct{}{1: {}, 3: {}}

	got := AnnotateWatched(items, watched, "")
	assert.Equal(t, "✔️ Heat", got[0].Title)
	assert.Equal(t, "Ronin", got[1].Title)
	assert.Equal(t, "✔️ Dark", got[2].Name)

	custom := AnnotateWatched([]tmdb.Item{{ID: 2, Title: "Ronin"}}, map[int64]struct{}{2: {}}, "👀")
	assert.Equal(t, "👀 Ronin", custom[0].Title)
}

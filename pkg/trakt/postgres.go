package trakt

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// PostgresHistoryStore keeps tokens and history in PostgreSQL.
type PostgresHistoryStore struct {
	pool *pgxpool.Pool
}

// OpenPostgresHistoryStore connects to dsn and applies migrations.
func OpenPostgresHistoryStore(ctx context.Context, dsn string) (*PostgresHistoryStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	s := &PostgresHistoryStore{pool: pool}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := migratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func migratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	fsys, err := fs.Sub(postgresMigrations, "migrations/postgres")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, stdlib.OpenDBFromPool(pool), fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	_, err = provider.Up(ctx)
	return err
}

func (s *PostgresHistoryStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresHistoryStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresHistoryStore) SaveTokens(ctx context.Context, username, accessToken, refreshToken string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trakt_tokens (username, access_token, refresh_token)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token
	`, username, accessToken, refreshToken)
	if err != nil {
		return fmt.Errorf("save tokens for %s: %w", username, err)
	}
	return nil
}

func (s *PostgresHistoryStore) Tokens(ctx context.Context, username string) (Tokens, error) {
	var (
		t           Tokens
		lastFetched *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT access_token, refresh_token, last_fetched_at
		FROM trakt_tokens WHERE username = $1
	`, username).Scan(&t.AccessToken, &t.RefreshToken, &lastFetched)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tokens{}, ErrUserNotFound
	}
	if err != nil {
		return Tokens{}, fmt.Errorf("load tokens for %s: %w", username, err)
	}
	if lastFetched != nil {
		t.LastFetchedAt = *lastFetched
	}
	return t, nil
}

func (s *PostgresHistoryStore) MarkFetched(ctx context.Context, username string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE trakt_tokens SET last_fetched_at = $1 WHERE username = $2`, at, username)
	if err != nil {
		return fmt.Errorf("mark %s fetched: %w", username, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ImportHistory upserts all entries in one transaction.
func (s *PostgresHistoryStore) ImportHistory(ctx context.Context, username string, entries []HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin history import tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		_, err := tx.Exec(ctx, `
			INSERT INTO trakt_history (username, media_id, imdb_id, tmdb_id, type, title, watched_at)
			VALUES ($1, $2, NULLIF($3::text, ''), NULLIF($4::bigint, 0), $5, $6, $7)
			ON CONFLICT (username, media_id) DO UPDATE SET
				imdb_id = EXCLUDED.imdb_id,
				tmdb_id = EXCLUDED.tmdb_id,
				type = EXCLUDED.type,
				title = EXCLUDED.title,
				watched_at = EXCLUDED.watched_at
		`, username, e.MediaID, e.IMDBID, e.TMDBID, e.Type, e.Title, e.WatchedAt)
		if err != nil {
			return fmt.Errorf("import %s for %s: %w", e.MediaID, username, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit history import tx: %w", err)
	}
	return nil
}

func (s *PostgresHistoryStore) WatchedTMDBIDs(ctx context.Context, username, mediaType string) (map[int64]struct{}, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tmdb_id FROM trakt_history
		WHERE username = $1 AND type = $2 AND tmdb_id IS NOT NULL
	`, username, mediaType)
	if err != nil {
		return nil, fmt.Errorf("query watched ids: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan watched ids: %w", err)
	}

	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

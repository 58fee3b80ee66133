package cache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

const sqliteBackend = "sqlite"

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

const entryColumns = `cache_key, series, value, page, skip, total_pages, dimensions, expires_at, cached_at`

// SQLiteStore keeps entries in a single durable table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLiteStore opens (or creates) the database at path and applies migrations.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrateSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(sqliteMigrations, "migrations/sqlite")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	_, err = provider.Up(ctx)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e          Entry
		dimensions string
		expiresAt  int64
		cachedAt   int64
	)
	if err := row.Scan(&e.Key, &e.Series, &e.Data, &e.Page, &e.Skip, &e.TotalPages, &dimensions, &expiresAt, &cachedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(dimensions), &e.Dimensions); err != nil {
		return nil, fmt.Errorf("%w: dimensions: %v", ErrInvalidEntry, err)
	}
	e.ExpiresAt = time.UnixMilli(expiresAt)
	e.CachedAt = time.UnixMilli(cachedAt)
	return &e, nil
}

// queryOne runs a single-row entry query and applies the freshness predicate.
func (s *SQLiteStore) queryOne(ctx context.Context, op, query string, args ...any) (*Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			CacheMisses.WithLabelValues(sqliteBackend).Inc()
			return nil, ErrCacheMiss
		}
		return nil, lookupError(sqliteBackend, op, err)
	}
	if !Fresh(e, s.now()) {
		CacheMisses.WithLabelValues(sqliteBackend).Inc()
		return nil, ErrCacheMiss
	}
	CacheHits.WithLabelValues(sqliteBackend).Inc()
	return e, nil
}

// Get retrieves a fresh entry by key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Entry, error) {
	return s.queryOne(ctx, "get",
		`SELECT `+entryColumns+` FROM cache_entries WHERE cache_key = ? AND expires_at > ?`,
		key, s.now().UnixMilli())
}

// Put upserts an entry.
func (s *SQLiteStore) Put(ctx context.Context, entry *Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.beyondLastPage() {
		SuppressedWrites.WithLabelValues(sqliteBackend).Inc()
		return nil
	}

	now := s.now()
	if !entry.ExpiresAt.After(now) {
		return nil
	}
	cachedAt := entry.CachedAt
	if cachedAt.IsZero() {
		cachedAt = now
	}
	data := entry.Data
	if data == nil {
		data = []byte{}
	}

	dimensions, err := json.Marshal(entry.Dimensions)
	if err != nil {
		return lookupError(sqliteBackend, "put", fmt.Errorf("marshal dimensions: %w", err))
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO cache_entries (`+entryColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (cache_key) DO UPDATE SET
	series = excluded.series,
	value = excluded.value,
	page = excluded.page,
	skip = excluded.skip,
	total_pages = excluded.total_pages,
	dimensions = excluded.dimensions,
	expires_at = excluded.expires_at,
	cached_at = excluded.cached_at
`,
		entry.Key,
		entry.Series,
		data,
		entry.Page,
		entry.Skip,
		entry.TotalPages,
		string(dimensions),
		entry.ExpiresAt.UnixMilli(),
		cachedAt.UnixMilli(),
	)
	if err != nil {
		return lookupError(sqliteBackend, "put", fmt.Errorf("upsert entry: %w", err))
	}

	CacheWrites.WithLabelValues(sqliteBackend).Inc()
	return nil
}

// Predecessor returns the fresh entry with the greatest skip <= skip.
func (s *SQLiteStore) Predecessor(ctx context.Context, series string, skip int) (*Entry, error) {
	return s.queryOne(ctx, "predecessor", `
SELECT `+entryColumns+` FROM cache_entries
WHERE series = ? AND skip <= ? AND expires_at > ?
ORDER BY skip DESC, page DESC
LIMIT 1`,
		series, skip, s.now().UnixMilli())
}

// Latest returns the most recently written fresh entry.
func (s *SQLiteStore) Latest(ctx context.Context, series string) (*Entry, error) {
	return s.queryOne(ctx, "latest", `
SELECT `+entryColumns+` FROM cache_entries
WHERE series = ? AND expires_at > ?
ORDER BY cached_at DESC, skip DESC, page DESC
LIMIT 1`,
		series, s.now().UnixMilli())
}

// SweepExpired deletes every row past its expiry.
func (s *SQLiteStore) SweepExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, lookupError(sqliteBackend, "sweep", fmt.Errorf("delete expired: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, lookupError(sqliteBackend, "sweep", err)
	}
	SweptEntries.WithLabelValues(sqliteBackend).Add(float64(n))
	return n, nil
}

// Ping checks the database.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the SQLite connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)

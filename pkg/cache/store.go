package cache

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache or is no longer fresh
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is a backend for cached pages.
//
// Reads never return an entry that is not Fresh; expired entries are
// left in place until SweepExpired removes them.
type Store interface {
	// Get returns the entry for key or ErrCacheMiss.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put upserts entry. An entry whose Page exceeds its TotalPages is
	// silently dropped.
	Put(ctx context.Context, entry *Entry) error

	// Predecessor returns the fresh entry of series with the greatest
	// Skip <= skip, preferring the highest Page among equal skips.
	Predecessor(ctx context.Context, series string, skip int) (*Entry, error)

	// Latest returns the most recently written fresh entry of series.
	Latest(ctx context.Context, series string) (*Entry, error)

	// SweepExpired deletes every entry past its ExpiresAt and returns the count.
	SweepExpired(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// LookupError wraps a backend failure of a read or write.
type LookupError struct {
	Backend string
	Op      string
	Err     error
}

// Error implements the error interface.
func (e *LookupError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *LookupError) Unwrap() error {
	return e.Err
}

func lookupError(backend, op string, err error) error {
	CacheErrors.WithLabelValues(backend, op).Inc()
	return &LookupError{Backend: backend, Op: op, Err: err}
}

// IsMiss reports whether err is a plain cache miss.
func IsMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

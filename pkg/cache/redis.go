package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisBackend = "redis"

	// scanBatch is how many index members are loaded per round trip.
	scanBatch = 50

	// pageScoreSpan packs (skip, page) into one sorted-set score.
	// Upstream page numbers stay below it (TMDB caps at 500).
	pageScoreSpan = 1000
)

// RedisStore keeps entries as JSON values with native TTL.
//
// Per series it maintains two sorted sets over entry keys: one scored by
// skip (then page) for predecessor lookups, one scored by write time for
// latest lookups. A set of all series drives the sweep, which also prunes
// index members whose entry Redis already expired.
type RedisStore struct {
	redis  *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a Redis backed store. prefix namespaces all keys.
func NewRedisStore(redisClient *redis.Client, prefix string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = "gateway:"
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *RedisStore) entryKey(key string) string {
	return s.prefix + "entry:" + key
}

func (s *RedisStore) skipIndex(series string) string {
	return s.prefix + "skip:" + series
}

func (s *RedisStore) recentIndex(series string) string {
	return s.prefix + "recent:" + series
}

func (s *RedisStore) seriesIndex() string {
	return s.prefix + "series"
}

func skipScore(skip, page int) float64 {
	if page >= pageScoreSpan {
		page = pageScoreSpan - 1
	}
	return float64(skip*pageScoreSpan + page)
}

// Get retrieves a fresh entry by key.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.redis.Get(ctx, s.entryKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.WithLabelValues(redisBackend).Inc()
			return nil, ErrCacheMiss
		}
		return nil, lookupError(redisBackend, "get", fmt.Errorf("redis get: %w", err))
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, lookupError(redisBackend, "get", fmt.Errorf("%w: %v", ErrInvalidEntry, err))
	}

	if !Fresh(&entry, s.now()) {
		CacheMisses.WithLabelValues(redisBackend).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(redisBackend).Inc()
	return &entry, nil
}

// Put upserts an entry with a TTL derived from ExpiresAt.
func (s *RedisStore) Put(ctx context.Context, entry *Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.beyondLastPage() {
		SuppressedWrites.WithLabelValues(redisBackend).Inc()
		return nil
	}

	e := *entry
	if e.CachedAt.IsZero() {
		e.CachedAt = s.now()
	}

	ttl := e.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		// Already expired, don't cache
		return nil
	}

	data, err := json.Marshal(&e)
	if err != nil {
		return lookupError(redisBackend, "put", fmt.Errorf("marshal cache entry: %w", err))
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.entryKey(e.Key), data, ttl)
		pipe.ZAdd(ctx, s.skipIndex(e.Series), redis.Z{Score: skipScore(e.Skip, e.Page), Member: e.Key})
		pipe.ZAdd(ctx, s.recentIndex(e.Series), redis.Z{Score: float64(e.CachedAt.UnixMilli()), Member: e.Key})
		pipe.SAdd(ctx, s.seriesIndex(), e.Series)
		return nil
	})
	if err != nil {
		return lookupError(redisBackend, "put", fmt.Errorf("redis pipeline: %w", err))
	}

	CacheWrites.WithLabelValues(redisBackend).Inc()
	return nil
}

// Predecessor walks the skip index downward from skip until it finds a fresh entry.
func (s *RedisStore) Predecessor(ctx context.Context, series string, skip int) (*Entry, error) {
	maxScore := strconv.FormatFloat(skipScore(skip, pageScoreSpan-1), 'f', 0, 64)

	for offset := int64(0); ; offset += scanBatch {
		keys, err := s.redis.ZRevRangeByScore(ctx, s.skipIndex(series), &redis.ZRangeBy{
			Min:    "-inf",
			Max:    maxScore,
			Offset: offset,
			Count:  scanBatch,
		}).Result()
		if err != nil {
			return nil, lookupError(redisBackend, "predecessor", fmt.Errorf("redis zrevrangebyscore: %w", err))
		}
		if len(keys) == 0 {
			return nil, ErrCacheMiss
		}

		entries, err := s.load(ctx, keys)
		if err != nil {
			return nil, lookupError(redisBackend, "predecessor", err)
		}
		for _, e := range entries {
			if e != nil {
				return e, nil
			}
		}
		if len(keys) < scanBatch {
			return nil, ErrCacheMiss
		}
	}
}

// Latest walks the recency index from the newest write until it finds a fresh entry.
// Entries written in the same millisecond are ordered by skip, then page.
func (s *RedisStore) Latest(ctx context.Context, series string) (*Entry, error) {
	for offset := int64(0); ; offset += scanBatch {
		keys, err := s.redis.ZRevRange(ctx, s.recentIndex(series), offset, offset+scanBatch-1).Result()
		if err != nil {
			return nil, lookupError(redisBackend, "latest", fmt.Errorf("redis zrevrange: %w", err))
		}
		if len(keys) == 0 {
			return nil, ErrCacheMiss
		}

		entries, err := s.load(ctx, keys)
		if err != nil {
			return nil, lookupError(redisBackend, "latest", err)
		}

		var best *Entry
		for _, e := range entries {
			if e == nil {
				continue
			}
			if best == nil {
				best = e
				continue
			}
			if e.CachedAt.UnixMilli() != best.CachedAt.UnixMilli() {
				break
			}
			if e.Skip > best.Skip || (e.Skip == best.Skip && e.Page > best.Page) {
				best = e
			}
		}
		if best != nil {
			return best, nil
		}
		if len(keys) < scanBatch {
			return nil, ErrCacheMiss
		}
	}
}

// load fetches entries for keys in order; missing, corrupt or stale ones are nil.
func (s *RedisStore) load(ctx context.Context, keys []string) ([]*Entry, error) {
	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = s.entryKey(k)
	}

	values, err := s.redis.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	now := s.now()
	entries := make([]*Entry, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			CacheErrors.WithLabelValues(redisBackend, "decode").Inc()
			continue
		}
		if Fresh(&e, now) {
			entries[i] = &e
		}
	}
	return entries, nil
}

// SweepExpired removes stale entries and the index members pointing at them.
func (s *RedisStore) SweepExpired(ctx context.Context) (int64, error) {
	seriesList, err := s.redis.SMembers(ctx, s.seriesIndex()).Result()
	if err != nil {
		return 0, lookupError(redisBackend, "sweep", fmt.Errorf("redis smembers: %w", err))
	}

	var removed int64
	for _, series := range seriesList {
		n, err := s.sweepSeries(ctx, series)
		if err != nil {
			return removed, lookupError(redisBackend, "sweep", err)
		}
		removed += n
	}

	SweptEntries.WithLabelValues(redisBackend).Add(float64(removed))
	return removed, nil
}

func (s *RedisStore) sweepSeries(ctx context.Context, series string) (int64, error) {
	keys, err := s.redis.ZRange(ctx, s.skipIndex(series), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zrange: %w", err)
	}

	var entries []*Entry
	if len(keys) > 0 {
		entries, err = s.load(ctx, keys)
		if err != nil {
			return 0, err
		}
	}

	var stale []string
	for i, e := range entries {
		if e == nil {
			stale = append(stale, keys[i])
		}
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range stale {
			pipe.Del(ctx, s.entryKey(k))
			pipe.ZRem(ctx, s.skipIndex(series), k)
			pipe.ZRem(ctx, s.recentIndex(series), k)
		}
		if len(stale) == len(keys) {
			pipe.Del(ctx, s.skipIndex(series), s.recentIndex(series))
			pipe.SRem(ctx, s.seriesIndex(), series)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis pipeline: %w", err)
	}
	return int64(len(stale)), nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.redis.Close()
}

var _ Store = (*RedisStore)(nil)

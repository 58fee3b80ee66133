package pagination

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/Sternrassler/tmdb-discover-gateway/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// PrefetchConfig holds prefetcher configuration
type PrefetchConfig struct {
	// PageCount is how many pages after the served one are warmed
	PageCount int

	// TTL of prefetched entries
	TTL time.Duration

	// MaxConcurrency bounds the parallel candidates of one Prefetch call.
	// The upstream scheduler still enforces the real limits.
	MaxConcurrency int

	// Timeout per page fetch
	Timeout time.Duration
}

// DefaultPrefetchConfig returns five pages, three days TTL.
func DefaultPrefetchConfig() PrefetchConfig {
	return PrefetchConfig{
		PageCount:      5,
		TTL:            72 * time.Hour,
		MaxConcurrency: 5,
		Timeout:        30 * time.Second,
	}
}

// PrefetchRequest describes the page that was just served.
type PrefetchRequest struct {
	Dimensions cache.Dimensions

	// Endpoint and Params are the upstream request without the page.
	Endpoint string
	Params   url.Values

	CurrentPage int
	TotalPages  int
}

// Prefetcher warms subsequent pages of a series in the background.
type Prefetcher struct {
	store  cache.Store
	loader *Loader
	config PrefetchConfig
	logger zerolog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// NewPrefetcher creates a prefetcher writing into store.
func NewPrefetcher(store cache.Store, loader *Loader, config PrefetchConfig, logger zerolog.Logger) *Prefetcher {
	defaults := DefaultPrefetchConfig()
	if config.PageCount < 0 {
		config.PageCount = 0
	}
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	return &Prefetcher{
		store:    store,
		loader:   loader,
		config:   config,
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

type candidate struct {
	page int
	key  string
}

// Prefetch schedules pages CurrentPage+1 .. CurrentPage+PageCount (bounded by
// TotalPages) and returns immediately. Pages already being prefetched are
// claimed before returning, so an immediate second call does not fetch them
// again.
func (p *Prefetcher) Prefetch(ctx context.Context, req PrefetchRequest) {
	candidates := p.claim(req)
	if len(candidates) == 0 {
		return
	}

	series := req.Dimensions.Series()
	bg := context.WithoutCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		start := time.Now()

		workers := pool.New().WithMaxGoroutines(p.config.MaxConcurrency)
		for _, c := range candidates {
			workers.Go(func() {
				defer p.release(c.key)
				p.prefetchPage(bg, req, series, c)
			})
		}
		workers.Wait()

		p.logger.Debug().
			Str("series", series).
			Int("current_page", req.CurrentPage).
			Int("candidates", len(candidates)).
			Dur("duration", time.Since(start)).
			Msg("Prefetch complete")
	}()
}

// Wait blocks until all scheduled prefetches have finished.
func (p *Prefetcher) Wait() {
	p.wg.Wait()
}

func (p *Prefetcher) claim(req PrefetchRequest) []candidate {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []candidate
	for i := 1; i <= p.config.PageCount; i++ {
		next := req.CurrentPage + i
		if next > req.TotalPages {
			break
		}
		key := cache.PageKey(req.Endpoint, req.Params, next)
		if _, busy := p.inflight[key]; busy {
			prefetchPagesTotal.WithLabelValues("in_flight").Inc()
			continue
		}
		p.inflight[key] = struct{}{}
		out = append(out, candidate{page: next, key: key})
	}
	return out
}

func (p *Prefetcher) release(key string) {
	p.mu.Lock()
	delete(p.inflight, key)
	p.mu.Unlock()
}

func (p *Prefetcher) prefetchPage(ctx context.Context, req PrefetchRequest, series string, c candidate) {
	log := p.logger.With().Str("series", series).Int("page", c.page).Logger()

	_, err := p.store.Get(ctx, c.key)
	if err == nil {
		prefetchPagesTotal.WithLabelValues("warm").Inc()
		return
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		log.Warn().Err(err).Msg("Prefetch cache check failed")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	page, err := p.loader.Load(fetchCtx, c.key, req.Endpoint, req.Params, c.page)
	cancel()
	if err != nil {
		prefetchPagesTotal.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Msg("Prefetch failed")
		return
	}

	entry := &cache.Entry{
		Key:        c.key,
		Series:     series,
		Data:       page.Data,
		Page:       c.page,
		Skip:       SyntheticSkip(c.page),
		TotalPages: page.TotalPages,
		Dimensions: req.Dimensions,
		ExpiresAt:  time.Now().Add(p.config.TTL),
	}
	if err := p.store.Put(ctx, entry); err != nil {
		prefetchPagesTotal.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Msg("Prefetch cache write failed")
		return
	}

	prefetchPagesTotal.WithLabelValues("fetched").Inc()
	log.Debug().Int("skip", entry.Skip).Msg("Prefetched page")
}

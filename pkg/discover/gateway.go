package discover

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/Sternrassler/tmdb-discover-gateway/pkg/cache"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/pagination"
	"github.com/Sternrassler/tmdb-discover-gateway/pkg/tmdb"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// Config holds gateway configuration.
type Config struct {
	// CatalogTTL is how long fetched pages stay fresh.
	CatalogTTL time.Duration

	// DefaultRegion is used when a request names no region. Empty means no
	// watch_region filter.
	DefaultRegion string

	// DefaultLanguage is used when a request names no language.
	DefaultLanguage string

	Prefetch pagination.PrefetchConfig
}

// DefaultConfig returns three days TTL and the default prefetch settings.
func DefaultConfig() Config {
	return Config{
		CatalogTTL:      72 * time.Hour,
		DefaultLanguage: "en-US",
		Prefetch:        pagination.DefaultPrefetchConfig(),
	}
}

// Gateway serves discovery requests from the cache store and the upstream.
type Gateway struct {
	store      cache.Store
	resolver   *pagination.Resolver
	loader     *pagination.Loader
	prefetcher *pagination.Prefetcher
	config     Config
	logger     zerolog.Logger
}

// New creates a gateway. fetcher is normally a *tmdb.Client.
func New(store cache.Store, fetcher pagination.PageFetcher, config Config, logger zerolog.Logger) *Gateway {
	if config.CatalogTTL <= 0 {
		config.CatalogTTL = DefaultConfig().CatalogTTL
	}
	if config.Prefetch.TTL <= 0 {
		config.Prefetch.TTL = config.CatalogTTL
	}

	logger = logger.With().Str("component", "discover").Logger()
	loader := pagination.NewLoader(fetcher)

	return &Gateway{
		store:      store,
		resolver:   pagination.NewResolver(store, logger),
		loader:     loader,
		prefetcher: pagination.NewPrefetcher(store, loader, config.Prefetch, logger),
		config:     config,
		logger:     logger,
	}
}

// Discover runs req against every region concurrently and merges the
// results. The first failing region aborts the call with an
// *AggregationError; malformed requests fail with a *ConfigurationError
// before any upstream call.
func (g *Gateway) Discover(ctx context.Context, req Request) (*tmdb.Page, error) {
	if req.Language == "" {
		req.Language = g.config.DefaultLanguage
	}
	mediaType := req.MediaType()

	if err := req.Validate(); err != nil {
		requestsTotal.WithLabelValues(mediaType, "invalid").Inc()
		return nil, err
	}
	base, err := buildQuery(req)
	if err != nil {
		requestsTotal.WithLabelValues(mediaType, "invalid").Inc()
		return nil, err
	}

	regions := req.Regions
	if len(regions) == 0 {
		regions = []string{g.config.DefaultRegion}
	}

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(mediaType).Observe(time.Since(start).Seconds())
	}()
	regionsPerRequest.Observe(float64(len(regions)))

	pages := make([]*tmdb.Page, len(regions))
	p := pool.New().
		WithErrors().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
	for i, region := range regions {
		p.Go(func(ctx context.Context) error {
			page, err := g.fetchRegion(ctx, req, base, region)
			if err != nil {
				return &AggregationError{Region: region, Err: err}
			}
			pages[i] = page
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		requestsTotal.WithLabelValues(mediaType, "failed").Inc()
		g.logger.Error().
			Err(err).
			Str("type", mediaType).
			Int("skip", req.Skip).
			Strs("regions", regions).
			Msg("Discovery failed")
		return nil, err
	}

	merged := Merge(pages)
	fetched := 0
	for _, page := range pages {
		fetched += len(page.Results)
	}
	duplicatesDropped.Add(float64(fetched - len(merged.Results)))

	if req.RequirePoster {
		merged.Results = withPosters(merged.Results)
	}

	requestsTotal.WithLabelValues(mediaType, "success").Inc()
	g.logger.Debug().
		Str("type", mediaType).
		Int("skip", req.Skip).
		Int("page", merged.Page).
		Int("results", len(merged.Results)).
		Int("regions", len(regions)).
		Dur("duration", time.Since(start)).
		Msg("Discovery served")

	return merged, nil
}

// fetchRegion resolves, serves and caches the page of one region, then
// schedules the prefetch of the following pages.
func (g *Gateway) fetchRegion(ctx context.Context, req Request, base url.Values, region string) (*tmdb.Page, error) {
	dims := req.dimensions(region)
	series := dims.Series()
	params := regionQuery(base, region)

	res := g.resolver.Resolve(ctx, series, req.Skip)
	key := cache.PageKey(dims.Endpoint, params, res.Page)

	log := g.logger.With().
		Str("region", region).
		Str("series", series).
		Int("skip", req.Skip).
		Int("page", res.Page).
		Logger()

	entry, err := g.store.Get(ctx, key)
	if err == nil {
		regionFetchesTotal.WithLabelValues("cache").Inc()
		log.Debug().Msg("Serving page from cache")
		return tmdb.DecodePage(entry.Data)
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		log.Warn().Err(err).Msg("Cache lookup failed, fetching upstream")
	}

	fetched, err := g.loader.Load(ctx, key, dims.Endpoint, params, res.Page)
	if err != nil {
		regionFetchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	regionFetchesTotal.WithLabelValues("upstream").Inc()

	page, err := tmdb.DecodePage(fetched.Data)
	if err != nil {
		return nil, err
	}

	entry = &cache.Entry{
		Key:        key,
		Series:     series,
		Data:       fetched.Data,
		Page:       res.Page,
		Skip:       req.Skip,
		TotalPages: fetched.TotalPages,
		Dimensions: dims,
		ExpiresAt:  time.Now().Add(g.config.CatalogTTL),
	}
	// the write outlives a fan-out cancelled by another region
	if err := g.store.Put(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn().Err(err).Msg("Cache write failed")
	}

	if fetched.TotalPages > res.Page {
		g.prefetcher.Prefetch(ctx, pagination.PrefetchRequest{
			Dimensions:  dims,
			Endpoint:    dims.Endpoint,
			Params:      params,
			CurrentPage: res.Page,
			TotalPages:  fetched.TotalPages,
		})
	}

	return page, nil
}

// Wait blocks until scheduled prefetches have finished.
func (g *Gateway) Wait() {
	g.prefetcher.Wait()
}

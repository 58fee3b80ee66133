package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RunSweeper calls SweepExpired once immediately and then every interval
// until ctx is done.
func RunSweeper(ctx context.Context, store Store, interval time.Duration, logger zerolog.Logger) {
	sweep := func() {
		start := time.Now()
		n, err := store.SweepExpired(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn().Err(err).Msg("Cache sweep failed")
			}
			return
		}
		logger.Info().
			Int64("removed", n).
			Dur("duration", time.Since(start)).
			Msg("Cache sweep completed")
	}

	sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

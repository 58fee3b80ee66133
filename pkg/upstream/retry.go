package upstream

import (
	"math/rand/v2"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryConfig holds the caller-side retry policy of a client.
type RetryConfig struct {
	// MaxAttempts is the number of attempts including the first one.
	// 1 disables retries.
	MaxAttempts int

	// InitialBackoff is the base delay before the first retry of a server error.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns a policy without retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    1,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// classBackoffFactor scales the base delay per error class.
// Rate limits back off longest, network errors a little longer than 5xx.
func classBackoffFactor(class ErrorClass) float64 {
	switch class {
	case ErrorClassRateLimit:
		return 5
	case ErrorClassNetwork:
		return 2
	default:
		return 1
	}
}

// backoff returns the delay before retry n (0-based) after err:
// exponential in n, scaled by class, capped, with ±20% jitter.
func (r RetryConfig) backoff(n uint, err error) time.Duration {
	d := float64(r.InitialBackoff) * classBackoffFactor(ClassOf(err))
	for i := uint(0); i < n; i++ {
		d *= 2
		if r.MaxBackoff > 0 && d > float64(r.MaxBackoff) {
			break
		}
	}
	if r.MaxBackoff > 0 && d > float64(r.MaxBackoff) {
		d = float64(r.MaxBackoff)
	}
	return time.Duration(d * (0.8 + rand.Float64()*0.4))
}

// delayType adapts backoff to retry-go.
func (r RetryConfig) delayType() retry.DelayTypeFunc {
	return func(n uint, err error, _ *retry.Config) time.Duration {
		return r.backoff(n, err)
	}
}

func isRetryable(err error) bool {
	return shouldRetry(ClassOf(err))
}

package enricher

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to a provider
type RateLimited struct {
	next    Provider
	limiter *rate.Limiter
}

// WithRateLimit wraps p so that at most perMinute calls start per minute,
// with bursts up to burst. A non-positive perMinute returns p unchanged.
func WithRateLimit(p Provider, perMinute, burst int) Provider {
	if perMinute <= 0 {
		return p
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{
		next:    p,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst),
	}
}

func (r *RateLimited) Name() string { return r.next.Name() }

func (r *RateLimited) Enrich(ctx context.Context, in Input) (*Result, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.next.Enrich(ctx, in)
}

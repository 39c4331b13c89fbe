package provider

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// RateLimited wraps an adapter with a client-side request rate limit, so a
// worker running several items concurrently does not hammer one upstream.
type RateLimited struct {
	inner   Adapter
	limiter *rate.Limiter
}

// WithRateLimit decorates an adapter with an rps cap. A non-positive rps
// returns the adapter unchanged.
func WithRateLimit(a Adapter, rps float64) Adapter {
	if rps <= 0 {
		return a
	}
	return &RateLimited{
		inner:   a,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (r *RateLimited) Name() string {
	return r.inner.Name()
}

func (r *RateLimited) Complete(ctx context.Context, req Request) (*Answer, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "provider: rate limit wait")
	}
	return r.inner.Complete(ctx, req)
}

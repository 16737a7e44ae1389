package provider

import (
	"context"
	"time"

	"fetchr/content"

	"golang.org/x/time/rate"
)

// RateLimited spaces out calls to a wrapped provider.
type RateLimited struct {
	next    Provider
	limiter *rate.Limiter
}

// WithRateLimit allows at most perMinute calls per minute through p, with a
// burst of one.
func WithRateLimit(p Provider, perMinute int) *RateLimited {
	return &RateLimited{
		next:    p,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (r *RateLimited) Kind() content.Provider { return r.next.Kind() }

// Complete waits for a slot, or for ctx to end. Giving up on the wait is a
// *ProviderError like any other failed call.
func (r *RateLimited) Complete(ctx context.Context, req Request) (content.Turn, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return content.Turn{}, &ProviderError{Provider: ProviderType(r.next.Kind()), Err: err}
	}
	return r.next.Complete(ctx, req)
}

package reliability

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter throttles calls to a single quota-limited external dependency
// (the vision model API, the CAPTCHA sidecar) independently of the inbound
// per-IP limiter in cmd/flightscout/middleware.go: one token bucket shared
// across every worker goroutine hitting that dependency, rather than one
// bucket per client IP.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a RateLimiter allowing rps requests per second with
// the given burst. rps <= 0 disables throttling entirely.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		return &RateLimiter{}
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a token is available or ctx is done. A nil receiver or
// one constructed with rps <= 0 never blocks.
func (l *RateLimiter) Wait(ctx context.Context) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

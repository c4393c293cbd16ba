// Package reliability provides the process-wide resilience primitives used
// by the session provider client: bounded retry with exponential backoff, a
// circuit breaker, and a best-effort proxy-health probe.
package reliability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy configures bounded retry with exponential backoff.
type RetryPolicy struct {
	MaxAttempts int                 // total attempts including the first; 0-indexed attempt k goes 0..MaxAttempts-1
	BaseDelay   time.Duration       // delay on attempt k is BaseDelay * 2^k
	Retryable   func(error) bool    // nil uses DefaultRetryable
	OnRetry     func(attempt int, err error, delay time.Duration)
}

// DefaultRetryPolicy returns the policy used for session creation: 3
// attempts, 2s base delay, default substring-matched predicate.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
	}
}

var defaultRetryableSubstrings = []string{
	"proxy", "timeout", "network", "connection refused", "etimedout",
}

// DefaultRetryable matches the substrings {"proxy", "timeout", "network",
// "connection refused", "ETIMEDOUT"} case-insensitively against err's
// message.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range defaultRetryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Retryer executes an operation under a RetryPolicy.
type Retryer struct {
	policy RetryPolicy
	logger *zap.Logger
}

// NewRetryer creates a Retryer. A zero-value policy field falls back to
// DefaultRetryPolicy's corresponding field.
func NewRetryer(policy RetryPolicy, logger *zap.Logger) *Retryer {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultRetryPolicy().BaseDelay
	}
	if policy.Retryable == nil {
		policy.Retryable = DefaultRetryable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{policy: policy, logger: logger}
}

// Do runs fn, retrying per the policy. On attempt k (0-indexed), a failure
// matched by the predicate sleeps BaseDelay*2^k before the next attempt;
// an unmatched failure surfaces immediately. After MaxAttempts, the last
// failure is surfaced.
func (r *Retryer) Do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !r.policy.Retryable(lastErr) {
			return lastErr
		}
		if attempt == r.policy.MaxAttempts-1 {
			break
		}
		delay := r.policy.BaseDelay * time.Duration(1<<uint(attempt))
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, lastErr, delay)
		}
		r.logger.Debug("retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return lastErr
}

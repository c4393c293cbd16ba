package reliability

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flightscout/orchestrator/types"
)

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	FailThreshold int           // consecutive failures before tripping Open
	ResetAfter    time.Duration // how long Open is held before probing HalfOpen
}

// DefaultBreakerConfig returns {fail_threshold=5, reset_after=60s}.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailThreshold: 5, ResetAfter: 60 * time.Second}
}

// BreakerMetrics is the subset of internal/metrics.Collector a Breaker
// reports against. Satisfied by *metrics.Collector; nil disables recording.
type BreakerMetrics interface {
	SetBreakerState(breaker string, state int)
}

// breakerStateGauge maps a BreakerState to the gauge value that
// metrics.Collector.SetBreakerState documents: 0=closed, 1=half_open, 2=open.
func breakerStateGauge(s types.BreakerState) int {
	switch s {
	case types.BreakerHalfOpen:
		return 1
	case types.BreakerOpen:
		return 2
	default:
		return 0
	}
}

// Breaker is a process-wide, mutex-guarded circuit breaker shared across all
// session creations. It implements exactly the transition rules in
// spec §4.A: record(success) decrements failures rather than resetting to
// zero, and a HalfOpen success closes the breaker.
type Breaker struct {
	name    string
	cfg     BreakerConfig
	logger  *zap.Logger
	metrics BreakerMetrics

	mu         sync.Mutex
	state      types.BreakerState
	failures   int
	opensUntil time.Time
}

// NewBreaker creates a Breaker in the Closed state, named for metrics and
// log correlation. metrics may be nil, in which case recording is a no-op.
func NewBreaker(name string, cfg BreakerConfig, logger *zap.Logger, metrics BreakerMetrics) *Breaker {
	if cfg.FailThreshold <= 0 {
		cfg.FailThreshold = DefaultBreakerConfig().FailThreshold
	}
	if cfg.ResetAfter <= 0 {
		cfg.ResetAfter = DefaultBreakerConfig().ResetAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Breaker{name: name, cfg: cfg, logger: logger, metrics: metrics, state: types.BreakerClosed}
	if metrics != nil {
		metrics.SetBreakerState(name, breakerStateGauge(types.BreakerClosed))
	}
	return b
}

// Allow reports whether a call may proceed. It returns false iff the breaker
// is Open and the reset deadline has not yet passed. If Open and the
// deadline has passed, it transitions to HalfOpen and returns true.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != types.BreakerOpen {
		return true
	}
	if time.Now().Before(b.opensUntil) {
		return false
	}
	b.setState(types.BreakerHalfOpen)
	return true
}

// RecordSuccess records a successful call. In HalfOpen it closes the
// breaker; in either Closed or HalfOpen it decrements the failure count by
// one, floored at zero.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == types.BreakerHalfOpen {
		b.setState(types.BreakerClosed)
	}
	if b.failures > 0 {
		b.failures--
	}
}

// RecordFailure records a failed call. Once failures reaches FailThreshold,
// the breaker trips Open with opens_until set ResetAfter from now and the
// failure counter reset to zero.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.failures >= b.cfg.FailThreshold {
		b.opensUntil = time.Now().Add(b.cfg.ResetAfter)
		b.failures = 0
		b.setState(types.BreakerOpen)
	}
}

// Snapshot returns a point-in-time view of the breaker's state.
func (b *Breaker) Snapshot() types.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return types.CircuitState{State: b.state, Failures: b.failures, OpensUntil: b.opensUntil}
}

// setState transitions state, logging the change. Caller must hold mu.
func (b *Breaker) setState(s types.BreakerState) {
	if b.state == s {
		return
	}
	b.logger.Info("circuit breaker state change", zap.String("breaker", b.name), zap.String("from", string(b.state)), zap.String("to", string(s)))
	b.state = s
	if b.metrics != nil {
		b.metrics.SetBreakerState(b.name, breakerStateGauge(s))
	}
}

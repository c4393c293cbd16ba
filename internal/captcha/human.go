package captcha

import (
	"context"
	"sync"
	"time"
)

const pollInterval = 500 * time.Millisecond

// Signaler is a minion-keyed registry of external "solved" notifications,
// grounded on agent/streaming/ws_adapter.go's connection-lifecycle pattern
// but narrowed to a single fire-once notification per pair rather than a
// full bidirectional stream.
type Signaler struct {
	mu      sync.Mutex
	solved  map[int]bool
	waiters map[int][]chan struct{}
}

// NewSignaler creates an empty Signaler.
func NewSignaler() *Signaler {
	return &Signaler{
		solved:  make(map[int]bool),
		waiters: make(map[int][]chan struct{}),
	}
}

// NotifySolved records that a human operator solved pairID's CAPTCHA and
// wakes any waiters.
func (s *Signaler) NotifySolved(pairID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.solved[pairID] = true
	for _, ch := range s.waiters[pairID] {
		close(ch)
	}
	delete(s.waiters, pairID)
}

// wait registers and returns a waiter channel that is closed once pairID is
// solved (immediately, if it already is). It does not block.
func (s *Signaler) wait(pairID int) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	if s.solved[pairID] {
		close(ch)
		return ch
	}
	s.waiters[pairID] = append(s.waiters[pairID], ch)
	return ch
}

// forget clears a pair's solved flag once its CAPTCHA wait is over, so the
// Signaler does not grow unbounded across a long-running orchestrator.
func (s *Signaler) forget(pairID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.solved, pairID)
}

func (d *Delegator) solveHuman(ctx context.Context, pairID int, emit EventFunc) bool {
	if d.signaler == nil {
		d.logger.Warn("human captcha mode configured without a signaler")
		return false
	}
	if emit != nil {
		emit("captcha_detected", map[string]any{"pair_id": pairID})
	}
	defer d.signaler.forget(pairID)

	deadline := time.NewTimer(d.cfg.HumanSolveTimeout)
	defer deadline.Stop()

	solvedCh := d.signaler.wait(pairID)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-solvedCh:
			return true
		case <-deadline.C:
			return false
		case <-ctx.Done():
			return false
		case <-ticker.C:
			// periodic wakeup purely for observability parity with the
			// sidecar loop; solvedCh already wakes us on the real signal.
		}
	}
}

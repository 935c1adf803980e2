// Package timer drives the periodic on_timer() invocations spec.md §6
// requires from a replica's collaborator: a fixed-cadence tick source
// feeding a single-threaded actor, so ticks must serialize with any
// other handler invocation rather than racing it.
package timer

import (
	"context"
	"time"
)

// OnTimer is the callback a replica exposes for timer ticks.
type OnTimer interface {
	OnTimer()
}

// Ticker calls target.OnTimer() every interval until its context is
// canceled. Ticks that arrive while the previous OnTimer call is still
// running are dropped rather than queued, since spec.md §5 treats the
// replica as a single-threaded cooperative actor: a slow handler
// should not cause a backlog of queued ticks to fire back-to-back once
// it returns.
type Ticker struct {
	interval time.Duration
	target   OnTimer
}

// New builds a Ticker that invokes target.OnTimer() every interval.
func New(interval time.Duration, target OnTimer) *Ticker {
	return &Ticker{interval: interval, target: target}
}

// Run blocks, ticking until ctx is done.
func (t *Ticker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.target.OnTimer()
		}
	}
}

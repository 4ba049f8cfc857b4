package rekoil

import (
	"context"
	"sync/atomic"
)

type Subscription struct {
	cell      *cell
	deliver   func()
	cancelled atomic.Bool
}

func (s *Subscription) Name() string {
	return "subscription to " + s.cell.name
}

func (s *Subscription) Cancelled() bool {
	return s.cancelled.Load()
}

// Cancel stops delivery. It is idempotent and, once it returns, the callback
// is not invoked again.
func (s *Subscription) Cancel() {
	if !s.cancelled.CompareAndSwap(false, true) {
		return
	}
	g := s.cell.g
	_ = g.run(context.Background(), func() {
		g.unsubscribe(s)
	})
}

// stop cancels without waiting for the owning dispatcher; the entry is
// dropped lazily. Used where blocking on another context could deadlock.
func (s *Subscription) stop() {
	s.cancelled.Store(true)
}

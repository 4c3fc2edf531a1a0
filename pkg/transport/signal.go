package transport

import (
	"sync"
	"time"
)

// signal is a binary semaphore. Releases coalesce: any number of Release
// calls before a Wait satisfy exactly one Wait. Abort wakes every present
// and future waiter.
type signal struct {
	ch        chan struct{}
	aborted   chan struct{}
	abortOnce sync.Once
}

func newSignal() *signal {
	return &signal{
		ch:      make(chan struct{}, 1),
		aborted: make(chan struct{}),
	}
}

// Release signals one waiter without blocking.
func (s *signal) Release() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until Release or Abort, or until timeout elapses. It reports
// false only on timeout.
func (s *signal) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-s.ch:
			return true
		case <-s.aborted:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.ch:
		return true
	case <-s.aborted:
		return true
	case <-timer.C:
		return false
	}
}

// Abort permanently releases all waiters. Safe to call more than once.
func (s *signal) Abort() {
	s.abortOnce.Do(func() {
		close(s.aborted)
	})
}

// Aborted reports whether Abort has been called.
func (s *signal) Aborted() bool {
	select {
	case <-s.aborted:
		return true
	default:
		return false
	}
}

package connection

import (
	"context"
	"errors"
	"sync"
)

// Loop errors.
var (
	ErrLoopRunning = errors.New("loop already running")
	ErrLoopStopped = errors.New("loop stopped")
)

// State represents the loop state.
type State uint8

const (
	// StateIdle indicates Run has not been called.
	StateIdle State = iota

	// StateRunning indicates a cycle is in progress.
	StateRunning

	// StateWaiting indicates the loop is waiting out the backoff.
	StateWaiting

	// StateStopped indicates Run has returned.
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateWaiting:
		return "WAITING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// CycleFunc runs one connection cycle and returns its first error.
type CycleFunc func(ctx context.Context) error

// Loop runs a CycleFunc repeatedly with a backoff between cycles. Every
// outcome is retryable; only context cancellation ends the loop.
type Loop struct {
	mu sync.RWMutex

	state   State
	started bool
	backoff *Backoff
	cycle   CycleFunc

	cycles   int
	failures int

	onStateChange func(oldState, newState State)
	onCycleDone   func(cycle int, err error)
}

// NewLoop creates a loop. A nil backoff uses NewBackoff.
func NewLoop(cycle CycleFunc, backoff *Backoff) *Loop {
	if backoff == nil {
		backoff = NewBackoff()
	}
	return &Loop{
		state:   StateIdle,
		backoff: backoff,
		cycle:   cycle,
	}
}

// Run cycles until ctx is done and returns ctx.Err(). A Loop runs once.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.state == StateStopped {
		l.mu.Unlock()
		return ErrLoopStopped
	}
	if l.started {
		l.mu.Unlock()
		return ErrLoopRunning
	}
	l.started = true
	l.mu.Unlock()

	defer l.setState(StateStopped)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.setState(StateRunning)
		err := l.cycle(ctx)

		l.mu.Lock()
		l.cycles++
		n := l.cycles
		if err != nil {
			l.failures++
		}
		onDone := l.onCycleDone
		l.mu.Unlock()

		if err == nil {
			l.backoff.Reset()
		}
		if onDone != nil {
			onDone(n, err)
		}

		l.setState(StateWaiting)
		if err := l.backoff.Wait(ctx); err != nil {
			return err
		}
	}
}

// State returns the current loop state.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Cycles returns the number of completed cycles.
func (l *Loop) Cycles() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cycles
}

// Failures returns the number of cycles that returned an error.
func (l *Loop) Failures() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.failures
}

// OnStateChange sets a callback for state changes.
func (l *Loop) OnStateChange(fn func(oldState, newState State)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onStateChange = fn
}

// OnCycleDone sets a callback invoked after every cycle.
func (l *Loop) OnCycleDone(fn func(cycle int, err error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onCycleDone = fn
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	old := l.state
	l.state = s
	fn := l.onStateChange
	l.mu.Unlock()

	if fn != nil && old != s {
		fn(old, s)
	}
}

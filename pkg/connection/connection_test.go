package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDefaultIsFixed(t *testing.T) {
	b := NewBackoff()
	assert.True(t, b.Fixed())
	for i := 0; i < 5; i++ {
		assert.Equal(t, DefaultDelay, b.Next())
	}
	assert.Equal(t, 5, b.Attempts())
}

func TestBackoffExponentialSequence(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{
		Initial:    InitialBackoff,
		Max:        MaxBackoff,
		Multiplier: BackoffMultiplier,
	})
	assert.False(t, b.Fixed())

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, b.Next(), "attempt %d", i+1)
	}

	b.Reset()
	assert.Equal(t, InitialBackoff, b.Current())
	assert.Zero(t, b.Attempts())
}

func TestBackoffJitterBounds(t *testing.T) {
	b := NewExponentialBackoff()
	for i := 0; i < 100; i++ {
		base := b.Current()
		d := b.Next()
		assert.GreaterOrEqual(t, d, base)
		assert.LessOrEqual(t, d, base+time.Duration(float64(base)*JitterFactor))
	}
}

func TestBackoffConfigNormalization(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{Initial: time.Second, Max: time.Millisecond, Multiplier: 0.5, Jitter: -1})
	assert.True(t, b.Fixed())
	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, time.Second, b.Next())

	b = NewBackoffWithConfig(BackoffConfig{})
	assert.Equal(t, DefaultDelay, b.Current())
}

func TestBackoffWaitCancelled(t *testing.T) {
	b := NewFixedBackoff(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	assert.ErrorIs(t, b.Wait(ctx), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestLoopRetriesAfterFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int
	boom := errors.New("boom")
	l := NewLoop(func(context.Context) error {
		calls++
		if calls == 3 {
			cancel()
			return nil
		}
		return boom
	}, NewFixedBackoff(time.Millisecond))

	var mu sync.Mutex
	var results []error
	l.OnCycleDone(func(_ int, err error) {
		mu.Lock()
		results = append(results, err)
		mu.Unlock()
	})

	err := l.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, l.Cycles())
	assert.Equal(t, 2, l.Failures())
	assert.Equal(t, []error{boom, boom, nil}, results)
	assert.Equal(t, StateStopped, l.State())
}

func TestLoopResetsBackoffOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBackoffWithConfig(BackoffConfig{Initial: time.Millisecond, Max: time.Second, Multiplier: 2})
	var calls int
	l := NewLoop(func(context.Context) error {
		calls++
		switch calls {
		case 1, 2:
			return errors.New("fail")
		case 3:
			return nil
		default:
			cancel()
			return nil
		}
	}, b)

	_ = l.Run(ctx)
	// Without the reset the base delay would have kept doubling.
	assert.Equal(t, 2*time.Millisecond, b.Current())
}

func TestLoopStateTransitions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := NewLoop(func(context.Context) error {
		cancel()
		return nil
	}, NewFixedBackoff(time.Millisecond))

	var transitions []string
	l.OnStateChange(func(oldState, newState State) {
		transitions = append(transitions, oldState.String()+"->"+newState.String())
	})

	require.ErrorIs(t, l.Run(ctx), context.Canceled)
	assert.Equal(t, []string{"IDLE->RUNNING", "RUNNING->WAITING", "WAITING->STOPPED"}, transitions)
}

func TestLoopRunsOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := NewLoop(func(context.Context) error { return nil }, nil)
	require.ErrorIs(t, l.Run(ctx), context.Canceled)
	assert.ErrorIs(t, l.Run(ctx), ErrLoopStopped)
	assert.Zero(t, l.Cycles())
}

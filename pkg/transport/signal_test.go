package transport

import (
	"sync"
	"testing"
	"time"
)

func TestSignalReleaseBeforeWait(t *testing.T) {
	s := newSignal()
	s.Release()
	s.Release() // coalesces

	if !s.Wait(10 * time.Millisecond) {
		t.Fatal("Wait should see the pending release")
	}
	if s.Wait(10 * time.Millisecond) {
		t.Fatal("releases must coalesce into one")
	}
}

func TestSignalWaitTimesOut(t *testing.T) {
	s := newSignal()
	start := time.Now()
	if s.Wait(50 * time.Millisecond) {
		t.Fatal("Wait returned true without a release")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Wait returned after %v, before the timeout", elapsed)
	}
}

func TestSignalZeroTimeoutPolls(t *testing.T) {
	s := newSignal()
	if s.Wait(0) {
		t.Fatal("zero timeout with nothing pending should report false")
	}
	s.Release()
	if !s.Wait(0) {
		t.Fatal("zero timeout should consume a pending release")
	}
}

func TestSignalAbortWakesAllWaiters(t *testing.T) {
	s := newSignal()

	const waiters = 8
	var wg sync.WaitGroup
	results := make(chan bool, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.Wait(10 * time.Second)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	s.Abort()
	s.Abort() // idempotent

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Abort did not release all waiters")
	}

	close(results)
	for r := range results {
		if !r {
			t.Error("aborted waiter reported a timeout")
		}
	}

	if !s.Aborted() {
		t.Error("Aborted should be true")
	}
	if !s.Wait(time.Hour) {
		t.Error("waits after Abort must return immediately")
	}
}

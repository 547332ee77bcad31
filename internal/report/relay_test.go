package report

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestSignalRelay_CoalescesConcurrentDeliveries(t *testing.T) {
	t.Parallel()
	r := newSignalRelay(nil)

	const n = 64
	var accepted atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(signo int32) {
			defer wg.Done()
			<-start
			if r.Deliver(signo) {
				accepted.Add(1)
			}
		}(int32(i%5 + 1))
	}
	close(start)
	wg.Wait()

	if got := accepted.Load(); got != 1 {
		t.Errorf("accepted deliveries = %d, want 1", got)
	}
	if got := r.posts.Load(); got != 1 {
		t.Errorf("semaphore posts = %d, want 1", got)
	}
	if got := r.coalesced.Load(); got != n-1 {
		t.Errorf("coalesced = %d, want %d", got, n-1)
	}
	if len(r.sem) != 1 {
		t.Errorf("semaphore tokens = %d, want 1", len(r.sem))
	}
	if r.Pending() == 0 {
		t.Error("no signal pending")
	}
}

func TestSignalRelay_AcceptsAfterClear(t *testing.T) {
	t.Parallel()
	r := newSignalRelay(nil)

	if !r.Deliver(12) {
		t.Fatal("first delivery rejected")
	}
	if r.Deliver(3) {
		t.Fatal("second distinct signal accepted while one pending")
	}
	if r.Pending() != 12 {
		t.Errorf("Pending() = %d, want the first signal", r.Pending())
	}

	<-r.sem
	r.clear()
	if !r.Deliver(3) {
		t.Error("delivery after clear rejected")
	}
	if r.posts.Load() != 2 {
		t.Errorf("posts = %d, want 2", r.posts.Load())
	}
}

func TestSignalRelay_IgnoresZero(t *testing.T) {
	t.Parallel()
	r := newSignalRelay(nil)
	if r.Deliver(0) {
		t.Error("signal 0 accepted")
	}
	if r.posts.Load() != 0 || r.coalesced.Load() != 0 {
		t.Error("signal 0 counted")
	}
}

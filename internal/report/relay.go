package report

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
)

// signalRelay turns signal deliveries into at most one pending signal and a
// wake-up for the watchdog. Deliver is the only code that runs for every
// signal; it neither locks nor allocates.
type signalRelay struct {
	pending atomic.Int32
	sem     chan struct{}

	posts     atomic.Uint64
	coalesced atomic.Uint64
	observe   func(accepted bool)

	mu      sync.Mutex
	ch      chan os.Signal
	stop    chan struct{}
	done    chan struct{}
	current os.Signal
}

func newSignalRelay(observe func(accepted bool)) *signalRelay {
	return &signalRelay{sem: make(chan struct{}, 1), observe: observe}
}

// Deliver records signo as pending if nothing is pending yet and wakes the
// watchdog. It reports whether the delivery was accepted; a delivery made
// while another is pending is dropped.
func (r *signalRelay) Deliver(signo int32) bool {
	if signo == 0 {
		return false
	}
	if !r.pending.CompareAndSwap(0, signo) {
		r.coalesced.Add(1)
		return false
	}
	select {
	case r.sem <- struct{}{}:
	default:
	}
	r.posts.Add(1)
	return true
}

// Pending returns the signal number waiting for pickup, or 0.
func (r *signalRelay) Pending() int32 {
	return r.pending.Load()
}

func (r *signalRelay) clear() {
	r.pending.Store(0)
}

// start registers for sig, replacing any previous registration.
func (r *signalRelay) start(sig os.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()

	ch := make(chan os.Signal, 1)
	stop := make(chan struct{})
	done := make(chan struct{})
	signal.Notify(ch, sig)
	r.ch, r.stop, r.done, r.current = ch, stop, done, sig

	go func() {
		defer close(done)
		for {
			select {
			case s := <-ch:
				accepted := r.Deliver(signalNumber(s))
				if r.observe != nil {
					r.observe(accepted)
				}
			case <-stop:
				return
			}
		}
	}()
}

// stopRelay removes the signal registration, restoring default handling.
func (r *signalRelay) stopRelay() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *signalRelay) stopLocked() {
	if r.ch == nil {
		return
	}
	signal.Stop(r.ch)
	close(r.stop)
	<-r.done
	r.ch, r.stop, r.done, r.current = nil, nil, nil, nil
}

// registered returns the signal currently relayed, or nil.
func (r *signalRelay) registered() os.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

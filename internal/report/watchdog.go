package report

import (
	"context"
	"runtime"

	"github.com/hugo-lorenzo-mato/procreport/internal/engine"
)

// setupSignalHandlerLocked creates the idle wake handle, starts the watchdog
// and registers the signal. On failure signal reports stay disabled. Callers
// hold setupMu.
func (c *Controller) setupSignalHandlerLocked(eng Engine) {
	if eng == nil {
		// Attach finishes the setup.
		return
	}
	sig := c.config.snapshot().Signal
	if sig == nil {
		c.logger.Warn("signal reporting unavailable", "error", ErrSignalUnsupported)
		return
	}

	if err := c.replaceWake(eng); err != nil {
		c.logger.Error("initialising signal reporting failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.watchdogCancel, c.watchdogDone = cancel, done
	go c.runWatchdog(ctx, done)

	c.relay.start(sig)
	c.signalReady = true
}

// replaceWake registers a new idle wake handle on eng and closes the one it
// replaces. When eng cannot take a handle the old one is closed anyway so no
// wake is left on a loop the controller no longer reports for.
func (c *Controller) replaceWake(eng Engine) error {
	var (
		wake *engine.Async
		err  error
	)
	if eng != nil {
		wake, err = eng.NewAsync(c.handleIdleWake)
		if err == nil {
			wake.Unref()
		}
	}

	c.engineMu.Lock()
	old := c.wake
	c.wake = wake
	c.engineMu.Unlock()
	if old != nil {
		old.Close()
	}
	return err
}

// runWatchdog hands pending signals to the engine. Both the interrupt and the
// idle wake are requested; whichever runs first drains the mailbox.
func (c *Controller) runWatchdog(ctx context.Context, done chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.relay.sem:
		}
		if ctx.Err() != nil {
			return
		}

		signo := c.relay.Pending()
		if c.config.snapshot().Verbose {
			c.logger.Info("report signal received", "signal", c.signalDisplayName(signo))
		}

		c.engineMu.Lock()
		if c.eng != nil {
			if c.interruptQueued.CompareAndSwap(false, true) {
				c.eng.RequestInterrupt(c.handleInterrupt)
			}
			if c.wake != nil {
				if err := c.wake.Send(); err != nil {
					c.logger.Warn("waking event loop for signal report", "error", err)
				}
			}
		} else {
			c.relay.clear()
			c.metrics.triggerDropped("no_engine")
		}
		c.engineMu.Unlock()
	}
}

// handleInterrupt runs at a checkpoint inside an executing task.
func (c *Controller) handleInterrupt() {
	c.interruptQueued.Store(false)
	c.drainSignal(EventSignalFromScript, "SignalInterrupt")
}

// handleIdleWake runs on the loop goroutine as an async callback.
func (c *Controller) handleIdleWake() {
	c.drainSignal(EventSignalFromIdleLoop, "SignalIdleWake")
}

func (c *Controller) drainSignal(ev DumpEvent, location string) {
	signo := c.relay.Pending()
	if signo == 0 {
		return
	}
	opts := c.config.snapshot()
	if opts.Verbose {
		c.logger.Info("handling report signal", "location", location)
	}
	if opts.Events.Has(MaskSignal) {
		if opts.Verbose {
			c.logger.Info("triggering signal report", "location", location)
		}
		req := request{
			event:    ev,
			message:  c.signalDisplayName(signo),
			location: location,
		}
		if ev == EventSignalFromScript {
			req.stack = engine.CaptureStack(2)
		}
		c.trigger(req)
	}
	c.relay.clear()
}

func (c *Controller) signalDisplayName(signo int32) string {
	return signalName(signalFromNumber(signo))
}

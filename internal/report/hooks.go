package report

import (
	"github.com/hugo-lorenzo-mato/procreport/internal/engine"
)

// onFatalError is installed as the engine's fatal-error handler. It does not
// return: the process aborts or exits according to the core dump policy.
func (c *Controller) onFatalError(location, message string) {
	c.logger.Error("FATAL ERROR", "location", location, "message", message)

	opts := c.config.snapshot()
	if opts.Events.Has(MaskFatalError) {
		c.trigger(request{
			event:    EventFatalError,
			message:  message,
			location: location,
			stack:    engine.CaptureStack(1),
		})
	}

	if opts.CoreDump {
		c.proc.Abort()
		return
	}
	c.proc.Exit(1)
}

// onUncaughtException is installed as the engine's uncaught-exception handler.
// The engine calls it before unwinding, so the stack captured here still holds
// the panicking frames. The result tells the engine whether to abort.
func (c *Controller) onUncaughtException(ex *engine.Exception) bool {
	opts := c.config.snapshot()
	if opts.Events.Has(MaskException) {
		c.trigger(request{
			event:     EventException,
			message:   ex.Message,
			location:  "OnUncaughtException",
			exception: ex,
			stack:     engine.CaptureStack(1),
		})
	}
	return opts.CoreDump
}

package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hugo-lorenzo-mato/procreport/internal/engine"
)

var (
	// ErrEventDisabled is returned by Dump when API call reports are disabled.
	ErrEventDisabled = errors.New("apicall event is disabled")
	// ErrReportNotWritten is returned by Dump when no report was produced,
	// either because another report was in progress or the output could not
	// be opened.
	ErrReportNotWritten = errors.New("report not written")
)

// Result describes a completed report.
type Result struct {
	Filename string
	Path     string
	ReportID string
	Bytes    int64
	Duration time.Duration
}

// Controller owns the report configuration, the signal relay and watchdog,
// the engine hooks and the report pipeline.
type Controller struct {
	logger    *slog.Logger
	renderer  Renderer
	config    *configState
	relay     *signalRelay
	metrics   *Metrics
	catalog   Catalog
	listeners []func(Record)
	proc      engine.ProcessControl
	stdout    io.Writer
	stderr    io.Writer
	now       func() time.Time
	loadTime  time.Time
	pid       int

	seq    atomic.Uint64
	active atomic.Bool

	engineMu sync.Mutex
	eng      Engine
	wake     *engine.Async
	// interruptQueued is set while a handleInterrupt request is waiting in
	// the engine, so repeated signals do not grow its interrupt queue.
	interruptQueued atomic.Bool

	setupMu         sync.Mutex
	fatalHooked     bool
	exceptionHooked bool
	signalReady     bool
	watchdogCancel  context.CancelFunc
	watchdogDone    chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the diagnostic stream.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithMetrics records report metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithCatalog records written report files.
func WithCatalog(cat Catalog) Option {
	return func(c *Controller) {
		c.catalog = cat
	}
}

// WithListener registers fn to run after every completed report, stream
// targets included. fn runs on the reporting goroutine and must not block.
func WithListener(fn func(Record)) Option {
	return func(c *Controller) {
		c.listeners = append(c.listeners, fn)
	}
}

// WithProcessControl replaces process termination after fatal errors.
func WithProcessControl(p engine.ProcessControl) Option {
	return func(c *Controller) {
		c.proc = p
	}
}

// WithOptions sets the initial configuration.
func WithOptions(opts Options) Option {
	return func(c *Controller) {
		c.config = newConfigState(opts)
	}
}

// WithStreams replaces the writers used for the stdout and stderr report
// targets.
func WithStreams(stdout, stderr io.Writer) Option {
	return func(c *Controller) {
		c.stdout, c.stderr = stdout, stderr
	}
}

// WithClock replaces the time source used for dump times and generated names.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// New creates a controller that renders reports with r.
func New(r Renderer, opts ...Option) *Controller {
	c := &Controller{
		logger:   slog.Default(),
		renderer: r,
		config:   newConfigState(DefaultOptions()),
		proc:     engine.OSProcess{},
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		now:      time.Now,
		pid:      os.Getpid(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c.loadTime = c.now()
	c.relay = newSignalRelay(c.metrics.signalDelivered)
	return c
}

// Options returns a copy of the current configuration.
func (c *Controller) Options() Options {
	return c.config.snapshot()
}

// LoadTime returns when the controller was created.
func (c *Controller) LoadTime() time.Time {
	return c.loadTime
}

// Attach connects the controller to an engine and installs the hooks and
// signal handling the current event mask asks for.
func (c *Controller) Attach(eng Engine) {
	c.engineMu.Lock()
	prev := c.eng
	c.eng = eng
	c.engineMu.Unlock()

	c.setupMu.Lock()
	c.fatalHooked = false
	c.exceptionHooked = false
	if c.signalReady && prev != eng {
		// The idle wake and any queued interrupt belong to the old engine.
		c.interruptQueued.Store(false)
		if err := c.replaceWake(eng); err != nil {
			c.logger.Error("moving signal reporting to new engine failed", "error", err)
		}
	}
	c.setupMu.Unlock()

	opts := c.config.snapshot()
	if opts.Verbose {
		c.logger.Info("report controller attached",
			"events", opts.Events.String(),
			"signal", opts.SignalName(),
			"coredump", opts.CoreDump,
			"directory", opts.Directory,
			"filename", opts.Filename)
	}
	c.applyEvents(0, opts.Events)
}

func (c *Controller) engine() Engine {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	return c.eng
}

// Shutdown stops signal handling and waits for the watchdog to exit.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.relay.stopRelay()

	c.setupMu.Lock()
	cancel, done := c.watchdogCancel, c.watchdogDone
	c.watchdogCancel, c.watchdogDone = nil, nil
	c.signalReady = false
	c.setupMu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("waiting for watchdog: %w", ctx.Err())
		}
	}

	c.engineMu.Lock()
	wake := c.wake
	c.wake = nil
	c.engineMu.Unlock()
	if wake != nil {
		wake.Close()
	}
	return nil
}

// applyEvents installs hooks for newly enabled event classes and switches the
// signal registration when the signal class changes.
func (c *Controller) applyEvents(prev, cur EventMask) {
	c.setupMu.Lock()
	defer c.setupMu.Unlock()

	eng := c.engine()
	if eng != nil {
		if cur.Has(MaskFatalError) && !c.fatalHooked {
			eng.SetFatalErrorHandler(c.onFatalError)
			c.fatalHooked = true
		}
		if cur.Has(MaskException) && !c.exceptionHooked {
			eng.SetUncaughtExceptionHandler(c.onUncaughtException)
			c.exceptionHooked = true
		}
	}

	switch {
	case cur.Has(MaskSignal) && !c.signalReady:
		c.setupSignalHandlerLocked(eng)
	case cur.Has(MaskSignal) && c.relay.registered() == nil:
		if sig := c.config.snapshot().Signal; sig != nil {
			c.relay.start(sig)
		}
	case !cur.Has(MaskSignal) && prev.Has(MaskSignal):
		c.relay.stopRelay()
	}
}

// SetEvents replaces the event mask with the "+"-joined tokens in s.
func (c *Controller) SetEvents(s string) error {
	mask, err := ParseEvents(s)
	if err != nil {
		c.logger.Error("invalid report events option", "value", s, "error", err)
		return err
	}
	before, _ := c.config.update(func(o *Options) { o.Events = mask })
	c.applyEvents(before.Events, mask)
	return nil
}

// SetCoreDump sets whether fatal errors abort with a core dump.
func (c *Controller) SetCoreDump(s string) error {
	v, err := ParseSwitch(s)
	if err != nil {
		c.logger.Error("invalid report coredump option", "value", s, "error", err)
		return err
	}
	c.config.update(func(o *Options) { o.CoreDump = v })
	return nil
}

// SetSignal sets the signal that triggers reports.
func (c *Controller) SetSignal(s string) error {
	sig, err := ParseSignal(s)
	if err != nil {
		c.logger.Error("invalid report signal option", "value", s, "error", err)
		return err
	}
	before, after := c.config.update(func(o *Options) { o.Signal = sig })

	c.setupMu.Lock()
	defer c.setupMu.Unlock()
	if after.Events.Has(MaskSignal) && c.signalReady && signalNumber(before.Signal) != signalNumber(sig) {
		c.relay.start(sig)
	}
	return nil
}

// SetFileName sets the name used for reports that are not given one.
func (c *Controller) SetFileName(s string) error {
	if err := validateFilename(s); err != nil {
		c.logger.Error("invalid report filename option", "value", s, "error", err)
		return err
	}
	c.config.update(func(o *Options) { o.Filename = s })
	return nil
}

// SetDirectory sets the directory reports are written to.
func (c *Controller) SetDirectory(s string) error {
	if err := validateDirectory(s); err != nil {
		c.logger.Error("invalid report directory option", "value", s, "error", err)
		return err
	}
	c.config.update(func(o *Options) { o.Directory = s })
	return nil
}

// SetVerbose enables step-by-step logging of signal handling.
func (c *Controller) SetVerbose(s string) error {
	v, err := ParseSwitch(s)
	if err != nil {
		c.logger.Error("invalid report verbose option", "value", s, "error", err)
		return err
	}
	c.config.update(func(o *Options) { o.Verbose = v })
	return nil
}

// Configure applies every non-empty setting. Invalid settings are skipped and
// returned together; valid ones still apply.
func (c *Controller) Configure(s Settings) error {
	var errs []error
	apply := func(value string, set func(string) error) {
		if value == "" {
			return
		}
		if err := set(value); err != nil {
			errs = append(errs, err)
		}
	}
	apply(s.Verbose, c.SetVerbose)
	apply(s.Events, c.SetEvents)
	apply(s.CoreDump, c.SetCoreDump)
	apply(s.Signal, c.SetSignal)
	apply(s.Filename, c.SetFileName)
	apply(s.Directory, c.SetDirectory)
	return errors.Join(errs...)
}

// Set applies one option by name. Names are events, coredump, signal,
// filename, directory and verbose.
func (c *Controller) Set(option, value string) error {
	switch option {
	case "events":
		return c.SetEvents(value)
	case "coredump":
		return c.SetCoreDump(value)
	case "signal":
		return c.SetSignal(value)
	case "filename":
		return c.SetFileName(value)
	case "directory":
		return c.SetDirectory(value)
	case "verbose":
		return c.SetVerbose(value)
	default:
		return fmt.Errorf("%w: option %q", ErrUnknownToken, option)
	}
}

// TriggerReport writes a report now and returns its filename. It must run on
// the engine goroutine; the script stack is the caller's stack.
func (c *Controller) TriggerReport(filename string) (string, error) {
	res, err := c.dump(filename, 1)
	return res.Filename, err
}

// Dump is TriggerReport returning the full result.
func (c *Controller) Dump(filename string) (Result, error) {
	return c.dump(filename, 1)
}

func (c *Controller) dump(filename string, skip int) (Result, error) {
	if len(filename) > MaxFilenameLen {
		return Result{}, ErrFilenameTooLong
	}
	if !c.config.snapshot().Events.Has(MaskAPICall) {
		return Result{}, ErrEventDisabled
	}
	res := c.trigger(request{
		event:    EventAPICall,
		message:  "API call",
		location: "TriggerReport",
		filename: filename,
		stack:    engine.CaptureStack(skip + 1),
	})
	if res.Filename == "" {
		return res, ErrReportNotWritten
	}
	return res, nil
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	// ErrLoopClosed is returned when work is submitted to a stopped loop.
	ErrLoopClosed = errors.New("engine: loop closed")
	// ErrLoopRunning is returned by Run when the loop is already running.
	ErrLoopRunning = errors.New("engine: loop already running")
	// ErrTaskPanicked is returned by Call when the task did not complete.
	ErrTaskPanicked = errors.New("engine: task panicked")
)

// VMState describes what the loop goroutine is doing.
type VMState int32

const (
	StateIdle VMState = iota
	StateScript
	StateGC
	StateExternal
	StateOther
)

var vmStateNames = [...]string{"IDLE", "SCRIPT", "GC", "EXTERNAL", "OTHER"}

func (s VMState) String() string {
	if s < 0 || int(s) >= len(vmStateNames) {
		return "<unknown>"
	}
	return vmStateNames[s]
}

// FatalErrorHandler receives unrecoverable engine errors. It runs on whichever
// goroutine raised the error and is not expected to return.
type FatalErrorHandler func(location, message string)

// UncaughtExceptionHandler receives panics that escaped a task. It runs inside
// the recovering deferred call, so the panicking frames are still on the
// stack. Returning true asks the engine to abort the process.
type UncaughtExceptionHandler func(ex *Exception) bool

// UnhandledMode selects what the loop does with an uncaught exception that no
// handler asked to abort on.
type UnhandledMode int

const (
	// UnhandledExit logs the exception and exits with status 1.
	UnhandledExit UnhandledMode = iota
	// UnhandledContinue logs the exception and keeps the loop running.
	UnhandledContinue
)

// ParseUnhandledMode parses "exit" or "continue".
func ParseUnhandledMode(s string) (UnhandledMode, error) {
	switch s {
	case "", "exit":
		return UnhandledExit, nil
	case "continue":
		return UnhandledContinue, nil
	default:
		return UnhandledExit, fmt.Errorf("unknown unhandled exception mode %q", s)
	}
}

// Loop is a single-goroutine event loop.
type Loop struct {
	logger    *slog.Logger
	proc      ProcessControl
	unhandled UnhandledMode

	tasks chan task
	wake  chan struct{}
	done  chan struct{}

	stopOnce sync.Once
	started  atomic.Bool
	closed   atomic.Bool

	state    atomic.Int32
	threadID atomic.Int64

	intrMu      sync.Mutex
	interrupts  []func()
	intrPending atomic.Bool

	hookMu     sync.RWMutex
	onFatal    FatalErrorHandler
	onUncaught UncaughtExceptionHandler

	handles *registry

	asyncMu sync.Mutex
	asyncs  []*Async
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLogger sets the loop logger.
func WithLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithProcessControl replaces the process termination primitives.
func WithProcessControl(p ProcessControl) LoopOption {
	return func(l *Loop) {
		l.proc = p
	}
}

// WithUnhandledMode sets the default uncaught exception behaviour.
func WithUnhandledMode(m UnhandledMode) LoopOption {
	return func(l *Loop) {
		l.unhandled = m
	}
}

// WithQueueSize sets the task queue capacity.
func WithQueueSize(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.tasks = make(chan task, n)
		}
	}
}

// NewLoop creates a loop. Call Run to start it.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		logger:  slog.Default(),
		proc:    OSProcess{},
		tasks:   make(chan task, 256),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		handles: newRegistry(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes tasks until ctx is cancelled or Stop is called. The calling
// goroutine becomes the loop goroutine and stays on its OS thread.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	l.threadID.Store(int64(currentThreadID()))
	defer l.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.done:
			return nil
		case <-l.wake:
			l.runAsyncCallbacks()
		case t := <-l.tasks:
			l.dispatch(t)
		}
	}
}

// Stop ends the loop. Queued tasks that have not started are discarded.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)
	})
}

// Done is closed when the loop stops.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

type task struct {
	fn func()
	// done runs after the task and any uncaught exception handling finish.
	done func(panicked bool)
}

// Post enqueues fn to run on the loop goroutine.
func (l *Loop) Post(fn func()) error {
	return l.enqueue(task{fn: fn})
}

func (l *Loop) enqueue(t task) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	select {
	case l.tasks <- t:
		return nil
	case <-l.done:
		return ErrLoopClosed
	}
}

// Call runs fn on the loop goroutine and waits for its result. A task that
// panics returns ErrTaskPanicked once the uncaught exception has been handled.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	var taskErr error
	err := l.enqueue(task{
		fn: func() { taskErr = fn() },
		done: func(panicked bool) {
			if panicked {
				result <- ErrTaskPanicked
				return
			}
			result <- taskErr
		},
	})
	if err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLoopClosed
	}
}

// State returns what the loop goroutine is currently doing.
func (l *Loop) State() VMState {
	return VMState(l.state.Load())
}

// ThreadID returns the OS thread id of the loop goroutine, or 0 before Run.
func (l *Loop) ThreadID() int {
	return int(l.threadID.Load())
}

// SetFatalErrorHandler installs the fatal-error handler.
func (l *Loop) SetFatalErrorHandler(h FatalErrorHandler) {
	l.hookMu.Lock()
	defer l.hookMu.Unlock()
	l.onFatal = h
}

// SetUncaughtExceptionHandler installs the uncaught-exception handler.
func (l *Loop) SetUncaughtExceptionHandler(h UncaughtExceptionHandler) {
	l.hookMu.Lock()
	defer l.hookMu.Unlock()
	l.onUncaught = h
}

// Fatal reports an unrecoverable condition. It may be called from any
// goroutine. Without a handler the process is aborted.
func (l *Loop) Fatal(location, message string) {
	l.hookMu.RLock()
	h := l.onFatal
	l.hookMu.RUnlock()

	if h != nil {
		h(location, message)
		return
	}
	l.logger.Error("FATAL ERROR", "location", location, "message", message)
	l.proc.Abort()
}

func (l *Loop) dispatch(t task) {
	panicked := true
	if t.done != nil {
		defer func() { t.done(panicked) }()
	}
	l.state.Store(int32(StateScript))
	defer l.state.Store(int32(StateIdle))
	defer l.recoverUncaught()
	// Entering script is a safe point for interrupts queued while idle.
	l.Checkpoint()
	t.fn()
	panicked = false
}

func (l *Loop) recoverUncaught() {
	r := recover()
	if r == nil {
		return
	}
	ex := newException(r, 2)

	l.hookMu.RLock()
	h := l.onUncaught
	l.hookMu.RUnlock()

	if h != nil && h(ex) {
		l.proc.Abort()
		return
	}

	l.logger.Error("uncaught exception", "error", ex.Message)
	if l.unhandled == UnhandledExit {
		l.proc.Exit(1)
	}
}

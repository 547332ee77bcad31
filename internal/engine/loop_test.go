package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeProcess struct {
	aborts atomic.Int32
	exits  atomic.Int32
	code   atomic.Int32
}

func (p *fakeProcess) Abort() { p.aborts.Add(1) }

func (p *fakeProcess) Exit(code int) {
	p.exits.Add(1)
	p.code.Store(int32(code))
}

func startLoop(t *testing.T, opts ...LoopOption) *Loop {
	t.Helper()
	l := NewLoop(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errCh; err != nil {
			t.Errorf("Run() error = %v", err)
		}
	})
	return l
}

func callCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLoop_CallRunsAsScript(t *testing.T) {
	t.Parallel()
	l := startLoop(t)

	var state VMState
	err := l.Call(callCtx(t), func() error {
		state = l.State()
		return nil
	})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if state != StateScript {
		t.Errorf("state inside task = %v, want SCRIPT", state)
	}
	if l.State() != StateIdle {
		t.Errorf("state after task = %v, want IDLE", l.State())
	}
}

func TestLoop_CallReturnsTaskError(t *testing.T) {
	t.Parallel()
	l := startLoop(t)

	want := errors.New("boom")
	if err := l.Call(callCtx(t), func() error { return want }); !errors.Is(err, want) {
		t.Errorf("Call() error = %v, want %v", err, want)
	}
}

func TestLoop_RunTwice(t *testing.T) {
	t.Parallel()
	l := startLoop(t)
	// Make sure the first Run is active.
	_ = l.Call(callCtx(t), func() error { return nil })

	if err := l.Run(context.Background()); !errors.Is(err, ErrLoopRunning) {
		t.Errorf("second Run() error = %v, want ErrLoopRunning", err)
	}
}

func TestLoop_PostAfterStop(t *testing.T) {
	t.Parallel()
	l := NewLoop()
	l.Stop()
	if err := l.Post(func() {}); !errors.Is(err, ErrLoopClosed) {
		t.Errorf("Post() error = %v, want ErrLoopClosed", err)
	}
}

func TestLoop_InterruptRunsAtCheckpoint(t *testing.T) {
	t.Parallel()
	l := startLoop(t)

	var ran atomic.Bool
	var stateInInterrupt VMState
	err := l.Call(callCtx(t), func() error {
		go l.RequestInterrupt(func() {
			stateInInterrupt = l.State()
			ran.Store(true)
		})
		deadline := time.Now().Add(2 * time.Second)
		for !ran.Load() && time.Now().Before(deadline) {
			l.Checkpoint()
			time.Sleep(time.Millisecond)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if !ran.Load() {
		t.Fatal("interrupt did not run at checkpoint")
	}
	if stateInInterrupt != StateScript {
		t.Errorf("state in interrupt = %v, want SCRIPT", stateInInterrupt)
	}
}

func TestLoop_InterruptWaitsWhileIdle(t *testing.T) {
	t.Parallel()
	l := startLoop(t)

	var ran atomic.Bool
	l.RequestInterrupt(func() { ran.Store(true) })
	time.Sleep(10 * time.Millisecond)

	if ran.Load() {
		t.Error("interrupt ran while the loop was idle")
	}
	if got := l.PendingInterrupts(); got != 1 {
		t.Errorf("PendingInterrupts() = %d, want 1", got)
	}
}

func TestLoop_InterruptRunsWhenTaskStarts(t *testing.T) {
	t.Parallel()
	l := startLoop(t)

	var order []string
	l.RequestInterrupt(func() { order = append(order, "interrupt") })
	err := l.Call(callCtx(t), func() error {
		order = append(order, "task")
		return nil
	})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	if strings.Join(order, ",") != "interrupt,task" {
		t.Errorf("order = %v, want interrupt before task", order)
	}
	if got := l.PendingInterrupts(); got != 0 {
		t.Errorf("PendingInterrupts() = %d, want 0", got)
	}
}

func TestLoop_CheckpointOffLoopIsNoop(t *testing.T) {
	t.Parallel()
	l := startLoop(t)

	var ran atomic.Bool
	l.RequestInterrupt(func() { ran.Store(true) })
	l.Checkpoint()
	if ran.Load() {
		t.Error("interrupt ran from a checkpoint outside a task")
	}
}

func TestAsync_RunsWhileIdle(t *testing.T) {
	t.Parallel()
	l := startLoop(t)

	done := make(chan VMState, 1)
	a, err := l.NewAsync(func() { done <- l.State() })
	if err != nil {
		t.Fatalf("NewAsync() error = %v", err)
	}
	defer a.Close()

	if err := a.Send(); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	select {
	case state := <-done:
		if state != StateExternal {
			t.Errorf("callback state = %v, want EXTERNAL", state)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("async callback did not run")
	}
}

func TestAsync_CoalescesSends(t *testing.T) {
	t.Parallel()
	l := startLoop(t)

	var calls atomic.Int32
	fired := make(chan struct{}, 16)
	a, err := l.NewAsync(func() {
		calls.Add(1)
		fired <- struct{}{}
	})
	if err != nil {
		t.Fatalf("NewAsync() error = %v", err)
	}
	defer a.Close()

	release := make(chan struct{})
	blocked := make(chan struct{})
	if err := l.Post(func() {
		close(blocked)
		<-release
	}); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	<-blocked

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.Send()
		}()
	}
	wg.Wait()
	close(release)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("async callback did not run")
	}
	time.Sleep(20 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("callback ran %d times, want 1", got)
	}
}

func TestAsync_SendAfterClose(t *testing.T) {
	t.Parallel()
	l := startLoop(t)

	a, err := l.NewAsync(func() {})
	if err != nil {
		t.Fatalf("NewAsync() error = %v", err)
	}
	a.Close()
	if err := a.Send(); !errors.Is(err, ErrHandleClosed) {
		t.Errorf("Send() error = %v, want ErrHandleClosed", err)
	}
}

func TestLoop_UncaughtPanicAbortsWhenHandlerAsks(t *testing.T) {
	t.Parallel()
	proc := &fakeProcess{}
	l := startLoop(t, WithProcessControl(proc))

	var got *Exception
	l.SetUncaughtExceptionHandler(func(ex *Exception) bool {
		got = ex
		return true
	})

	err := l.Call(callCtx(t), func() error {
		panicInTask()
		return nil
	})
	if !errors.Is(err, ErrTaskPanicked) {
		t.Fatalf("Call() error = %v, want ErrTaskPanicked", err)
	}
	if proc.aborts.Load() != 1 {
		t.Errorf("aborts = %d, want 1", proc.aborts.Load())
	}
	if got == nil {
		t.Fatal("handler not called")
	}
	if got.Message != "task exploded" {
		t.Errorf("Message = %q", got.Message)
	}
	if len(got.Frames) == 0 || !strings.HasSuffix(got.Frames[0].Function, "panicInTask") {
		t.Errorf("top frame = %+v, want panicInTask", got.Frames)
	}
}

func panicInTask() {
	panic("task exploded")
}

func TestLoop_UncaughtPanicDefaultExit(t *testing.T) {
	t.Parallel()
	proc := &fakeProcess{}
	l := startLoop(t, WithProcessControl(proc))

	_ = l.Call(callCtx(t), func() error { panic(errors.New("bad")) })

	if proc.exits.Load() != 1 || proc.code.Load() != 1 {
		t.Errorf("exits = %d code = %d, want one exit with status 1", proc.exits.Load(), proc.code.Load())
	}
	if proc.aborts.Load() != 0 {
		t.Errorf("aborts = %d, want 0", proc.aborts.Load())
	}
}

func TestLoop_UncaughtPanicContinue(t *testing.T) {
	t.Parallel()
	proc := &fakeProcess{}
	l := startLoop(t, WithProcessControl(proc), WithUnhandledMode(UnhandledContinue))
	l.SetUncaughtExceptionHandler(func(*Exception) bool { return false })

	_ = l.Call(callCtx(t), func() error { panic("ignored") })
	if err := l.Call(callCtx(t), func() error { return nil }); err != nil {
		t.Fatalf("loop did not survive panic: %v", err)
	}
	if proc.exits.Load() != 0 || proc.aborts.Load() != 0 {
		t.Errorf("exits = %d aborts = %d, want none", proc.exits.Load(), proc.aborts.Load())
	}
}

func TestLoop_FatalUsesHandler(t *testing.T) {
	t.Parallel()
	proc := &fakeProcess{}
	l := NewLoop(WithProcessControl(proc))

	var location, message string
	l.SetFatalErrorHandler(func(loc, msg string) {
		location, message = loc, msg
	})
	l.Fatal("HeapLimitMonitor", "heap limit exceeded")

	if location != "HeapLimitMonitor" || message != "heap limit exceeded" {
		t.Errorf("handler got (%q, %q)", location, message)
	}
	if proc.aborts.Load() != 0 {
		t.Error("Fatal aborted despite handler")
	}
}

func TestLoop_FatalWithoutHandlerAborts(t *testing.T) {
	t.Parallel()
	proc := &fakeProcess{}
	l := NewLoop(WithProcessControl(proc))
	l.Fatal("somewhere", "oops")
	if proc.aborts.Load() != 1 {
		t.Errorf("aborts = %d, want 1", proc.aborts.Load())
	}
}

func TestLoop_WalkHandlesInOrder(t *testing.T) {
	t.Parallel()
	l := NewLoop()

	tcp := l.RegisterHandle("tcp", "127.0.0.1:8080")
	a, err := l.NewAsync(func() {})
	if err != nil {
		t.Fatalf("NewAsync() error = %v", err)
	}
	a.Unref()
	timer := l.SetInterval("tick", time.Hour, func() {})
	defer timer.Close()

	var got []HandleInfo
	l.WalkHandles(func(h HandleInfo) { got = append(got, h) })
	if len(got) != 3 {
		t.Fatalf("walked %d handles, want 3", len(got))
	}
	wantTypes := []string{"tcp", "async", "timer"}
	for i, h := range got {
		if h.Type != wantTypes[i] {
			t.Errorf("handle %d type = %q, want %q", i, h.Type, wantTypes[i])
		}
	}
	if got[1].Ref || !got[1].Internal {
		t.Errorf("async handle = %+v, want unreferenced internal", got[1])
	}
	if got[2].Detail != "repeat 1h0m0s" {
		t.Errorf("timer detail = %q", got[2].Detail)
	}

	tcp.Close()
	a.Close()
	count := 0
	l.WalkHandles(func(HandleInfo) { count++ })
	if count != 1 {
		t.Errorf("handles after close = %d, want 1", count)
	}
}

func TestParseUnhandledMode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    UnhandledMode
		wantErr bool
	}{
		{"", UnhandledExit, false},
		{"exit", UnhandledExit, false},
		{"continue", UnhandledContinue, false},
		{"ignore", UnhandledExit, true},
	}
	for _, tt := range tests {
		got, err := ParseUnhandledMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseUnhandledMode(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestVMStateString(t *testing.T) {
	t.Parallel()
	if StateGC.String() != "GC" || VMState(42).String() != "<unknown>" {
		t.Errorf("unexpected state names: %s %s", StateGC, VMState(42))
	}
}

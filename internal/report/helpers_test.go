package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/procreport/internal/engine"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// logEntries decodes JSON log lines written by newTestLogger.
func logEntries(t *testing.T, b *syncBuffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("decoding log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func entriesAt(entries []map[string]any, level string) []map[string]any {
	var out []map[string]any
	for _, e := range entries {
		if e["level"] == level {
			out = append(out, e)
		}
	}
	return out
}

func newTestLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// fakeRenderer writes one line per section and records what it was given.
type fakeRenderer struct {
	mu        sync.Mutex
	sections  []string
	headers   []Header
	stacks    []ScriptStack
	exception *engine.Exception
	onHeader  func()
	failOn    string
	reports   atomic.Int32
}

func (r *fakeRenderer) section(w io.Writer, name string) error {
	r.mu.Lock()
	r.sections = append(r.sections, name)
	r.mu.Unlock()
	if name == r.failOn {
		return fmt.Errorf("%s failed", name)
	}
	_, err := fmt.Fprintf(w, "[%s]\n", name)
	return err
}

func (r *fakeRenderer) Header(w io.Writer, h Header) error {
	r.reports.Add(1)
	r.mu.Lock()
	r.headers = append(r.headers, h)
	r.mu.Unlock()
	if r.onHeader != nil {
		r.onHeader()
	}
	return r.section(w, "header")
}

func (r *fakeRenderer) CommandLine(w io.Writer) error { return r.section(w, "command line") }
func (r *fakeRenderer) Versions(w io.Writer) error    { return r.section(w, "versions") }

func (r *fakeRenderer) ScriptStack(w io.Writer, s ScriptStack) error {
	r.mu.Lock()
	r.stacks = append(r.stacks, s)
	r.mu.Unlock()
	return r.section(w, "script stack")
}

func (r *fakeRenderer) NativeStack(w io.Writer) error { return r.section(w, "native stack") }

func (r *fakeRenderer) ExceptionStack(w io.Writer, ex *engine.Exception) error {
	r.mu.Lock()
	r.exception = ex
	r.mu.Unlock()
	return r.section(w, "exception stack")
}

func (r *fakeRenderer) HeapStatistics(w io.Writer) error { return r.section(w, "heap statistics") }

func (r *fakeRenderer) ResourceUsage(w io.Writer, _ int) error {
	return r.section(w, "resource usage")
}

func (r *fakeRenderer) HandleSummary(w io.Writer, walk func(func(engine.HandleInfo))) error {
	n := 0
	walk(func(engine.HandleInfo) { n++ })
	if err := r.section(w, "handle summary"); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "handles=%d\n", n)
	return err
}

func (r *fakeRenderer) SystemInfo(w io.Writer) error { return r.section(w, "system information") }
func (r *fakeRenderer) Footer(w io.Writer) error     { return r.section(w, "footer") }

func (r *fakeRenderer) lastStack() ScriptStack {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.stacks) == 0 {
		return ScriptStack{}
	}
	return r.stacks[len(r.stacks)-1]
}

func (r *fakeRenderer) firstHeader() Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.headers) == 0 {
		return Header{}
	}
	return r.headers[0]
}

func (r *fakeRenderer) lastException() *engine.Exception {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exception
}

type fakeProcess struct {
	aborts atomic.Int32
	exits  atomic.Int32
}

func (p *fakeProcess) Abort()   { p.aborts.Add(1) }
func (p *fakeProcess) Exit(int) { p.exits.Add(1) }

type controllerFixture struct {
	c      *Controller
	r      *fakeRenderer
	proc   *fakeProcess
	logs   *syncBuffer
	stdout *syncBuffer
	dir    string
}

func newFixture(t *testing.T, opts ...Option) *controllerFixture {
	t.Helper()
	logger, logs := newTestLogger()
	f := &controllerFixture{
		r:      &fakeRenderer{},
		proc:   &fakeProcess{},
		logs:   logs,
		stdout: &syncBuffer{},
		dir:    t.TempDir(),
	}
	base := DefaultOptions()
	base.Directory = f.dir
	all := append([]Option{
		WithLogger(logger),
		WithOptions(base),
		WithProcessControl(f.proc),
		WithStreams(f.stdout, io.Discard),
	}, opts...)
	f.c = New(f.r, all...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := f.c.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	})
	return f
}

func startLoop(t *testing.T, opts ...engine.LoopOption) *engine.Loop {
	t.Helper()
	l := engine.NewLoop(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})
	// Wait until the loop goroutine is serving tasks.
	callOnLoop(t, l, func() {})
	return l
}

func callOnLoop(t *testing.T, l *engine.Loop, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Call(ctx, func() error { fn(); return nil }); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func callContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

package report

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/procreport/internal/engine"
)

const (
	filenamePrefix = "ProcReport"
	catalogTimeout = 5 * time.Second
)

// Standard stream targets.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

type request struct {
	event     DumpEvent
	message   string
	location  string
	filename  string
	exception *engine.Exception
	// stack is the script stack captured by the caller, if any.
	stack []engine.Frame
}

// trigger is the single entry point for every report source. It returns the
// zero Result when no report was written.
func (c *Controller) trigger(req request) Result {
	if !c.active.CompareAndSwap(false, true) {
		c.logger.Debug("report already in progress, trigger dropped", "event", req.event.String())
		c.metrics.triggerDropped("in_progress")
		return Result{}
	}
	defer c.active.Store(false)

	opts := c.config.snapshot()
	start := c.now()
	name, generated := c.resolveFilename(req.filename, opts, start)

	s, err := c.openSink(name, opts.Directory)
	if err != nil {
		c.logger.Error("failed to open report file",
			"file", name,
			"directory", opts.Directory,
			"error", err)
		c.metrics.sinkFailed()
		return Result{}
	}
	if s.file != nil {
		c.logger.Info("writing report to file", "file", s.path)
	}

	id := uuid.NewString()
	c.render(s, req, Header{
		Event:    req.event,
		Message:  req.message,
		Location: req.location,
		Filename: name,
		ReportID: id,
		DumpTime: start,
		LoadTime: c.loadTime,
		PID:      c.pid,
	})
	if err := s.close(); err != nil {
		c.logger.Error("closing report file", "file", s.path, "error", err)
	}
	elapsed := c.now().Sub(start)
	c.logger.Info("report completed", "file", s.path, "bytes", s.bytes())
	c.metrics.reportWritten(req.event, elapsed, s.bytes())

	rec := Record{
		ReportID:  id,
		Filename:  name,
		Path:      s.path,
		Event:     req.event.String(),
		Message:   req.message,
		Location:  req.location,
		Bytes:     s.bytes(),
		Generated: generated,
		CreatedAt: start,
	}
	if s.file != nil && c.catalog != nil {
		ctx, cancel := context.WithTimeout(context.Background(), catalogTimeout)
		err := c.catalog.Record(ctx, rec)
		cancel()
		if err != nil {
			c.logger.Warn("recording report in catalog", "file", s.path, "error", err)
		}
	}
	for _, fn := range c.listeners {
		fn(rec)
	}

	return Result{
		Filename: name,
		Path:     s.path,
		ReportID: id,
		Bytes:    s.bytes(),
		Duration: elapsed,
	}
}

// resolveFilename applies explicit name > configured override > generated
// name. generated reports whether the name came from the sequence.
func (c *Controller) resolveFilename(explicit string, opts Options, t time.Time) (string, bool) {
	if explicit != "" {
		return explicit, false
	}
	if opts.Filename != "" {
		return opts.Filename, false
	}
	seq := c.seq.Add(1)
	return fmt.Sprintf("%s.%s.%d.%03d.txt", filenamePrefix, t.Format("20060102.150405"), c.pid, seq), true
}

// IsGeneratedName reports whether name has the form of a generated report
// filename.
func IsGeneratedName(name string) bool {
	return strings.HasPrefix(name, filenamePrefix+".") && strings.HasSuffix(name, ".txt")
}

// sink is a report destination. Writes are buffered and flushed after every
// section.
type sink struct {
	w    *bufio.Writer
	cw   *countingWriter
	file *os.File
	path string
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

func (c *Controller) openSink(name, dir string) (*sink, error) {
	var w io.Writer
	switch name {
	case StreamStdout:
		w = c.stdout
	case StreamStderr:
		w = c.stderr
	}
	if w != nil {
		cw := &countingWriter{w: w}
		return &sink{w: bufio.NewWriter(cw), cw: cw, path: name}, nil
	}

	path := name
	if dir != "" {
		path = filepath.Join(dir, name)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	cw := &countingWriter{w: f}
	return &sink{w: bufio.NewWriter(cw), cw: cw, file: f, path: path}, nil
}

func (s *sink) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s *sink) flush() error {
	return s.w.Flush()
}

func (s *sink) bytes() int64 {
	return s.cw.n
}

func (s *sink) close() error {
	err := s.w.Flush()
	if s.file == nil {
		return err
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// render writes every section in order. A failing section is logged and the
// rest are still written.
func (c *Controller) render(s *sink, req request, h Header) {
	r := c.renderer
	walk := func(fn func(engine.HandleInfo)) {
		if eng := c.engine(); eng != nil {
			eng.WalkHandles(fn)
		}
	}

	sections := []struct {
		name string
		fn   func(io.Writer) error
	}{
		{"header", func(w io.Writer) error { return r.Header(w, h) }},
		{"command line", r.CommandLine},
		{"versions", r.Versions},
		{"script stack", func(w io.Writer) error { return r.ScriptStack(w, c.scriptStack(req)) }},
		{"native stack", r.NativeStack},
		{"exception stack", func(w io.Writer) error {
			if req.exception == nil {
				return nil
			}
			return r.ExceptionStack(w, req.exception)
		}},
		{"heap statistics", r.HeapStatistics},
		{"resource usage", func(w io.Writer) error { return r.ResourceUsage(w, c.engineThreadID()) }},
		{"handle summary", func(w io.Writer) error { return r.HandleSummary(w, walk) }},
		{"system information", r.SystemInfo},
		{"footer", r.Footer},
	}

	for _, sec := range sections {
		if err := sec.fn(s); err != nil {
			c.logger.Warn("rendering report section", "section", sec.name, "error", err)
		}
		if err := s.flush(); err != nil {
			c.logger.Warn("flushing report section", "section", sec.name, "error", err)
		}
	}
}

func (c *Controller) engineThreadID() int {
	if eng := c.engine(); eng != nil {
		return eng.ThreadID()
	}
	return 0
}

// scriptStack chooses how the engine stack is presented for the event.
func (c *Controller) scriptStack(req request) ScriptStack {
	st := ScriptStack{Event: req.event, Frames: req.stack}
	if eng := c.engine(); eng != nil {
		st.State = eng.State()
	}

	switch req.event {
	case EventSignalFromScript:
		st.ShowState = true
	case EventSignalFromIdleLoop:
		st.ShowState = true
		st.Frames = nil
		st.Unavailable = "signal received when event loop idle, no stack trace available"
	case EventFatalError:
		if inCollector(req.location) {
			st.Frames = nil
			st.Unavailable = "engine running in GC, no stack trace available"
		}
	}
	return st
}

// inCollector reports whether a fatal error location names the garbage
// collector or the heap limit monitor, where no script stack can be taken.
func inCollector(location string) bool {
	return strings.HasPrefix(location, "GC") || strings.HasPrefix(location, "HeapLimitMonitor")
}

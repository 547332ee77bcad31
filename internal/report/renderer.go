package report

import (
	"context"
	"io"
	"time"

	"github.com/hugo-lorenzo-mato/procreport/internal/engine"
)

// Header identifies one report.
type Header struct {
	Event    DumpEvent
	Message  string
	Location string
	Filename string
	ReportID string
	DumpTime time.Time
	LoadTime time.Time
	PID      int
}

// ScriptStack is the engine-side stack for a report.
type ScriptStack struct {
	Event DumpEvent
	// State is the engine state at capture time. ShowState is set for signal
	// events, where the state tells the reader what was interrupted.
	State     engine.VMState
	ShowState bool
	Frames    []engine.Frame
	// Unavailable explains why no frames could be captured.
	Unavailable string
}

// Renderer writes the content of each report section. The pipeline calls the
// methods in declaration order and flushes between calls, so each method must
// write a complete section.
type Renderer interface {
	Header(w io.Writer, h Header) error
	CommandLine(w io.Writer) error
	Versions(w io.Writer) error
	ScriptStack(w io.Writer, s ScriptStack) error
	NativeStack(w io.Writer) error
	ExceptionStack(w io.Writer, ex *engine.Exception) error
	HeapStatistics(w io.Writer) error
	ResourceUsage(w io.Writer, engineThreadID int) error
	HandleSummary(w io.Writer, walk func(func(engine.HandleInfo))) error
	SystemInfo(w io.Writer) error
	Footer(w io.Writer) error
}

// Engine is the execution engine a Controller attaches to. *engine.Loop
// implements it.
type Engine interface {
	RequestInterrupt(fn func())
	NewAsync(cb func()) (*engine.Async, error)
	SetFatalErrorHandler(h engine.FatalErrorHandler)
	SetUncaughtExceptionHandler(h engine.UncaughtExceptionHandler)
	State() engine.VMState
	ThreadID() int
	WalkHandles(fn func(engine.HandleInfo))
}

// Record describes a report file that was written.
type Record struct {
	ReportID  string    `json:"report_id"`
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	Event     string    `json:"event"`
	Message   string    `json:"message"`
	Location  string    `json:"location"`
	Bytes     int64     `json:"bytes"`
	Generated bool      `json:"generated"`
	CreatedAt time.Time `json:"created_at"`
}

// Catalog stores records of written reports.
type Catalog interface {
	Record(ctx context.Context, rec Record) error
}

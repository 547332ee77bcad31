package diagnostics

import (
	"fmt"
	"io"
	"runtime/pprof"

	"github.com/hugo-lorenzo-mato/procreport/internal/engine"
	"github.com/hugo-lorenzo-mato/procreport/internal/report"
)

// ScriptStack writes the engine-side stack.
func (r *TextRenderer) ScriptStack(w io.Writer, st report.ScriptStack) error {
	s := &sectionWriter{w: w}
	s.title("Engine Stack Trace")
	if st.ShowState {
		s.printf("Engine state: %s\n\n", st.State)
	}
	switch {
	case st.Unavailable != "":
		s.line(st.Unavailable)
	case len(st.Frames) == 0:
		s.line("No stack trace available")
	default:
		writeFrames(s, st.Frames)
	}
	return s.err
}

// ExceptionStack writes the value and the stack of an uncaught panic.
func (r *TextRenderer) ExceptionStack(w io.Writer, ex *engine.Exception) error {
	s := &sectionWriter{w: w}
	s.title("Uncaught Exception")
	s.printf("Value: %s\n", ex.Message)
	s.printf("Type: %T\n\n", ex.Value)
	if len(ex.Frames) == 0 {
		s.line("No stack trace available")
	} else {
		writeFrames(s, ex.Frames)
	}
	return s.err
}

// NativeStack writes the stacks of every goroutine in the process.
func (r *TextRenderer) NativeStack(w io.Writer) error {
	s := &sectionWriter{w: w}
	s.title("Native Stack Trace")
	if s.err != nil {
		return s.err
	}
	p := pprof.Lookup("goroutine")
	if p == nil {
		s.line("goroutine profile unavailable")
		return s.err
	}
	if err := p.WriteTo(w, 2); err != nil {
		return fmt.Errorf("writing goroutine stacks: %w", err)
	}
	return nil
}

func writeFrames(s *sectionWriter, frames []engine.Frame) {
	for i, f := range frames {
		s.printf("%2d: [pc=0x%x] %s\n", i, f.PC, f)
	}
}

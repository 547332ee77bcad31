package diagnostics

import (
	"io"

	"github.com/hugo-lorenzo-mato/procreport/internal/engine"
)

// HandleSummary lists the handles registered with the engine loop.
func (r *TextRenderer) HandleSummary(w io.Writer, walk func(func(engine.HandleInfo))) error {
	s := &sectionWriter{w: w}
	s.title("Event Loop Handles")
	s.line("(Flags: R=Ref, A=Active, I=Internal)")
	s.line("")
	s.printf("%-5s %-6s %-8s %s\n", "Flags", "ID", "Type", "Name")

	count := 0
	walk(func(h engine.HandleInfo) {
		count++
		detail := ""
		if h.Detail != "" {
			detail = " (" + h.Detail + ")"
		}
		s.printf("%-5s %-6d %-8s %s%s\n", handleFlags(h), h.ID, h.Type, h.Name, detail)
	})
	if count == 0 {
		s.line("No handles registered")
	}
	return s.err
}

func handleFlags(h engine.HandleInfo) string {
	flags := []byte("[---]")
	if h.Ref {
		flags[1] = 'R'
	}
	if h.Active {
		flags[2] = 'A'
	}
	if h.Internal {
		flags[3] = 'I'
	}
	return string(flags)
}

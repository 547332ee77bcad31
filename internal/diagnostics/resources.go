package diagnostics

import (
	"io"
	"os"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/process"
)

// ResourceUsage writes process and engine thread resource consumption.
func (r *TextRenderer) ResourceUsage(w io.Writer, engineThreadID int) error {
	s := &sectionWriter{w: w}
	s.title("Resource Usage")

	processRusage(s)
	s.line("")
	r.writeProcessInfo(s)

	s.line("")
	s.printf("Goroutines: %d\n", runtime.NumGoroutine())
	s.printf("GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))
	if open, limit := CountFDs(); limit > 0 {
		s.printf("Open file descriptors: %d of %d\n", open, limit)
	}

	s.title("Engine Thread Resource Usage")
	threadRusage(s, engineThreadID)
	return s.err
}

func (r *TextRenderer) writeProcessInfo(s *sectionWriter) {
	p, err := process.NewProcess(int32(os.Getpid())) // #nosec G115 -- pids fit int32
	if err != nil {
		s.printf("Process information unavailable: %v\n", err)
		return
	}
	if mi, err := p.MemoryInfo(); err == nil {
		s.printf("Resident set size: %s (%s)\n", comma(mi.RSS), humanize.IBytes(mi.RSS))
		s.printf("Virtual memory size: %s (%s)\n", comma(mi.VMS), humanize.IBytes(mi.VMS))
	}
	if n, err := p.NumThreads(); err == nil {
		s.printf("OS threads: %d\n", n)
	}
	if ct, err := p.CreateTime(); err == nil {
		started := time.UnixMilli(ct)
		s.printf("Process started: %s (up %s)\n", started.Format(timeLayout),
			time.Since(started).Round(time.Second))
	}
	if pct, err := p.CPUPercent(); err == nil {
		s.printf("CPU usage since start: %.2f%%\n", pct)
	}
}

// formatSeconds renders a duration in seconds with microsecond precision.
func formatSeconds(nanos int64) string {
	return humanize.FtoaWithDigits(float64(nanos)/1e9, 6)
}

package diagnostics

import (
	"io"
	"math"
	"runtime"
	"runtime/metrics"
	"time"

	"github.com/dustin/go-humanize"
)

// HeapStatistics writes heap spaces, collector counters and configured limits.
func (r *TextRenderer) HeapStatistics(w io.Writer) error {
	s := &sectionWriter{w: w}
	s.title("Heap Statistics")

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	spaces := []struct {
		name        string
		size, inUse uint64
	}{
		{"heap", ms.HeapSys, ms.HeapInuse},
		{"stack", ms.StackSys, ms.StackInuse},
		{"mspan", ms.MSpanSys, ms.MSpanInuse},
		{"mcache", ms.MCacheSys, ms.MCacheInuse},
		{"gc metadata", ms.GCSys, 0},
		{"other", ms.OtherSys, 0},
	}
	s.printf("%-14s %20s %20s\n", "Space", "Size (bytes)", "In use (bytes)")
	for _, sp := range spaces {
		s.printf("%-14s %20s %20s\n", sp.name, comma(sp.size), comma(sp.inUse))
	}
	s.line("")

	s.printf("Total obtained from OS: %s (%s)\n", comma(ms.Sys), humanize.IBytes(ms.Sys))
	s.printf("Heap allocated: %s (%s)\n", comma(ms.HeapAlloc), humanize.IBytes(ms.HeapAlloc))
	s.printf("Heap objects: %s\n", comma(ms.HeapObjects))
	s.printf("Cumulative allocations: %s (%s)\n", comma(ms.TotalAlloc), humanize.IBytes(ms.TotalAlloc))
	s.printf("Mallocs: %s, frees: %s\n", comma(ms.Mallocs), comma(ms.Frees))
	s.printf("Next GC target: %s\n", comma(ms.NextGC))
	s.printf("GC cycles: %d (forced: %d)\n", ms.NumGC, ms.NumForcedGC)
	if ms.NumGC > 0 {
		last := time.Unix(0, int64(ms.LastGC)) // #nosec G115 -- nanosecond timestamp
		s.printf("Last GC: %s, pause %s\n", last.Format(timeLayout),
			time.Duration(ms.PauseNs[(ms.NumGC+255)%256]))
	}
	s.printf("Total GC pause: %s\n", time.Duration(ms.PauseTotalNs))
	s.printf("GC CPU fraction: %.4f\n", ms.GCCPUFraction)

	gogc, limit := gcSettings()
	if gogc < 0 {
		s.line("GOGC: off")
	} else {
		s.printf("GOGC: %d\n", gogc)
	}
	if limit == math.MaxInt64 {
		s.line("Memory limit: unlimited")
	} else {
		s.printf("Memory limit: %s\n", comma(uint64(limit))) // #nosec G115 -- checked non-negative by runtime
	}

	if r.monitor != nil {
		r.writeMonitor(s)
	}
	return s.err
}

func (r *TextRenderer) writeMonitor(s *sectionWriter) {
	history := r.monitor.History()
	if len(history) == 0 {
		return
	}
	first, last := history[0], history[len(history)-1]
	s.line("")
	s.printf("Monitor samples: %d over %s\n", len(history), last.Timestamp.Sub(first.Timestamp).Round(time.Second))
	s.printf("Heap allocated (MB): first %.1f, last %.1f\n", first.HeapAllocMB, last.HeapAllocMB)
	s.printf("Goroutines: first %d, last %d\n", first.Goroutines, last.Goroutines)

	trend := trendOf(history)
	for _, warn := range trend.Warnings {
		s.printf("Trend warning: %s\n", warn)
	}
}

// gcSettings reads the effective GOGC percentage and memory limit.
func gcSettings() (gogc int64, limit int64) {
	samples := []metrics.Sample{
		{Name: "/gc/gogc:percent"},
		{Name: "/gc/gomemlimit:bytes"},
	}
	metrics.Read(samples)

	gogc, limit = 100, math.MaxInt64
	if samples[0].Value.Kind() == metrics.KindUint64 {
		v := samples[0].Value.Uint64()
		if v == 0 || v > math.MaxInt32 {
			// GOGC=off
			gogc = -1
		} else {
			gogc = int64(v) // #nosec G115 -- small percentage
		}
	}
	if samples[1].Value.Kind() == metrics.KindUint64 {
		v := samples[1].Value.Uint64()
		if v < math.MaxInt64 {
			limit = int64(v)
		}
	}
	return gogc, limit
}

func comma(v uint64) string {
	if v > math.MaxInt64 {
		return humanize.Comma(math.MaxInt64)
	}
	return humanize.Comma(int64(v))
}

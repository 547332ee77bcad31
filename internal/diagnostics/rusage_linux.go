//go:build linux

package diagnostics

import (
	"golang.org/x/sys/unix"
)

// maxRSSBytes converts ru_maxrss, which Linux reports in kilobytes.
func maxRSSBytes(v int64) uint64 {
	return uint64(max(v, 0)) * 1024
}

// threadRusage reports RUSAGE_THREAD when called on the engine's OS thread.
// The kernel only reports usage for the calling thread.
func threadRusage(s *sectionWriter, engineThreadID int) {
	if engineThreadID == 0 {
		s.line("No engine attached")
		return
	}
	if tid := unix.Gettid(); tid != engineThreadID {
		s.printf("Report written on thread %d, engine thread is %d; thread usage unavailable\n", tid, engineThreadID)
		return
	}
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_THREAD, &ru); err != nil {
		s.printf("Thread resource usage unavailable: %v\n", err)
		return
	}
	s.printf("Thread ID: %d\n", engineThreadID)
	writeRusage(s, &ru)
}

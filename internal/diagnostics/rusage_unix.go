//go:build unix

package diagnostics

import (
	"golang.org/x/sys/unix"
)

func processRusage(s *sectionWriter) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		s.printf("Process resource usage unavailable: %v\n", err)
		return
	}
	writeRusage(s, &ru)
}

func writeRusage(s *sectionWriter, ru *unix.Rusage) {
	user, sys := ru.Utime.Nano(), ru.Stime.Nano()
	s.printf("User mode CPU: %s secs\n", formatSeconds(user))
	s.printf("Kernel mode CPU: %s secs\n", formatSeconds(sys))
	s.printf("Maximum resident set size: %s bytes\n", comma(maxRSSBytes(int64(ru.Maxrss))))

	counters := []struct {
		name  string
		value int64
	}{
		{"Page faults (no I/O)", int64(ru.Minflt)},
		{"Page faults (I/O)", int64(ru.Majflt)},
		{"Filesystem reads", int64(ru.Inblock)},
		{"Filesystem writes", int64(ru.Oublock)},
		{"Voluntary context switches", int64(ru.Nvcsw)},
		{"Involuntary context switches", int64(ru.Nivcsw)},
	}
	for _, c := range counters {
		s.printf("%s: %s\n", c.name, comma(uint64(max(c.value, 0))))
	}
}

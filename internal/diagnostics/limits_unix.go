//go:build linux || darwin || freebsd

package diagnostics

import (
	"strconv"

	"golang.org/x/sys/unix"
)

var rlimitNames = []struct {
	name     string
	resource int
}{
	{"core file size (bytes)", unix.RLIMIT_CORE},
	{"data seg size (bytes)", unix.RLIMIT_DATA},
	{"file size (bytes)", unix.RLIMIT_FSIZE},
	{"max memory size (bytes)", unix.RLIMIT_RSS},
	{"open files", unix.RLIMIT_NOFILE},
	{"stack size (bytes)", unix.RLIMIT_STACK},
	{"cpu time (seconds)", unix.RLIMIT_CPU},
	{"max user processes", unix.RLIMIT_NPROC},
	{"virtual memory (bytes)", unix.RLIMIT_AS},
}

func resourceLimits() []limit {
	out := make([]limit, 0, len(rlimitNames))
	for _, r := range rlimitNames {
		var rl unix.Rlimit
		if err := unix.Getrlimit(r.resource, &rl); err != nil {
			continue
		}
		out = append(out, limit{name: r.name, soft: rlimitValue(uint64(rl.Cur)), hard: rlimitValue(uint64(rl.Max))})
	}
	return out
}

func rlimitValue(v uint64) string {
	if v == unix.RLIM_INFINITY {
		return "unlimited"
	}
	return strconv.FormatUint(v, 10)
}

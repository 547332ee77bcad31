//go:build darwin

package diagnostics

import (
	"os"

	"golang.org/x/sys/unix"
)

// CountFDs returns the number of open file descriptors and the soft limit.
func CountFDs() (open, limit int) {
	// /dev/fd stands in for /proc/self/fd.
	entries, err := os.ReadDir("/dev/fd")
	if err != nil {
		return 0, 0
	}
	open = len(entries)

	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err == nil {
		// #nosec G115 -- rlimit values are always within int range on supported platforms
		limit = int(rlim.Cur)
	}
	return open, limit
}

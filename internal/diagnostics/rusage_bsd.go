//go:build unix && !linux

package diagnostics

// maxRSSBytes returns ru_maxrss, which Darwin reports in bytes.
func maxRSSBytes(v int64) uint64 {
	return uint64(max(v, 0))
}

func threadRusage(s *sectionWriter, _ int) {
	s.line("Thread resource usage is not supported on this platform")
}

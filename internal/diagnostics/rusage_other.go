//go:build !unix

package diagnostics

func processRusage(s *sectionWriter) {
	s.line("Process resource usage is not supported on this platform")
}

func threadRusage(s *sectionWriter, _ int) {
	s.line("Thread resource usage is not supported on this platform")
}

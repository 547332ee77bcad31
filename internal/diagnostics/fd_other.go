//go:build !linux && !darwin

package diagnostics

// CountFDs returns 0, 0: descriptor counts are only read on Linux and macOS.
func CountFDs() (open, limit int) {
	return 0, 0
}

package engine

import "os"

// ProcessControl terminates the process.
type ProcessControl interface {
	// Abort terminates abnormally, producing a core image where the platform
	// and resource limits allow it.
	Abort()
	// Exit terminates with the given status.
	Exit(code int)
}

// OSProcess terminates the real process.
type OSProcess struct{}

// Exit calls os.Exit.
func (OSProcess) Exit(code int) {
	os.Exit(code)
}

// Abort raises an abort signal at the process.
func (OSProcess) Abort() {
	abort()
}

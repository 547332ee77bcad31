//go:build !unix

package report

import (
	"os"
	"syscall"
)

// Signal-triggered reports are unix only.
var signalTable []struct {
	name string
	sig  os.Signal
}

func defaultSignal() os.Signal {
	return nil
}

func signalName(sig os.Signal) string {
	return sig.String()
}

func signalNumber(sig os.Signal) int32 {
	if s, ok := sig.(syscall.Signal); ok {
		return int32(s)
	}
	return 0
}

func signalFromNumber(signo int32) os.Signal {
	return syscall.Signal(signo)
}

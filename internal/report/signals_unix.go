//go:build unix

package report

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

var signalTable = []struct {
	name string
	sig  os.Signal
}{
	{"SIGUSR2", unix.SIGUSR2},
	{"SIGQUIT", unix.SIGQUIT},
}

func defaultSignal() os.Signal {
	return unix.SIGUSR2
}

func signalName(sig os.Signal) string {
	if s, ok := sig.(syscall.Signal); ok {
		if name := unix.SignalName(s); name != "" {
			return name
		}
		return fmt.Sprintf("signal %d", int(s))
	}
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

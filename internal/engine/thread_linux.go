//go:build linux

package engine

import "golang.org/x/sys/unix"

func currentThreadID() int {
	return unix.Gettid()
}

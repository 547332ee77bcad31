//go:build !linux

package engine

func currentThreadID() int {
	return 0
}

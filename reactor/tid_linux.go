//go:build linux
// +build linux

package reactor

import "golang.org/x/sys/unix"

// currentThreadID returns the OS thread id of the calling goroutine. Only
// meaningful once the goroutine has called runtime.LockOSThread, which
// EventLoop.Start does before recording its own thread id.
func currentThreadID() int {
	return unix.Gettid()
}

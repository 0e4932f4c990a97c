//go:build !linux
// +build !linux

package reactor

// currentThreadID has no portable equivalent off Linux; the reactor is
// epoll-only, so this path never actually runs a loop, only compiles.
func currentThreadID() int { return -1 }

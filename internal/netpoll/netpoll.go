// Package netpoll wraps the OS-level edge-triggered readiness facility
// (epoll on Linux) and the wakeup primitives (eventfd, timerfd) the reactor
// is built on. Everything above this package deals in these small,
// platform-neutral types; the syscalls themselves live in the _linux/_other
// build-tagged files.
package netpoll

// Event is a bitmask of readiness/interest flags. The concrete values are
// defined per-platform (epoll_linux.go aliases them to the unix.EPOLL*
// constants) so that this file stays build-tag free.
type Event uint32

// PolledEvent is one readiness notification returned from Wait: the fd it
// refers to and the bits the kernel reported ready.
type PolledEvent struct {
	Fd     int
	Events Event
}

const initialEventCapacity = 128

//go:build linux
// +build linux

package netpoll

import (
	"golang.org/x/sys/unix"
)

// Event values mirror the epoll bits a Channel cares about. EventET is
// ORed into every registration: the reactor is edge-triggered throughout,
// callers must drain a readable/writable fd until EAGAIN.
const (
	EventRead  Event = unix.EPOLLIN
	EventPri   Event = unix.EPOLLPRI
	EventRDHUP Event = unix.EPOLLRDHUP
	EventWrite Event = unix.EPOLLOUT
	EventErr   Event = unix.EPOLLERR
	EventHup   Event = unix.EPOLLHUP
	EventET    Event = unix.EPOLLET
)

// Poller is a thin wrapper over one epoll instance. It does not know about
// Channels; callers keep their own fd -> Channel map and use the fd
// returned in each PolledEvent to look it up.
type Poller struct {
	epfd   int
	events []unix.EpollEvent
}

// Open creates a new epoll instance.
func Open() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Poller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, initialEventCapacity),
	}, nil
}

// Add registers fd for the given interest bits.
func (p *Poller) Add(fd int, interest Event) error {
	ev := unix.EpollEvent{Events: uint32(interest) | uint32(EventET), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Modify updates the interest bits for an fd already registered.
func (p *Poller) Modify(fd int, interest Event) error {
	ev := unix.EpollEvent{Events: uint32(interest) | uint32(EventET), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Remove unregisters fd. It is not an error to remove an fd that was
// already closed out from under the poller (EBADF/ENOENT are swallowed) —
// a Connection closing its socket before its Channel is removed must not
// surface as a Remove failure.
func (p *Poller) Remove(fd int) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.EBADF || err == unix.ENOENT {
		return nil
	}
	return err
}

// Wait blocks until at least one fd is ready, or is interrupted, filling
// out with the ready events. It doubles its internal event-array capacity
// whenever a single call fills it completely, so the array grows to match
// a busy poller's load instead of repeatedly capping how many ready fds
// one call can return.
func (p *Poller) Wait(out []PolledEvent) ([]PolledEvent, error) {
	n, err := unix.EpollWait(p.epfd, p.events, -1)
	if err != nil {
		if err == unix.EINTR {
			return out[:0], nil
		}
		return nil, err
	}
	out = out[:0]
	for i := 0; i < n; i++ {
		out = append(out, PolledEvent{
			Fd:     int(p.events[i].Fd),
			Events: Event(p.events[i].Events),
		})
	}
	if n == len(p.events) {
		p.events = make([]unix.EpollEvent, len(p.events)*2)
	}
	return out, nil
}

// Close releases the epoll fd.
func (p *Poller) Close() error {
	return unix.Close(p.epfd)
}

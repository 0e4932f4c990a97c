//go:build linux
// +build linux

package netpoll

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// EventFD is the cross-thread wakeup primitive for an EventLoop: a thread
// queuing a task writes one counter increment; the loop's own Channel on
// this fd drains it on the next readiness notification, breaking Wait out
// of its block.
type EventFD struct {
	fd int
}

// NewEventFD creates a nonblocking, close-on-exec eventfd starting at 0.
func NewEventFD() (*EventFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &EventFD{fd: fd}, nil
}

// Fd returns the raw descriptor, for registering with a Poller.
func (e *EventFD) Fd() int { return e.fd }

// WriteEvent adds v to the kernel-held counter, waking any waiter.
func (e *EventFD) WriteEvent(v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := unix.Write(e.fd, buf[:])
	return err
}

// ReadEvent drains the counter, returning its value (and resetting it to
// 0). EAGAIN on a nonblocking fd with no pending writes is swallowed and
// reported as (0, nil): "nothing happened this call".
func (e *EventFD) ReadEvent() (uint64, error) {
	var buf [8]byte
	_, err := unix.Read(e.fd, buf[:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// Close closes the underlying fd.
func (e *EventFD) Close() error {
	return unix.Close(e.fd)
}

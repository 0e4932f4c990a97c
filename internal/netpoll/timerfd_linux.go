//go:build linux
// +build linux

package netpoll

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// TimerFD ticks once per second, forever, starting one second after
// creation. The timer wheel reads the elapsed-tick count on each
// readiness notification and advances that many steps, catching up if the
// owning loop was busy.
type TimerFD struct {
	fd int
}

// NewTimerFD creates a monotonic timerfd armed for a 1s initial delay and
// a 1s repeat interval.
func NewTimerFD() (*TimerFD, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	spec := unix.ItimerSpec{
		Value:    unix.Timespec{Sec: 1, Nsec: 0},
		Interval: unix.Timespec{Sec: 1, Nsec: 0},
	}
	if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return &TimerFD{fd: fd}, nil
}

// Fd returns the raw descriptor, for registering with a Poller.
func (t *TimerFD) Fd() int { return t.fd }

// ReadTicks returns the number of ticks elapsed since the last read.
// EAGAIN/EINTR report 0 ticks, not an error.
func (t *TimerFD) ReadTicks() (uint64, error) {
	var buf [8]byte
	_, err := unix.Read(t.fd, buf[:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// Close closes the underlying fd.
func (t *TimerFD) Close() error {
	return unix.Close(t.fd)
}

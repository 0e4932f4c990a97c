//go:build !linux
// +build !linux

package netpoll

// TimerFD is a stub off Linux.
type TimerFD struct{}

func NewTimerFD() (*TimerFD, error)        { return nil, errUnsupported }
func (t *TimerFD) Fd() int                 { return -1 }
func (t *TimerFD) ReadTicks() (uint64, error) { return 0, errUnsupported }
func (t *TimerFD) Close() error            { return nil }

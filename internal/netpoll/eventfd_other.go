//go:build !linux
// +build !linux

package netpoll

// EventFD is a stub off Linux; gorev's reactor is epoll/eventfd/timerfd
// only, per spec.
type EventFD struct{}

func NewEventFD() (*EventFD, error)        { return nil, errUnsupported }
func (e *EventFD) Fd() int                 { return -1 }
func (e *EventFD) WriteEvent(v uint64) error { return errUnsupported }
func (e *EventFD) ReadEvent() (uint64, error) { return 0, errUnsupported }
func (e *EventFD) Close() error             { return nil }

//go:build !linux
// +build !linux

package netpoll

import "errors"

// Event bits are not meaningful off Linux; the reactor's edge-triggered
// poller is epoll-only, so this build reports "unsupported" rather than
// falling back to a different demultiplexer (e.g. kqueue).
const (
	EventRead  Event = 0
	EventPri   Event = 0
	EventRDHUP Event = 0
	EventWrite Event = 0
	EventErr   Event = 0
	EventHup   Event = 0
	EventET    Event = 0
)

var errUnsupported = errors.New("netpoll: edge-triggered poller requires linux")

// Poller is a stub on non-Linux platforms.
type Poller struct{}

func Open() (*Poller, error) { return nil, errUnsupported }

func (p *Poller) Add(fd int, interest Event) error    { return errUnsupported }
func (p *Poller) Modify(fd int, interest Event) error { return errUnsupported }
func (p *Poller) Remove(fd int) error                 { return errUnsupported }
func (p *Poller) Wait(out []PolledEvent) ([]PolledEvent, error) {
	return nil, errUnsupported
}
func (p *Poller) Close() error { return nil }

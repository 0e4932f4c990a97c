package reactor

import (
	"github.com/lins-zhou/gorev/internal/netpoll"
)

// poller owns the kernel demultiplexer handle and the fd -> Channel map.
// Invariant: for every fd registered with the kernel, channels[fd] exists
// and its recorded interest matches what the kernel has. It is confined
// to its owning EventLoop's thread.
type poller struct {
	ep       *netpoll.Poller
	channels map[int]*Channel
	active   []netpoll.PolledEvent
}

func newPoller() (*poller, error) {
	ep, err := netpoll.Open()
	if err != nil {
		return nil, err
	}
	return &poller{
		ep:       ep,
		channels: make(map[int]*Channel),
		active:   make([]netpoll.PolledEvent, 0, 128),
	}, nil
}

// Update adds ch to the poller (if new) or reconciles its interest bits
// (if already registered).
func (p *poller) Update(ch *Channel) {
	switch ch.index {
	case channelNew, channelDeleted:
		p.channels[ch.fd] = ch
		if err := p.ep.Add(ch.fd, ch.events); err != nil {
			log.Warn().Err(err).Int("fd", ch.fd).Msg("poller: add failed")
			return
		}
		ch.index = channelAdded
	case channelAdded:
		if err := p.ep.Modify(ch.fd, ch.events); err != nil {
			log.Warn().Err(err).Int("fd", ch.fd).Msg("poller: modify failed")
		}
	}
}

// Remove unregisters ch.
func (p *poller) Remove(ch *Channel) {
	delete(p.channels, ch.fd)
	if ch.index == channelAdded {
		if err := p.ep.Remove(ch.fd); err != nil {
			log.Warn().Err(err).Int("fd", ch.fd).Msg("poller: remove failed")
		}
	}
	ch.index = channelDeleted
}

// Poll blocks until at least one fd is ready, filling each returned
// Channel's revents and appending it to active.
func (p *poller) Poll(active []*Channel) ([]*Channel, error) {
	events, err := p.ep.Wait(p.active)
	if err != nil {
		return active, err
	}
	p.active = events
	active = active[:0]
	for _, ev := range events {
		ch, ok := p.channels[ev.Fd]
		if !ok {
			log.Warn().Int("fd", ev.Fd).Msg("poller: event for unknown fd")
			continue
		}
		ch.setRevents(ev.Events)
		active = append(active, ch)
	}
	return active, nil
}

func (p *poller) Close() error {
	return p.ep.Close()
}

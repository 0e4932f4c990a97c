package reactor

import "github.com/lins-zhou/gorev/internal/netpoll"

// Channel is the per-fd event-interest record: it does not own the fd, and
// its loop reference is non-owning (the loop always outlives every
// Channel registered with it). Dispatch order on HandleEvent is: read
// class bits first, then at most one of write/error/close, then the
// any-event callback — error/close handling may release the owning
// Connection, so it must never run alongside further bit handling on the
// same event.
type Channel struct {
	loop *EventLoop
	fd   int

	events  netpoll.Event // interest currently registered with the poller
	revents netpoll.Event // last readiness reported by the poller

	readCB  func()
	writeCB func()
	closeCB func()
	errorCB func()
	eventCB func()

	// tie is the "upgrade before dispatch" hook: when set, HandleEvent
	// calls it first and drops the whole event if it reports false. This
	// is the Go expression of the source's weak_ptr-to-Connection tie —
	// Go's GC means there is no dangling pointer to guard against, but a
	// Connection can still be logically released (Channel removed,
	// socket closed) earlier in the same dispatch batch, and callbacks
	// must not run again after that.
	tie func() bool

	// index tracks the poller's view of this fd's lifecycle, mirroring
	// the source's new/added/deleted state so Update/Remove know whether
	// to epoll_ctl ADD, MOD, or DEL.
	index channelIndex
}

type channelIndex int

const (
	channelNew channelIndex = iota
	channelAdded
	channelDeleted
)

// NewChannel creates a Channel for fd on loop. It does not register with
// the poller; call EnableRead or EnableWrite to do that.
func NewChannel(loop *EventLoop, fd int) *Channel {
	return &Channel{loop: loop, fd: fd, index: channelNew}
}

func (c *Channel) Fd() int               { return c.fd }
func (c *Channel) SetReadCallback(f func())  { c.readCB = f }
func (c *Channel) SetWriteCallback(f func()) { c.writeCB = f }
func (c *Channel) SetCloseCallback(f func()) { c.closeCB = f }
func (c *Channel) SetErrorCallback(f func()) { c.errorCB = f }
func (c *Channel) SetEventCallback(f func()) { c.eventCB = f }

// Tie installs the upgrade-before-dispatch guard.
func (c *Channel) Tie(alive func() bool) { c.tie = alive }

func (c *Channel) Readable() bool { return c.events&netpoll.EventRead != 0 }
func (c *Channel) Writable() bool { return c.events&netpoll.EventWrite != 0 }

func (c *Channel) EnableRead() {
	c.events |= netpoll.EventRead | netpoll.EventRDHUP
	c.update()
}

func (c *Channel) EnableWrite() {
	c.events |= netpoll.EventWrite
	c.update()
}

func (c *Channel) DisableWrite() {
	c.events &^= netpoll.EventWrite
	c.update()
}

func (c *Channel) DisableAll() {
	c.events = 0
	c.update()
}

func (c *Channel) update() {
	c.loop.poller.Update(c)
}

// Remove unregisters the Channel from its loop's poller.
func (c *Channel) Remove() {
	c.loop.poller.Remove(c)
}

// setRevents is called by the Poller after each Wait with the bits the
// kernel reported ready for this fd.
func (c *Channel) setRevents(ev netpoll.Event) { c.revents = ev }

// HandleEvent dispatches the last-reported readiness to the registered
// callbacks, in the order mandated by spec: read-class bits, then at most
// one of write/error/close, then the any-event callback.
func (c *Channel) HandleEvent() {
	if c.tie != nil && !c.tie() {
		return
	}

	if c.revents&(netpoll.EventRead|netpoll.EventPri|netpoll.EventRDHUP) != 0 {
		if c.readCB != nil {
			c.readCB()
		}
	}

	switch {
	case c.revents&netpoll.EventWrite != 0:
		if c.writeCB != nil {
			c.writeCB()
		}
	case c.revents&netpoll.EventErr != 0:
		if c.errorCB != nil {
			c.errorCB()
		}
	case c.revents&netpoll.EventHup != 0:
		if c.closeCB != nil {
			c.closeCB()
		}
	}

	if c.eventCB != nil {
		c.eventCB()
	}
}

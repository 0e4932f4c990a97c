package reactor

import (
	"sync/atomic"

	"github.com/lins-zhou/gorev/anyctx"
	"github.com/lins-zhou/gorev/buffer"
	"github.com/lins-zhou/gorev/netfd"
)

// ConnectedCallback fires once a Connection has been promoted from
// Connecting to Connected on its owning loop.
type ConnectedCallback func(*Connection)

// MessageCallback receives the Connection and a mutable view of its input
// buffer. It must Consume any bytes it has processed; leftover bytes
// remain for the next call.
type MessageCallback func(*Connection, *buffer.Buffer)

// ClosedCallback fires once, after a Connection has fully released.
type ClosedCallback func(*Connection)

// AnyEventCallback fires on every event dispatched to the Connection's
// Channel, after any idle-timer refresh.
type AnyEventCallback func(*Connection)

type connState int32

const (
	stateConnecting connState = iota
	stateConnected
	stateDisconnecting
	stateDisconnected
)

const maxReadChunk = 64 * 1024

// Connection is the state machine mediating buffered reads/writes over a
// Channel, plus the user callbacks. All of its state (Socket, Channel,
// Buffers, state field) is confined to its owning loop's thread;
// Established, Send, Shutdown, EnableInactiveRelease,
// CancelInactiveRelease, and Release are
// the only methods safe to call from other threads, and they all do so
// by handing a closure to the owning loop.
type Connection struct {
	id     uint64
	loop   *EventLoop
	socket *netfd.Socket
	ch     *Channel

	in  *buffer.Buffer
	out *buffer.Buffer

	ctx *anyctx.Any

	connectedCB ConnectedCallback
	messageCB   MessageCallback
	closedCB    ClosedCallback
	eventCB     AnyEventCallback

	// serverClosedCB is installed by TcpServer, not the embedder; it
	// erases the connection from the server's registry. It runs after
	// the user's closedCB, matching spec's ordering.
	serverClosedCB ClosedCallback

	state              connState
	idleReleaseEnabled bool

	released int32 // set to 1 as releaseInLoop begins; gates the Channel tie.
}

// NewConnection constructs a Connection in the Connecting state, bound to
// fd on loop. loop is taken by value (a pointer, stored before the
// Channel is constructed) so the Channel's loop reference is never built
// against a not-yet-initialized loop — the source's constructor binds
// the Channel to an uninitialized _loop field; this ordering avoids that.
func NewConnection(loop *EventLoop, id uint64, sock *netfd.Socket) *Connection {
	c := &Connection{
		id:     id,
		loop:   loop,
		socket: sock,
		in:     buffer.New(),
		out:    buffer.New(),
		ctx:    anyctx.New(nil),
		state:  stateConnecting,
	}
	c.ch = NewChannel(loop, sock.Fd())
	c.ch.SetReadCallback(c.handleRead)
	c.ch.SetWriteCallback(c.handleWrite)
	c.ch.SetCloseCallback(c.handleClose)
	c.ch.SetErrorCallback(c.handleError)
	c.ch.SetEventCallback(c.handleAnyEvent)
	c.ch.Tie(func() bool { return atomic.LoadInt32(&c.released) == 0 })
	return c
}

// ID returns the connection's unique id.
func (c *Connection) ID() uint64 { return c.id }

// Connected reports whether the connection is in the Connected state.
func (c *Connection) Connected() bool {
	return connState(atomic.LoadInt32((*int32)(&c.state))) == stateConnected
}

// Context returns the per-connection opaque context.
func (c *Connection) Context() *anyctx.Any { return c.ctx }

// SetContext replaces the per-connection opaque context.
func (c *Connection) SetContext(ctx *anyctx.Any) { c.ctx = ctx }

// SetConnectedCallback, SetMessageCallback, SetClosedCallback, and
// SetAnyEventCallback install the user callback set. TcpServer calls
// these before enqueuing Established.
func (c *Connection) SetConnectedCallback(cb ConnectedCallback) { c.connectedCB = cb }
func (c *Connection) SetMessageCallback(cb MessageCallback)     { c.messageCB = cb }
func (c *Connection) SetClosedCallback(cb ClosedCallback)       { c.closedCB = cb }
func (c *Connection) SetAnyEventCallback(cb AnyEventCallback)   { c.eventCB = cb }

// setServerClosedCallback is server-internal; it is not part of the
// embedder-facing API.
func (c *Connection) setServerClosedCallback(cb ClosedCallback) { c.serverClosedCB = cb }

// Established promotes the connection from Connecting to Connected on its
// owning loop: enables read interest and fires the connected callback.
func (c *Connection) Established() {
	c.loop.RunInLoop(c.establishedInLoop)
}

func (c *Connection) establishedInLoop() {
	if c.state != stateConnecting {
		return
	}
	c.state = stateConnected
	c.ch.EnableRead()
	if c.connectedCB != nil {
		c.connectedCB(c)
	}
}

// Send copies data into a local buffer and hands it to the owning loop:
// the caller's slice may be reused or freed the moment Send returns.
func (c *Connection) Send(data []byte) {
	buf := append([]byte(nil), data...)
	c.loop.RunInLoop(func() { c.sendInLoop(buf) })
}

func (c *Connection) sendInLoop(data []byte) {
	if c.state == stateDisconnected {
		return
	}
	c.out.Write(data)
	if !c.ch.Writable() {
		c.ch.EnableWrite()
	}
}

// Shutdown requests a graceful close: if both buffers are already
// drained it releases immediately; otherwise it finishes delivering
// input, enables write interest to drain any pending output, and
// releases once that output buffer empties. Idempotent — a second
// Shutdown while the first is still draining is a no-op.
func (c *Connection) Shutdown() {
	c.loop.RunInLoop(c.shutdownInLoop)
}

func (c *Connection) shutdownInLoop() {
	if c.state == stateDisconnecting || c.state == stateDisconnected {
		return
	}
	if c.in.Readable() > 0 && c.messageCB != nil {
		c.messageCB(c, c.in)
	}
	if c.out.Readable() == 0 && c.in.Readable() == 0 {
		c.releaseInLoop()
		return
	}
	c.state = stateDisconnecting
	if !c.ch.Writable() {
		c.ch.EnableWrite()
	}
}

// EnableInactiveRelease arms idle-connection reaping: if no I/O event is
// observed on this connection for sec seconds, it releases itself.
func (c *Connection) EnableInactiveRelease(sec int) {
	c.loop.RunInLoop(func() { c.enableInactiveReleaseInLoop(sec) })
}

func (c *Connection) enableInactiveReleaseInLoop(sec int) {
	c.idleReleaseEnabled = true
	if c.loop.HasTimer(c.id) {
		c.loop.TimerRefresh(c.id)
		return
	}
	c.loop.TimerAdd(c.id, sec, c.Release)
}

// CancelInactiveRelease disarms idle-connection reaping.
func (c *Connection) CancelInactiveRelease() {
	c.loop.RunInLoop(c.cancelInactiveReleaseInLoop)
}

func (c *Connection) cancelInactiveReleaseInLoop() {
	c.idleReleaseEnabled = false
	if c.loop.HasTimer(c.id) {
		c.loop.TimerCancel(c.id)
	}
}

// Upgrade atomically replaces the context and callback set, for a higher
// protocol layer swapping decoders in place (e.g. HTTP -> WebSocket).
// Must be called from the owning loop's thread; calling it off-loop is a
// programmer error.
func (c *Connection) Upgrade(ctx *anyctx.Any, connected ConnectedCallback, message MessageCallback, closed ClosedCallback, event AnyEventCallback) {
	c.loop.AssertInLoop()
	c.ctx = ctx
	c.connectedCB = connected
	c.messageCB = message
	c.closedCB = closed
	c.eventCB = event
}

// Release tears the connection down. It always queues rather than
// running inline — even when already called from the owning loop's
// thread — so a Channel mid-dispatch never has its Connection released
// out from under the rest of that dispatch; the tie guard on the Channel
// covers the gap until the queued release actually runs.
func (c *Connection) Release() {
	c.loop.QueueInLoop(c.releaseInLoop)
}

func (c *Connection) releaseInLoop() {
	if c.state == stateDisconnected {
		return
	}
	atomic.StoreInt32(&c.released, 1)
	c.state = stateDisconnected
	c.ch.Remove()
	c.socket.Close()
	if c.loop.HasTimer(c.id) {
		c.loop.TimerCancel(c.id)
	}
	if c.closedCB != nil {
		c.closedCB(c)
	}
	if c.serverClosedCB != nil {
		c.serverClosedCB(c)
	}
}

// handleRead is the Channel's read callback: nonblocking read up to 64KiB
// into the input buffer, then (regardless of whether this particular
// call picked up any new bytes) invoke message if anything is readable.
// A hard error or a real peer close both route through shutdownInLoop,
// which flushes the input buffer through message before tearing down —
// unlike a literal line-by-line port of the source, which would treat a
// real close identically to EAGAIN's zero-byte return and skip the
// flush; spec mandates flushing on a genuine EOF too.
func (c *Connection) handleRead() {
	var buf [maxReadChunk]byte
	n, err := c.socket.Recv(buf[:])
	if err != nil {
		c.shutdownInLoop()
		return
	}
	if n > 0 {
		c.in.Write(buf[:n])
	}
	if c.in.Readable() > 0 && c.messageCB != nil {
		c.messageCB(c, c.in)
	}
}

// handleWrite drains the output buffer. On a hard send error it flushes
// any remaining input through message before releasing. On success, once
// the output buffer empties it disables write interest, and if shutdown
// is already in progress (or the connection somehow reached
// Disconnected) it releases.
func (c *Connection) handleWrite() {
	if c.out.Readable() == 0 {
		if c.state == stateDisconnecting {
			c.releaseInLoop()
		}
		return
	}
	n, err := c.socket.Send(c.out.Peek(c.out.Readable()))
	if err != nil {
		if c.in.Readable() > 0 && c.messageCB != nil {
			c.messageCB(c, c.in)
		}
		c.releaseInLoop()
		return
	}
	c.out.Consume(n)
	if c.out.Readable() == 0 {
		c.ch.DisableWrite()
		if c.state == stateDisconnecting || c.state == stateDisconnected {
			c.releaseInLoop()
		}
	}
}

// handleClose handles a peer hangup: flush whatever input remains, then
// release.
func (c *Connection) handleClose() {
	if c.in.Readable() > 0 && c.messageCB != nil {
		c.messageCB(c, c.in)
	}
	c.releaseInLoop()
}

// handleError is equivalent to handleClose: the fd is no longer usable
// either way.
func (c *Connection) handleError() {
	c.handleClose()
}

// handleAnyEvent refreshes the idle timer (if armed) before firing the
// user's any-event callback.
func (c *Connection) handleAnyEvent() {
	if c.idleReleaseEnabled {
		c.loop.TimerRefresh(c.id)
	}
	if c.eventCB != nil {
		c.eventCB(c)
	}
}

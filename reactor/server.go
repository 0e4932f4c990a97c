package reactor

import (
	"sync/atomic"
	"syscall"

	"github.com/lins-zhou/gorev/netfd"
)

// Options configures a TcpServer. The zero value is valid: ThreadCount 0
// means every connection is handled on the base loop (the "no extra
// threads" configuration spec calls out explicitly), and IdleTimeoutSec 0
// means idle-connection reaping is left disabled unless the embedder
// calls Connection.EnableInactiveRelease itself.
type Options struct {
	// ThreadCount is the number of additional worker loops in the
	// LoopThreadPool. The base loop always exists and always owns the
	// Acceptor; ThreadCount further loops, if any, take accepted
	// connections round-robin.
	ThreadCount int

	// ReusePort enables SO_REUSEPORT on the listening socket, letting
	// multiple processes share the same address. SO_REUSEADDR is set
	// either way.
	ReusePort bool

	// IdleTimeoutSec, if > 0, is passed to EnableInactiveRelease for
	// every connection the server accepts.
	IdleTimeoutSec int
}

// Option mutates an Options in place.
type Option func(*Options)

// WithThreadCount sets the worker-loop count.
func WithThreadCount(n int) Option { return func(o *Options) { o.ThreadCount = n } }

// WithReusePort enables SO_REUSEPORT on the listening socket
// (SO_REUSEADDR is always set).
func WithReusePort(v bool) Option { return func(o *Options) { o.ReusePort = v } }

// WithIdleTimeout arms idle-connection reaping for every accepted
// connection at sec seconds.
func WithIdleTimeout(sec int) Option { return func(o *Options) { o.IdleTimeoutSec = sec } }

// acceptor owns the listening socket's Channel, driving Accept in a loop
// until EAGAIN on every readiness notification (the listening fd is
// registered edge-triggered, so a single connection arriving must not be
// left for a notification that will never come).
type acceptor struct {
	sock    *netfd.Socket
	ch      *Channel
	onAccept func(*netfd.Socket)
}

func newAcceptor(loop *EventLoop, sock *netfd.Socket, onAccept func(*netfd.Socket)) *acceptor {
	a := &acceptor{sock: sock, onAccept: onAccept}
	a.ch = NewChannel(loop, sock.Fd())
	a.ch.SetReadCallback(a.handleRead)
	return a
}

func (a *acceptor) listen() { a.ch.EnableRead() }

func (a *acceptor) handleRead() {
	for {
		conn, err := a.sock.Accept()
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			if err != syscall.EAGAIN {
				log.Warn().Err(err).Msg("acceptor: accept failed")
			}
			return
		}
		a.onAccept(conn)
	}
}

func (a *acceptor) close() {
	a.ch.Remove()
	a.sock.Close()
}

// TcpServer owns the Acceptor and the LoopThreadPool. The connection
// registry (conns) is mutated only on the base loop's thread: insertion
// happens in handleNewConnection, which the Acceptor's Channel already
// dispatches there, and removal is hopped onto base via RunInLoop from
// removeConnection, since a Connection releases itself on its own
// (possibly worker) loop.
type TcpServer struct {
	base *EventLoop
	pool *LoopThreadPool
	acc  *acceptor

	opts Options

	nextID uint64

	conns map[uint64]*Connection

	connectedCB ConnectedCallback
	messageCB   MessageCallback
	closedCB    ClosedCallback
	eventCB     AnyEventCallback
}

// NewTcpServer binds a listening socket at addr and constructs a
// TcpServer around it. The base EventLoop must already exist; Start runs
// it (blocking the calling thread) once the caller is ready.
func NewTcpServer(base *EventLoop, network, addr string, opts ...Option) (*TcpServer, error) {
	var o Options
	for _, f := range opts {
		f(&o)
	}

	sock, err := netfd.Listen(network, addr, o.ReusePort)
	if err != nil {
		return nil, err
	}

	pool, err := NewLoopThreadPool(base, o.ThreadCount)
	if err != nil {
		sock.Close()
		return nil, err
	}

	s := &TcpServer{
		base:  base,
		pool:  pool,
		opts:  o,
		conns: make(map[uint64]*Connection),
	}
	s.acc = newAcceptor(base, sock, s.handleNewConnection)
	return s, nil
}

// SetConnectedCallback, SetMessageCallback, SetClosedCallback, and
// SetAnyEventCallback install the callback set every accepted Connection
// receives. Call these before Start.
func (s *TcpServer) SetConnectedCallback(cb ConnectedCallback) { s.connectedCB = cb }
func (s *TcpServer) SetMessageCallback(cb MessageCallback)     { s.messageCB = cb }
func (s *TcpServer) SetClosedCallback(cb ClosedCallback)       { s.closedCB = cb }
func (s *TcpServer) SetAnyEventCallback(cb AnyEventCallback)   { s.eventCB = cb }

// handleNewConnection runs on the base loop (the Acceptor's Channel is
// registered there): it picks the next worker loop round-robin, builds
// the Connection (construction only touches struct fields, so it is safe
// to do here rather than hopping first), registers it in the
// base-confined registry, and then hands establishment and idle-timer
// setup to the connection's own owning loop via Established/
// EnableInactiveRelease, each of which hops there on its own.
func (s *TcpServer) handleNewConnection(sock *netfd.Socket) {
	id := atomic.AddUint64(&s.nextID, 1)
	loop := s.pool.Next()

	c := NewConnection(loop, id, sock)
	c.SetConnectedCallback(s.connectedCB)
	c.SetMessageCallback(s.messageCB)
	c.SetClosedCallback(s.closedCB)
	c.SetAnyEventCallback(s.eventCB)
	c.setServerClosedCallback(s.removeConnection)

	s.conns[id] = c

	if s.opts.IdleTimeoutSec > 0 {
		c.EnableInactiveRelease(s.opts.IdleTimeoutSec)
	}
	c.Established()
}

// removeConnection erases c from the registry. It is called from
// releaseInLoop, which runs on c's own owning loop — possibly a worker
// loop — so it hops onto the base loop before touching conns.
func (s *TcpServer) removeConnection(c *Connection) {
	s.base.RunInLoop(func() {
		delete(s.conns, c.ID())
	})
}

// Start begins accepting and blocks the calling thread running the base
// loop. Call NewTcpServer's base loop's Start from wherever the
// embedder wants the server's main thread to live; Start here only arms
// the Acceptor and hands control to that loop.
func (s *TcpServer) Start() {
	s.acc.listen()
	s.base.Start()
}

// Stop stops every worker loop and the base loop, and closes the
// listening socket. Individual connections are not closed: their sockets
// stay open, and once their loop has stopped no further events or queued
// tasks run for them.
func (s *TcpServer) Stop() {
	s.acc.close()
	s.pool.Stop()
	s.base.Stop()
}

// ConnectionCount returns the number of connections currently tracked by
// the server's registry. Safe to call from any thread: it hops onto the
// base loop, where conns is confined, and waits for the result.
func (s *TcpServer) ConnectionCount() int {
	result := make(chan int, 1)
	s.base.RunInLoop(func() {
		result <- len(s.conns)
	})
	return <-result
}

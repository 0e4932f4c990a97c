// Package netfd is a thin, typed wrapper over a nonblocking stream
// socket. It owns exactly one fd: Close is idempotent-safe (a second
// Close is a no-op) but callers must not share a Socket across owners.
package netfd

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"

	reuseport "github.com/kavu/go_reuseport"
	"golang.org/x/sys/unix"
)

// ErrEOF is returned by Recv when the peer performed an orderly TCP
// close (a real read returning 0), distinct from the transient "nothing
// available yet" case (which returns (0, nil)) and from a hard I/O error
// (which returns (0, non-nil non-ErrEOF)).
var ErrEOF = errors.New("netfd: connection closed by peer")

const closedFd = -1

// Socket holds a nonnegative fd, or closedFd once Close has run.
type Socket struct {
	fd int
}

// FromFd wraps an already-open, already-nonblocking fd.
func FromFd(fd int) *Socket { return &Socket{fd: fd} }

// Fd returns the raw descriptor.
func (s *Socket) Fd() int { return s.fd }

// Listen creates a nonblocking listening socket for addr ("host:port" or
// ":port"). SO_REUSEADDR is always set on the listening socket, so a
// restarted process can rebind an address still in TIME_WAIT; reusePort
// additionally enables SO_REUSEPORT, letting multiple processes share the
// same address, via go_reuseport.Listen.
func Listen(network, addr string, reusePort bool) (*Socket, error) {
	if reusePort {
		ln, err := reuseport.Listen(network, addr)
		if err != nil {
			return nil, err
		}
		return detachListener(ln)
	}
	lc := net.ListenConfig{Control: setReuseAddr}
	ln, err := lc.Listen(context.Background(), network, addr)
	if err != nil {
		return nil, err
	}
	return detachListener(ln)
}

// setReuseAddr is a net.ListenConfig.Control hook that sets SO_REUSEADDR
// on the socket before bind; setting it after Listen has already bound
// the socket would have no effect.
func setReuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

func detachListener(ln net.Listener) (*Socket, error) {
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return nil, errors.New("netfd: listener is not a TCP listener")
	}
	f, err := tcpLn.File()
	if err != nil {
		ln.Close()
		return nil, err
	}
	fd := int(f.Fd())
	// The net.Listener and its os.File both still reference the fd with
	// their own finalizers; dup it so closing them doesn't close ours
	// out from under the reactor.
	dupFd, err := unix.Dup(fd)
	f.Close()
	ln.Close()
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(dupFd, true); err != nil {
		unix.Close(dupFd)
		return nil, err
	}
	return &Socket{fd: dupFd}, nil
}

// LocalAddr returns the "host:port" address the socket is bound to, for
// logging (e.g. reporting the ephemeral port a ":0" listen resolved to).
func (s *Socket) LocalAddr() string {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return ""
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	default:
		return ""
	}
}

// Accept accepts one pending connection and returns a nonblocking Socket
// for it, or (nil, syscall.EAGAIN) if none is pending right now. Callers
// on an edge-triggered listener fd must keep calling Accept until they
// see EAGAIN.
func (s *Socket) Accept() (*Socket, error) {
	nfd, _, err := syscall.Accept(s.fd)
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return nil, err
	}
	return &Socket{fd: nfd}, nil
}

// Recv reads into buf. It returns:
//   - (n, nil) with n > 0: n bytes were read.
//   - (0, nil): EAGAIN or EINTR — nothing happened this call, try again
//     on the next readiness notification.
//   - (0, ErrEOF): the peer closed its end (a real read returning 0).
//   - (0, err): a hard I/O error.
func (s *Socket) Recv(buf []byte) (int, error) {
	n, err := unix.Read(s.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	if n == 0 {
		return 0, ErrEOF
	}
	return n, nil
}

// Send writes buf. Like Recv, EAGAIN/EINTR report (0, nil) rather than an
// error: the caller should retry once writable again.
func (s *Socket) Send(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	n, err := unix.Write(s.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// Close closes the fd exactly once; subsequent calls are a no-op.
func (s *Socket) Close() error {
	if s.fd == closedFd {
		return nil
	}
	fd := s.fd
	s.fd = closedFd
	return unix.Close(fd)
}

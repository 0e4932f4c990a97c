//go:build linux
// +build linux

package netfd

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestListenAcceptRecvSend(t *testing.T) {
	ln, err := Listen("tcp", "127.0.0.1:0", false)
	require.NoError(t, err)
	defer ln.Close()

	addr := localAddr(t, ln)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		defer conn.Close()

		_, err = conn.Write([]byte("hello"))
		require.NoError(t, err)

		buf := make([]byte, 16)
		n, err := conn.Read(buf)
		require.NoError(t, err)
		require.Equal(t, "HELLO", string(buf[:n]))
	}()

	var srv *Socket
	for i := 0; i < 100; i++ {
		srv, err = ln.Accept()
		if err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, srv)
	defer srv.Close()

	var buf [16]byte
	var n int
	for i := 0; i < 100; i++ {
		n, err = srv.Recv(buf[:])
		require.NoError(t, err)
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, "hello", string(buf[:n]))

	_, err = srv.Send([]byte("HELLO"))
	require.NoError(t, err)

	<-done
}

func TestRecvReportsEOFOnPeerClose(t *testing.T) {
	ln, err := Listen("tcp", "127.0.0.1:0", false)
	require.NoError(t, err)
	defer ln.Close()

	addr := localAddr(t, ln)

	go func() {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return
		}
		conn.Close()
	}()

	var srv *Socket
	for i := 0; i < 100; i++ {
		srv, err = ln.Accept()
		if err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, srv)
	defer srv.Close()

	var buf [16]byte
	for i := 0; i < 100; i++ {
		_, err = srv.Recv(buf[:])
		if err == ErrEOF {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected ErrEOF")
}

func localAddr(t *testing.T, s *Socket) string {
	t.Helper()
	sa, err := unix.Getsockname(s.Fd())
	require.NoError(t, err)
	sa4, ok := sa.(*unix.SockaddrInet4)
	require.True(t, ok, "expected an IPv4 socket address")
	ip := net.IP(sa4.Addr[:])
	return net.JoinHostPort(ip.String(), strconv.Itoa(sa4.Port))
}

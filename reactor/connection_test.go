//go:build linux

package reactor

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lins-zhou/gorev/anyctx"
	"github.com/lins-zhou/gorev/buffer"
)

func TestConnectionIdleReleaseFiresWithoutTraffic(t *testing.T) {
	base, err := NewEventLoop()
	require.NoError(t, err)

	srv, err := NewTcpServer(base, "tcp", "127.0.0.1:0", WithIdleTimeout(1))
	require.NoError(t, err)
	addr := srv.acc.sock.LocalAddr()

	closed := make(chan struct{}, 1)
	srv.SetClosedCallback(func(c *Connection) {
		select {
		case closed <- struct{}{}:
		default:
		}
	})

	go srv.Start()
	defer func() {
		srv.Stop()
		base.Close()
	}()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-closed:
	case <-time.After(4 * time.Second):
		t.Fatal("idle connection was never released")
	}
}

func TestConnectionRefreshKeepsAliveUnderTraffic(t *testing.T) {
	base, err := NewEventLoop()
	require.NoError(t, err)

	srv, err := NewTcpServer(base, "tcp", "127.0.0.1:0", WithIdleTimeout(1))
	require.NoError(t, err)
	addr := srv.acc.sock.LocalAddr()

	closed := make(chan struct{}, 1)
	srv.SetClosedCallback(func(c *Connection) {
		select {
		case closed <- struct{}{}:
		default:
		}
	})
	srv.SetMessageCallback(func(c *Connection, in *buffer.Buffer) {
		in.Consume(in.Readable())
	})

	go srv.Start()
	defer func() {
		srv.Stop()
		base.Close()
	}()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	deadline := time.Now().Add(2500 * time.Millisecond)
	for time.Now().Before(deadline) {
		_, err := conn.Write([]byte("x"))
		require.NoError(t, err)
		select {
		case <-closed:
			t.Fatal("connection was released despite ongoing traffic")
		case <-time.After(300 * time.Millisecond):
		}
	}
}

func TestConnectionCancelInactiveReleaseDisarmsReaper(t *testing.T) {
	base, err := NewEventLoop()
	require.NoError(t, err)

	srv, err := NewTcpServer(base, "tcp", "127.0.0.1:0", WithIdleTimeout(1))
	require.NoError(t, err)
	addr := srv.acc.sock.LocalAddr()

	closed := make(chan struct{}, 1)
	srv.SetClosedCallback(func(c *Connection) {
		select {
		case closed <- struct{}{}:
		default:
		}
	})
	srv.SetConnectedCallback(func(c *Connection) {
		c.CancelInactiveRelease()
	})

	go srv.Start()
	defer func() {
		srv.Stop()
		base.Close()
	}()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-closed:
		t.Fatal("connection was released despite CancelInactiveRelease")
	case <-time.After(3 * time.Second):
	}
}

func TestConnectionUpgradeSwapsCallbacks(t *testing.T) {
	base, err := NewEventLoop()
	require.NoError(t, err)

	srv, err := NewTcpServer(base, "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := srv.acc.sock.LocalAddr()

	upgradedMsg := make(chan string, 1)

	srv.SetConnectedCallback(func(c *Connection) {
		c.Upgrade(
			anyctx.New("upgraded"),
			nil,
			func(c *Connection, in *buffer.Buffer) {
				data := string(in.Peek(in.Readable()))
				in.Consume(in.Readable())
				upgradedMsg <- data
			},
			nil,
			nil,
		)
	})

	go srv.Start()
	defer func() {
		srv.Stop()
		base.Close()
	}()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("hi"))
	require.NoError(t, err)

	select {
	case msg := <-upgradedMsg:
		require.Equal(t, "hi", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("upgraded message callback never fired")
	}
}

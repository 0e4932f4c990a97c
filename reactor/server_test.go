//go:build linux

package reactor

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lins-zhou/gorev/buffer"
)

func TestServerEchoAndClose(t *testing.T) {
	gotClosed := make(chan struct{}, 1)

	base, err := NewEventLoop()
	require.NoError(t, err)

	srv, err := NewTcpServer(base, "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := srv.acc.sock.LocalAddr()
	require.NotEmpty(t, addr)

	srv.SetMessageCallback(func(c *Connection, in *buffer.Buffer) {
		data := append([]byte(nil), in.Peek(in.Readable())...)
		in.Consume(len(data))
		c.Send(data)
	})
	srv.SetClosedCallback(func(c *Connection) {
		select {
		case gotClosed <- struct{}{}:
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

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))

	conn.Close()

	select {
	case <-gotClosed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for closed callback")
	}
}

func TestServerRoundRobinsAcrossWorkerLoops(t *testing.T) {
	base, err := NewEventLoop()
	require.NoError(t, err)

	srv, err := NewTcpServer(base, "tcp", "127.0.0.1:0", WithThreadCount(2))
	require.NoError(t, err)
	addr := srv.acc.sock.LocalAddr()
	require.Len(t, srv.pool.Loops(), 2)

	var mu sync.Mutex
	seen := make(map[*EventLoop]int)
	connected := make(chan struct{}, 8)
	srv.SetConnectedCallback(func(c *Connection) {
		mu.Lock()
		seen[c.loop]++
		mu.Unlock()
		connected <- struct{}{}
	})

	go srv.Start()
	defer func() {
		srv.Stop()
		base.Close()
	}()

	const n = 4
	var conns []net.Conn
	for i := 0; i < n; i++ {
		c, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		conns = append(conns, c)
		select {
		case <-connected:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for connected callback")
		}
	}
	for _, c := range conns {
		c.Close()
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2, "expected connections spread across both worker loops")
}

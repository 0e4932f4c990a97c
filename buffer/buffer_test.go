package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadFIFO(t *testing.T) {
	b := New()
	b.WriteString("hello ")
	b.WriteString("world")
	require.Equal(t, 11, b.Readable())
	require.Equal(t, "hello world", b.ReadString(11))
	require.Equal(t, 0, b.Readable())
}

func TestConsumeInterleavedWithWrites(t *testing.T) {
	b := New()
	b.WriteString("abc")
	b.Consume(1)
	b.WriteString("def")
	require.Equal(t, "bcdef", b.ReadString(b.Readable()))
}

func TestGrowthBeyondInitialCapacity(t *testing.T) {
	b := NewSize(4)
	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i)
	}
	b.Write(payload)
	require.Equal(t, len(payload), b.Readable())
	require.Equal(t, payload, b.Peek(len(payload)))
}

func TestCompactionReclaimsFrontSpace(t *testing.T) {
	b := NewSize(8)
	b.WriteString("aaaa")
	b.Consume(4)
	b.WriteString("bbbbbbbb")
	require.Equal(t, "bbbbbbbb", b.ReadString(8))
}

func TestReadLine(t *testing.T) {
	b := New()
	b.WriteString("GET / HTTP/1.1\r\n")
	line := b.ReadLine()
	require.Equal(t, "GET / HTTP/1.1\r\n", string(line))
	require.Equal(t, 0, b.Readable())
}

func TestReadLineNoneYet(t *testing.T) {
	b := New()
	b.WriteString("no newline yet")
	require.Nil(t, b.ReadLine())
	require.Equal(t, 14, b.Readable())
}

func TestConsumePastReadablePanics(t *testing.T) {
	b := New()
	b.WriteString("ab")
	require.Panics(t, func() { b.Consume(3) })
}

func TestClearResetsCursors(t *testing.T) {
	b := New()
	b.WriteString("hello")
	b.Clear()
	require.Equal(t, 0, b.Readable())
	b.WriteString("x")
	require.Equal(t, "x", b.ReadString(1))
}

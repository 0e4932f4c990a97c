//go:build linux
// +build linux

package netpoll

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventFDNew(t *testing.T) {
	efd, err := NewEventFD()
	require.NoError(t, err)
	defer efd.Close()

	require.GreaterOrEqual(t, efd.Fd(), 0)
}

func TestEventFDReadWrite(t *testing.T) {
	efd, err := NewEventFD()
	require.NoError(t, err)
	defer efd.Close()

	const want uint64 = 0x78
	require.NoError(t, efd.WriteEvent(want))

	got, err := efd.ReadEvent()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestEventFDReadWithoutWrite(t *testing.T) {
	efd, err := NewEventFD()
	require.NoError(t, err)
	defer efd.Close()

	got, err := efd.ReadEvent()
	require.NoError(t, err)
	require.Zero(t, got)
}

func BenchmarkEventFDReadWriteEvent(b *testing.B) {
	const event = 15
	efd, err := NewEventFD()
	if err != nil {
		b.Fatal(err)
	}
	defer efd.Close()

	for i := 0; i < b.N; i++ {
		if err := efd.WriteEvent(event); err != nil {
			b.Fatal(err)
		}
		val, err := efd.ReadEvent()
		if err != nil {
			b.Fatal(err)
		} else if val != event {
			b.Fail()
		}
	}
}

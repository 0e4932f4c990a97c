package anyctx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type session struct {
	user string
}

func TestSetGetRoundTrip(t *testing.T) {
	a := New(nil)
	SetValue(a, &session{user: "alice"})
	got := GetValue[*session](a)
	require.Equal(t, "alice", got.user)
}

func TestGetTypeMismatchPanics(t *testing.T) {
	a := New(nil)
	SetValue(a, 42)
	require.Panics(t, func() {
		GetValue[string](a)
	})
}

func TestTryGetValueReportsMiss(t *testing.T) {
	a := New(nil)
	_, ok := TryGetValue[*session](a)
	require.False(t, ok)

	SetValue(a, &session{user: "bob"})
	got, ok := TryGetValue[*session](a)
	require.True(t, ok)
	require.Equal(t, "bob", got.user)
}

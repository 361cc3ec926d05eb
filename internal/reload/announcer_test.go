package reload

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gotunnel/gt/internal/descriptor"
	"github.com/gotunnel/gt/internal/framing"
	"github.com/gotunnel/gt/internal/lifecycle"
)

func TestAnnouncerEmitsReadyDoneOnceAllReported(t *testing.T) {
	var buf bytes.Buffer
	a := NewAnnouncer(&buf, 2)

	require.NoError(t, a.Announce(descriptor.ServerArgs("one")))
	require.NoError(t, a.Announce(descriptor.ServerArgs("two")))

	r := lifecycle.NewHexReader(framing.NewHexReader(&buf))

	m1, err := r.Recv()
	require.NoError(t, err)
	require.Equal(t, lifecycle.Ready, m1.Op)

	m2, err := r.Recv()
	require.NoError(t, err)
	require.Equal(t, lifecycle.Ready, m2.Op)

	m3, err := r.Recv()
	require.NoError(t, err)
	require.Equal(t, lifecycle.ReadyDone, m3.Op)
}

func TestAnnouncerAllReadyIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	a := NewAnnouncer(&buf, 0)

	require.NoError(t, a.AllReady())
	require.NoError(t, a.AllReady())

	r := lifecycle.NewHexReader(framing.NewHexReader(&buf))
	m, err := r.Recv()
	require.NoError(t, err)
	require.Equal(t, lifecycle.ReadyDone, m.Op)

	// No second frame was written.
	_, err = r.Recv()
	require.Error(t, err)
}

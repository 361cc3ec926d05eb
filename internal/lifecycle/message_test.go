package lifecycle

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gotunnel/gt/internal/descriptor"
	"github.com/gotunnel/gt/internal/framing"
)

func TestBinaryReadyRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewBinaryWriter(framing.NewBinaryWriter(&buf))
	require.NoError(t, w.Send(Message{Op: Ready}))

	r := NewBinaryReader(framing.NewBinaryReader(&buf))
	m, err := r.Recv()
	require.NoError(t, err)
	require.Equal(t, Ready, m.Op)
	require.Nil(t, m.Descriptor)
}

func TestHexReadyCarriesDescriptor(t *testing.T) {
	var buf bytes.Buffer
	d := descriptor.Path("a.yaml", descriptor.RoleClient)
	w := NewHexWriter(framing.NewHexWriter(&buf))
	require.NoError(t, w.Send(Message{Op: Ready, Descriptor: &d}))

	r := NewHexReader(framing.NewHexReader(&buf))
	m, err := r.Recv()
	require.NoError(t, err)
	require.Equal(t, Ready, m.Op)
	require.NotNil(t, m.Descriptor)
	require.Equal(t, d, *m.Descriptor)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	require.Error(t, err)
}

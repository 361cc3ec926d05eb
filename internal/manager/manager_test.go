package manager

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gotunnel/gt/internal/descriptor"
)

func TestDiscoverDescriptorsPrefersDirectOverConfigPath(t *testing.T) {
	d := descriptor.Path("server.yaml", descriptor.RoleServer)
	descs, err := discoverDescriptors(Options{ConfigPath: "ignored", Direct: &d})
	require.NoError(t, err)
	require.Equal(t, []descriptor.Descriptor{d}, descs)
}

func TestDiscoverDescriptorsFallsBackToConfigDiscovery(t *testing.T) {
	_, err := discoverDescriptors(Options{ConfigPath: "/path/that/does/not/exist/on/any/machine"})
	require.Error(t, err)
}

package peer

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEffectiveTimeoutFlooredAtFive(t *testing.T) {
	require.EqualValues(t, 5, Config{TimeoutSeconds: 0}.EffectiveTimeout())
	require.EqualValues(t, 5, Config{TimeoutSeconds: 4}.EffectiveTimeout())
	require.EqualValues(t, 5, Config{TimeoutSeconds: 5}.EffectiveTimeout())
	require.EqualValues(t, 30, Config{TimeoutSeconds: 30}.EffectiveTimeout())
}

func TestChannelClosedBumpsNoChannelIDOnlyOnLastChannel(t *testing.T) {
	c := &Controller{}

	atomic.StoreInt32(&c.channelCount, 2)
	c.channelClosed()
	require.EqualValues(t, 1, atomic.LoadInt32(&c.channelCount))
	require.EqualValues(t, 0, atomic.LoadInt32(&c.noChannelID))

	c.channelClosed()
	require.EqualValues(t, 0, atomic.LoadInt32(&c.channelCount))
	require.EqualValues(t, 1, atomic.LoadInt32(&c.noChannelID))
}

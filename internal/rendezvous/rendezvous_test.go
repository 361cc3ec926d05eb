package rendezvous

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPollWatcherDetectsSignalFiles(t *testing.T) {
	dir := t.TempDir()
	pw := newPollWatcher(dir, zap.NewNop())
	defer pw.Close()

	// Shrink the poll interval indirectly by writing then waiting for
	// at least one tick; pollInterval is a package constant so the
	// test budget must exceed it.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reload"), nil, 0o644))

	select {
	case sig := <-pw.Events():
		require.Equal(t, Reload, sig)
	case <-time.After(pollInterval * 3):
		t.Fatal("timed out waiting for poll watcher to notice reload file")
	}
}

func TestParseSignal(t *testing.T) {
	for _, s := range []string{"reload", "restart", "stop"} {
		_, err := ParseSignal(s)
		require.NoError(t, err)
	}
	_, err := ParseSignal("bogus")
	require.Error(t, err)
}

func TestSendCreatesTriggerFile(t *testing.T) {
	dir := t.TempDir()
	old := os.Getenv("TMPDIR")
	os.Setenv("TMPDIR", dir)
	defer os.Setenv("TMPDIR", old)

	require.NoError(t, Send(Stop))
	rdir, err := Dir()
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(rdir, "stop"))
	require.NoError(t, statErr)
}

package supervisor

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/gotunnel/gt/internal/descriptor"
	"github.com/gotunnel/gt/internal/framing"
	"github.com/gotunnel/gt/internal/lifecycle"
)

// fakeChild wires a child's "stdin"/"stdout" to in-process pipes so a
// test can play the part of the spawned process without exec'ing one.
type fakeChild struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter

	killed  int32
	waitErr chan error
}

func newFakeChild() *fakeChild {
	ir, iw := io.Pipe()
	or, ow := io.Pipe()
	return &fakeChild{
		stdinR:  ir,
		stdinW:  iw,
		stdoutR: or,
		stdoutW: ow,
		waitErr: make(chan error, 1),
	}
}

func (c *fakeChild) Stdin() io.WriteCloser { return c.stdinW }
func (c *fakeChild) Stdout() io.ReadCloser { return c.stdoutR }
func (c *fakeChild) Wait() error           { return <-c.waitErr }
func (c *fakeChild) Kill() error {
	atomic.StoreInt32(&c.killed, 1)
	c.waitErr <- nil
	return nil
}

func (c *fakeChild) wasKilled() bool { return atomic.LoadInt32(&c.killed) == 1 }

// exitNormally simulates the child process exiting on its own, as if
// it had observed its parent pipe close.
func (c *fakeChild) exitNormally() { c.waitErr <- nil }

// sendFromChild writes one lifecycle message as the child, as it
// would appear on the child's stdout.
func (c *fakeChild) sendFromChild(t *testing.T, m lifecycle.Message) {
	t.Helper()
	w := lifecycle.NewBinaryWriter(framing.NewBinaryWriter(c.stdoutW))
	require.NoError(t, w.Send(m))
}

// readSentToChild reads one lifecycle message sent to the child's
// stdin by the supervisor.
func readSentToChild(t *testing.T, c *fakeChild) lifecycle.Message {
	t.Helper()
	r := lifecycle.NewBinaryReader(framing.NewBinaryReader(c.stdinR))
	m, err := r.Recv()
	require.NoError(t, err)
	return m
}

type fakeSpawner struct {
	children chan *fakeChild
}

func (s *fakeSpawner) Spawn(_ context.Context, _ descriptor.Descriptor) (ChildProcess, error) {
	c := newFakeChild()
	s.children <- c
	return c, nil
}

func testLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

func TestShutdownTimesOutThenKills(t *testing.T) {
	spawner := &fakeSpawner{children: make(chan *fakeChild, 4)}
	sup := New(spawner, testLogger(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := descriptor.ServerArgs("test-args")
	sup.Start(ctx, d)

	child := <-spawner.children
	child.sendFromChild(t, lifecycle.Message{Op: lifecycle.Ready})

	// Wait for the handle to be installed.
	var h *Handle
	require.Eventually(t, func() bool {
		var ok bool
		h, ok = sup.Get(d)
		return ok
	}, time.Second, 5*time.Millisecond)

	// The child never replies to GracefulShutdown, so Shutdown must
	// escalate to a hard kill once the caller's deadline (shorter than
	// the 120s budget) expires.
	w := lifecycle.NewBinaryWriter(framing.NewBinaryWriter(h.Stdin))

	done := make(chan error, 1)
	go func() {
		budgetCtx, budgetCancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer budgetCancel()
		done <- Shutdown(budgetCtx, w, h, SendGraceful)
	}()

	// Drain the GracefulShutdown request so the write doesn't block
	// forever on an unread pipe.
	go readSentToChild(t, child)

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not escalate to kill in time")
	}
	// Shutdown only fires the kill one-shot; the supervising goroutine
	// kills the child asynchronously.
	require.Eventually(t, child.wasKilled, time.Second, 5*time.Millisecond)
}

func TestReadyAnnouncesOnce(t *testing.T) {
	spawner := &fakeSpawner{children: make(chan *fakeChild, 4)}
	announcer := &countingAnnouncer{}
	sup := New(spawner, testLogger(t), announcer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := descriptor.ServerArgs("test-args")
	sup.Start(ctx, d)

	child := <-spawner.children
	child.sendFromChild(t, lifecycle.Message{Op: lifecycle.Ready})
	child.sendFromChild(t, lifecycle.Message{Op: lifecycle.Ready})

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&announcer.count) >= 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&announcer.count))

	child.sendFromChild(t, lifecycle.Message{Op: lifecycle.ShutdownDone})
	child.exitNormally()
}

type countingAnnouncer struct {
	count int32
}

func (a *countingAnnouncer) Announce(descriptor.Descriptor) error {
	atomic.AddInt32(&a.count, 1)
	return nil
}

func (a *countingAnnouncer) AllReady() error { return nil }

// TestFastCrashAppliesCooldown verifies that a child exiting almost
// immediately after spawn is respawned on the slower fast-crash
// cooldown tier rather than instantly.
func TestFastCrashAppliesCooldown(t *testing.T) {
	spawner := &fakeSpawner{children: make(chan *fakeChild, 4)}
	sup := New(spawner, testLogger(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := descriptor.ServerArgs("test-args")
	sup.Start(ctx, d)

	first := <-spawner.children
	first.sendFromChild(t, lifecycle.Message{Op: lifecycle.Ready})
	first.exitNormally()

	select {
	case <-spawner.children:
		t.Fatal("supervisor respawned immediately after a fast crash; expected the cooldown tier")
	case <-time.After(200 * time.Millisecond):
		// No respawn yet, as expected under the fast-crash cooldown.
	}
}

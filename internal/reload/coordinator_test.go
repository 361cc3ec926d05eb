package reload

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gotunnel/gt/internal/descriptor"
	"github.com/gotunnel/gt/internal/framing"
	"github.com/gotunnel/gt/internal/lifecycle"
	"github.com/gotunnel/gt/internal/rendezvous"
	"github.com/gotunnel/gt/internal/supervisor"
)

// fakeOldChild stands in for a currently-running old child: its stdin
// is readable by the test so it can observe what the reload
// coordinator sends it.
type fakeOldChild struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	waitErr chan error
}

func newFakeOldChild() *fakeOldChild {
	ir, iw := io.Pipe()
	or, ow := io.Pipe()
	return &fakeOldChild{stdinR: ir, stdinW: iw, stdoutR: or, stdoutW: ow, waitErr: make(chan error, 1)}
}

func (c *fakeOldChild) Stdin() io.WriteCloser { return c.stdinW }
func (c *fakeOldChild) Stdout() io.ReadCloser { return c.stdoutR }
func (c *fakeOldChild) Wait() error           { return <-c.waitErr }
func (c *fakeOldChild) Kill() error           { c.waitErr <- nil; return nil }

// serve plays the part of a well-behaved child: whatever shutdown op
// it is sent, it immediately reports the matching *Done envelope.
func (c *fakeOldChild) serve() {
	go func() {
		r := lifecycle.NewBinaryReader(framing.NewBinaryReader(c.stdinR))
		w := lifecycle.NewBinaryWriter(framing.NewBinaryWriter(c.stdoutW))
		for {
			m, err := r.Recv()
			if err != nil {
				return
			}
			switch m.Op {
			case lifecycle.GracefulShutdown:
				_ = w.Send(lifecycle.Message{Op: lifecycle.GracefulShutdownDone})
			case lifecycle.Shutdown:
				_ = w.Send(lifecycle.Message{Op: lifecycle.ShutdownDone})
			}
		}
	}()
}

type fakeOldSpawner struct {
	children map[descriptor.Descriptor]*fakeOldChild
}

func (s *fakeOldSpawner) Spawn(_ context.Context, d descriptor.Descriptor) (supervisor.ChildProcess, error) {
	return s.children[d], nil
}

// fakeTwin simulates the twin manager's stdout, letting the test drive
// exactly which Ready/ReadyDone envelopes it emits.
type fakeTwin struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func newFakeTwin() *fakeTwin {
	r, w := io.Pipe()
	return &fakeTwin{r: r, w: w}
}

func (t *fakeTwin) Stdout() io.ReadCloser { return t.r }
func (t *fakeTwin) Wait() error           { return nil }
func (t *fakeTwin) Kill() error           { return t.w.Close() }

func (t *fakeTwin) send(m lifecycle.Message) {
	w := lifecycle.NewHexWriter(framing.NewHexWriter(t.w))
	_ = w.Send(m)
}

type fakeTwinSpawner struct {
	twin *fakeTwin
}

func (s *fakeTwinSpawner) SpawnTwin(context.Context) (TwinProcess, error) {
	return s.twin, nil
}

func TestCoordinateRetiresEachOldChildAsTwinReportsReady(t *testing.T) {
	log := zaptest.NewLogger(t)

	descA := descriptor.Path("a.yaml", descriptor.RoleServer)
	descB := descriptor.Path("b.yaml", descriptor.RoleServer)

	oldA, oldB := newFakeOldChild(), newFakeOldChild()
	oldA.serve()
	oldB.serve()
	spawner := &fakeOldSpawner{children: map[descriptor.Descriptor]*fakeOldChild{
		descA: oldA,
		descB: oldB,
	}}

	sup := supervisor.New(spawner, log, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.Start(ctx, descA)
	sup.Start(ctx, descB)

	require.Eventually(t, func() bool {
		_, okA := sup.Get(descA)
		_, okB := sup.Get(descB)
		return okA && okB
	}, time.Second, 5*time.Millisecond)

	twin := newFakeTwin()
	twinSpawner := &fakeTwinSpawner{twin: twin}

	done := make(chan error, 1)
	go func() {
		done <- Coordinate(ctx, sup, twinSpawner, rendezvous.Reload, log)
	}()

	twin.send(lifecycle.Message{Op: lifecycle.Ready, Descriptor: &descA})

	require.Eventually(t, func() bool {
		_, ok := sup.Get(descA)
		return !ok
	}, time.Second, 5*time.Millisecond)

	_, stillThere := sup.Get(descB)
	require.True(t, stillThere, "B must not be retired before its own Ready arrives")

	twin.send(lifecycle.Message{Op: lifecycle.Ready, Descriptor: &descB})
	twin.send(lifecycle.Message{Op: lifecycle.ReadyDone})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Coordinate did not return after ReadyDone")
	}

	_, okA := sup.Get(descA)
	_, okB := sup.Get(descB)
	require.False(t, okA)
	require.False(t, okB)
}

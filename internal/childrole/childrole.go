// Package childrole hosts the generic child side of the parent<->child
// lifecycle protocol for the "sub-server" and "sub-client"
// subcommands. The tunnel transport those roles run is an opaque
// external collaborator; this package implements the protocol surface
// a worker binary needs to satisfy the supervisor, with the tunnel
// work itself left as a plugged-in func so a real implementation can
// be dropped in later.
package childrole

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/gotunnel/gt/internal/framing"
	"github.com/gotunnel/gt/internal/lifecycle"
)

// Work is the opaque per-role body a real server/client tunnel would
// run once the child has reported Ready. It must return promptly once
// ctx is cancelled.
type Work func(ctx context.Context) error

// Run reports Ready on stdout, starts work in the background, then
// waits for a lifecycle op from stdin. When one arrives it cancels
// work, waits for it to return, and replies GracefulShutdownDone to a
// GracefulShutdown and ShutdownDone to any other op. If ctx is
// cancelled, work returns, or stdin fails first, Run returns nil
// without sending a *Done op.
// stdin/stdout are parameterized so tests can substitute in-memory
// pipes instead of the process's real stdio.
func Run(ctx context.Context, log *zap.Logger, stdin io.Reader, stdout io.Writer, work Work) error {
	reader := lifecycle.NewBinaryReader(framing.NewBinaryReader(stdin))
	writer := lifecycle.NewBinaryWriter(framing.NewBinaryWriter(stdout))

	workCtx, cancelWork := context.WithCancel(ctx)
	defer cancelWork()

	workDone := make(chan error, 1)
	if work != nil {
		go func() { workDone <- work(workCtx) }()
	}

	if err := writer.Send(lifecycle.Message{Op: lifecycle.Ready}); err != nil {
		return err
	}

	type recv struct {
		msg lifecycle.Message
		err error
	}
	ops := make(chan recv, 1)
	go func() {
		for {
			m, err := reader.Recv()
			ops <- recv{msg: m, err: err}
			if err != nil {
				return
			}
		}
	}()

	var op lifecycle.Op
	select {
	case <-ctx.Done():
		return nil

	case err := <-workDone:
		if err != nil {
			log.Warn("child work exited before a shutdown request arrived", zap.Error(err))
		}
		return nil

	case r := <-ops:
		if r.err != nil {
			log.Warn("lifecycle pipe closed before a shutdown request arrived", zap.Error(r.err))
			return nil
		}
		op = r.msg.Op
	}

	cancelWork()
	if work != nil {
		<-workDone
	}

	done := lifecycle.ShutdownDone
	if op == lifecycle.GracefulShutdown {
		done = lifecycle.GracefulShutdownDone
	}
	return writer.Send(lifecycle.Message{Op: done})
}

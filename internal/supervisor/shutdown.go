package supervisor

import (
	"context"
	"time"

	"github.com/gotunnel/gt/internal/lifecycle"
)

// ShutdownBudget is the time process_shutdown waits for a child to
// report shutdown-done before escalating to a hard kill.
const ShutdownBudget = 120 * time.Second

// ShutdownStrategy sends the lifecycle op that asks a child to shut
// down. There are exactly two concrete strategies, SendGraceful and
// SendHard.
type ShutdownStrategy func(ctx context.Context, w *lifecycle.Writer) error

// SendGraceful asks the child to drain and exit.
func SendGraceful(ctx context.Context, w *lifecycle.Writer) error {
	return w.Send(lifecycle.Message{Op: lifecycle.GracefulShutdown})
}

// SendHard asks the child to exit immediately.
func SendHard(ctx context.Context, w *lifecycle.Writer) error {
	return w.Send(lifecycle.Message{Op: lifecycle.Shutdown})
}

// Shutdown implements process_shutdown: send the strategy's lifecycle
// op to h over w, then wait up to ShutdownBudget for h.Done() to
// close. On timeout, or if the send itself errors, fire h.Kill(),
// which causes the child's supervising goroutine to SIGKILL/
// TerminateProcess the process and reap it.
func Shutdown(ctx context.Context, w *lifecycle.Writer, h *Handle, strategy ShutdownStrategy) error {
	ctx, cancel := context.WithTimeout(ctx, ShutdownBudget)
	defer cancel()

	if err := strategy(ctx, w); err != nil {
		h.Kill()
		return err
	}

	select {
	case <-h.Done():
		return nil
	case <-ctx.Done():
		h.Kill()
		return ctx.Err()
	}
}

// Package reload implements the twin-manager reload coordinator: on a
// Reload or Restart signal, it spawns a second instance of the
// manager, watches its readiness stream, and retires each old child
// only once its replacement is confirmed live.
package reload

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aryann/difflib"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gotunnel/gt/internal/descriptor"
	"github.com/gotunnel/gt/internal/framing"
	"github.com/gotunnel/gt/internal/lifecycle"
	"github.com/gotunnel/gt/internal/rendezvous"
	"github.com/gotunnel/gt/internal/supervisor"
)

// Budget is the outer timeout for the twin's ready loop; stragglers
// still held past it are retired in the drain step regardless.
const Budget = 120 * time.Second

// StrategyFor maps the triggering signal to the process_shutdown
// strategy used to retire each old child: Reload sends
// GracefulShutdown, Restart sends Shutdown (exit immediately). Either
// escalates to a hard kill only if the child does not reply in time.
func StrategyFor(sig rendezvous.Signal) supervisor.ShutdownStrategy {
	if sig == rendezvous.Restart {
		return supervisor.SendHard
	}
	return supervisor.SendGraceful
}

// Coordinate runs one reload cycle against sup, the current manager's
// supervisor. It spawns a twin via spawner, retires sup's handles as
// the twin reports each replacement ready, and returns once the twin
// reports ReadyDone or Budget elapses.
func Coordinate(ctx context.Context, sup *supervisor.Supervisor, spawner TwinSpawner, sig rendezvous.Signal, log *zap.Logger) error {
	// Tag every log line from this cycle with a short id so that two
	// reloads racing in the logs (e.g. a reload immediately followed
	// by a restart) can be told apart.
	log = log.With(zap.String("reload_id", uuid.NewString()))

	strategy := StrategyFor(sig)

	before := sortedKeys(sup.All())

	twin, err := spawner.SpawnTwin(ctx)
	if err != nil {
		return fmt.Errorf("reload: spawning twin: %w", err)
	}

	budgetCtx, cancel := context.WithTimeout(ctx, Budget)
	defer cancel()

	type recv struct {
		msg lifecycle.Message
		err error
	}
	msgs := make(chan recv, 1)
	go func() {
		r := lifecycle.NewHexReader(framing.NewHexReader(twin.Stdout()))
		for {
			m, err := r.Recv()
			msgs <- recv{msg: m, err: err}
			if err != nil {
				return
			}
		}
	}()

	var retiredOrder []descriptor.Descriptor
	readyDone := false

loop:
	for {
		select {
		case <-budgetCtx.Done():
			log.Warn("reload budget exceeded before twin reported ReadyDone")
			break loop
		case r := <-msgs:
			if r.err != nil {
				log.Warn("twin readiness stream ended before ReadyDone", zap.Error(r.err))
				break loop
			}
			switch r.msg.Op {
			case lifecycle.Ready:
				if r.msg.Descriptor == nil {
					log.Warn("twin sent Ready with no descriptor, ignoring")
					continue
				}
				d := *r.msg.Descriptor
				if h, ok := sup.Get(d); ok {
					sup.Remove(d)
					w := lifecycle.NewBinaryWriter(framing.NewBinaryWriter(h.Stdin))
					if err := supervisor.Shutdown(budgetCtx, w, h, strategy); err != nil {
						log.Warn("retiring old child after twin reported ready",
							zap.Stringer("descriptor", d), zap.Error(err))
					}
				}
				retiredOrder = append(retiredOrder, d)
			case lifecycle.ReadyDone:
				readyDone = true
				break loop
			default:
				log.Warn("unexpected op on twin readiness stream", zap.String("op", string(r.msg.Op)))
			}
		}
	}

	// Drain whatever the twin never got around to, win or lose.
	straggler := sortedKeys(sup.All())
	for _, d := range straggler {
		h, ok := sup.Get(d)
		if !ok {
			continue
		}
		sup.Remove(d)
		w := lifecycle.NewBinaryWriter(framing.NewBinaryWriter(h.Stdin))
		if err := supervisor.Shutdown(ctx, w, h, strategy); err != nil {
			log.Warn("draining straggler after reload", zap.Stringer("descriptor", d), zap.Error(err))
		}
	}

	logDescriptorDiff(log, before, retiredOrder, straggler)

	if !readyDone {
		return fmt.Errorf("reload: twin did not report ReadyDone within %s", Budget)
	}
	return nil
}

func sortedKeys(handles map[descriptor.Descriptor]*supervisor.Handle) []descriptor.Descriptor {
	out := make([]descriptor.Descriptor, 0, len(handles))
	for d := range handles {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// logDescriptorDiff logs, at debug level, a line-oriented diff between
// the descriptor set the old manager started with and the set it
// retired during this reload (plus any stragglers drained at the
// end) — useful when diagnosing a reload that dropped or duplicated a
// descriptor.
func logDescriptorDiff(log *zap.Logger, before []descriptor.Descriptor, retired, drained []descriptor.Descriptor) {
	beforeKeys := make([]string, len(before))
	for i, d := range before {
		beforeKeys[i] = d.Key()
	}
	afterKeys := make([]string, 0, len(retired)+len(drained))
	for _, d := range retired {
		afterKeys = append(afterKeys, d.Key())
	}
	for _, d := range drained {
		afterKeys = append(afterKeys, d.Key())
	}

	for _, rec := range difflib.Diff(beforeKeys, afterKeys) {
		if rec.Delta == difflib.Common {
			continue
		}
		log.Debug("reload descriptor diff", zap.String("line", rec.String()))
	}
}

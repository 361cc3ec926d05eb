// Package supervisor spawns one child process per descriptor, runs
// the lifecycle protocol with it over its stdin/stdout, restarts it
// with backoff on crash, and tears it down on request.
package supervisor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gotunnel/gt/internal/descriptor"
	"github.com/gotunnel/gt/internal/framing"
	"github.com/gotunnel/gt/internal/lifecycle"
)

const (
	// fastCrashThreshold: an uptime shorter than this is a "fast
	// crash" and triggers the longer cooldown before respawning.
	fastCrashThreshold = 60 * time.Second
	// fastCrashCooldown is the wait before respawning after a fast
	// crash.
	fastCrashCooldown = 60 * time.Second
	// normalRespawnDelay is the wait before respawning after an uptime
	// at or beyond fastCrashThreshold.
	normalRespawnDelay = 3 * time.Second
	// spawnErrorCooldown is the (escalated) wait before retrying a
	// spawn that itself failed.
	spawnErrorCooldown = 3 * time.Minute
)

// ReadyAnnouncer is implemented by the twin-manager readiness stream:
// every time a child reports Ready, the supervisor tells the
// announcer, which forwards Ready(descriptor) to the real parent and,
// once every expected descriptor has reported, additionally sends
// ReadyDone exactly once.
type ReadyAnnouncer interface {
	Announce(d descriptor.Descriptor) error
	AllReady() error
}

// Supervisor owns the handle map for one manager process.
type Supervisor struct {
	spawner  Spawner
	log      *zap.Logger
	announce ReadyAnnouncer // nil unless running as a twin manager

	mu      sync.Mutex
	handles map[descriptor.Descriptor]*Handle

	group errgroup.Group
}

// New builds a Supervisor. announce may be nil for a non-twin manager.
func New(spawner Spawner, log *zap.Logger, announce ReadyAnnouncer) *Supervisor {
	return &Supervisor{
		spawner:  spawner,
		log:      log,
		announce: announce,
		handles:  make(map[descriptor.Descriptor]*Handle),
	}
}

// StartAll launches one supervising goroutine per descriptor and
// returns without waiting: each child's handle is installed in the
// handle map by its goroutine once the spawn succeeds, and no child
// is waited on to become Ready.
func (s *Supervisor) StartAll(ctx context.Context, descs []descriptor.Descriptor) {
	for _, d := range descs {
		s.Start(ctx, d)
	}
}

// Start launches the supervising goroutine for one descriptor. If a
// handle already exists for d (the reload path), it is retired first
// via a graceful Shutdown before the replacement is published.
func (s *Supervisor) Start(ctx context.Context, d descriptor.Descriptor) {
	s.mu.Lock()
	old, existed := s.handles[d]
	s.mu.Unlock()
	if existed {
		w := s.writerFor(old)
		_ = Shutdown(ctx, w, old, SendGraceful)
	}

	s.group.Go(func() error {
		s.runChild(ctx, d)
		return nil
	})
}

// Get returns the current handle for d, if any.
func (s *Supervisor) Get(d descriptor.Descriptor) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[d]
	return h, ok
}

// Remove deletes d's handle from the map, if present. Used by callers
// (e.g. the reload coordinator) that retire a handle out-of-band.
func (s *Supervisor) Remove(d descriptor.Descriptor) {
	s.mu.Lock()
	delete(s.handles, d)
	s.mu.Unlock()
}

// All returns a snapshot of the current descriptor->handle map.
func (s *Supervisor) All() map[descriptor.Descriptor]*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[descriptor.Descriptor]*Handle, len(s.handles))
	for k, v := range s.handles {
		out[k] = v
	}
	return out
}

// ShutdownAll retires every currently-known child using strategy, and
// waits for every supervising goroutine to return.
func (s *Supervisor) ShutdownAll(ctx context.Context, strategy ShutdownStrategy) {
	for d, h := range s.All() {
		w := s.writerFor(h)
		if err := Shutdown(ctx, w, h, strategy); err != nil {
			s.log.Warn("shutdown did not complete gracefully", zap.Stringer("descriptor", d), zap.Error(err))
		}
	}
	_ = s.group.Wait()
}

func (s *Supervisor) writerFor(h *Handle) *lifecycle.Writer {
	return lifecycle.NewBinaryWriter(framing.NewBinaryWriter(h.Stdin))
}

// childEvent is a decoded lifecycle message or a fatal read error from
// a child's stdout.
type childEvent struct {
	msg lifecycle.Message
	err error
}

// runChild is the per-descriptor state machine: Starting -> Ready ->
// Running -> {Retiring, Crashed}, looping back to Starting on an
// unintentional crash subject to backoff.
func (s *Supervisor) runChild(ctx context.Context, d descriptor.Descriptor) {
	log := s.log.With(zap.Stringer("descriptor", d))

	for {
		child, err := s.spawner.Spawn(ctx, d)
		if err != nil {
			log.Error("spawn failed, retrying after cooldown", zap.Error(err), zap.Duration("cooldown", spawnErrorCooldown))
			if !sleepOrDone(ctx, spawnErrorCooldown) {
				return
			}
			continue
		}

		handle := newHandle(child.Stdin())
		s.mu.Lock()
		s.handles[d] = handle
		s.mu.Unlock()

		exited, reconnect, uptime := s.driveChild(ctx, log, d, child, handle)

		// The child has been reaped; release any Shutdown still waiting
		// on this handle if no *Done op already did.
		select {
		case <-handle.done:
		default:
			close(handle.done)
		}

		s.mu.Lock()
		if s.handles[d] == handle {
			delete(s.handles, d)
		}
		s.mu.Unlock()

		if exited {
			// Retired intentionally (kill fired, or a shutdown-done
			// was observed): never restart.
			return
		}

		if reconnect {
			log.Info("child requested reconnect, respawning immediately")
			continue
		}

		if uptime < fastCrashThreshold {
			log.Warn("child exited quickly, applying fast-crash cooldown",
				zap.Duration("uptime", uptime), zap.Duration("cooldown", fastCrashCooldown))
			if !sleepOrDone(ctx, fastCrashCooldown) {
				return
			}
		} else {
			log.Info("child exited, respawning", zap.Duration("uptime", uptime), zap.Duration("delay", normalRespawnDelay))
			if !sleepOrDone(ctx, normalRespawnDelay) {
				return
			}
		}
	}
}

// driveChild runs the select loop for one live child process. It
// returns exited=true if the child was intentionally retired (no
// restart should follow), reconnect=true if the child asked to be
// respawned immediately, and uptime measured from spawn to exit.
func (s *Supervisor) driveChild(ctx context.Context, log *zap.Logger, d descriptor.Descriptor, child ChildProcess, handle *Handle) (exited, reconnect bool, uptime time.Duration) {
	spawnedAt := time.Now()

	events := make(chan childEvent, 1)
	go func() {
		r := lifecycle.NewBinaryReader(framing.NewBinaryReader(child.Stdout()))
		for {
			msg, err := r.Recv()
			if err != nil {
				events <- childEvent{err: err}
				return
			}
			events <- childEvent{msg: msg}
		}
	}()

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- child.Wait()
	}()

	reconnectSeen := false
	readyAnnounced := false

	for {
		select {
		case ev := <-events:
			if ev.err != nil {
				log.Warn("lifecycle pipe closed", zap.Error(ev.err))
				// Treat a broken pipe like the child exiting on its
				// own; fall through to wait for the process result.
				continue
			}
			switch ev.msg.Op {
			case lifecycle.Ready:
				if readyAnnounced {
					log.Warn("duplicate Ready observed, ignoring")
					continue
				}
				readyAnnounced = true
				if s.announce != nil {
					if err := s.announce.Announce(d); err != nil {
						log.Error("failed to announce readiness", zap.Error(err))
					}
				}
			case lifecycle.Reconnect:
				if reconnectSeen {
					log.Error("second Reconnect observed for same child, treating as fatal")
					handle.Kill()
					<-waitCh
					return false, false, time.Since(spawnedAt)
				}
				reconnectSeen = true
				handle.Kill()
				<-waitCh
				return false, true, time.Since(spawnedAt)
			case lifecycle.GracefulShutdownDone, lifecycle.ShutdownDone:
				close(handle.done)
				<-waitCh
				return true, false, time.Since(spawnedAt)
			default:
				log.Warn("unexpected lifecycle op from child", zap.String("op", string(ev.msg.Op)))
			}

		case <-handle.kill:
			_ = child.Kill()
			<-waitCh
			return true, false, time.Since(spawnedAt)

		case err := <-waitCh:
			if err != nil {
				log.Warn("child exited with error", zap.Error(err))
			} else {
				log.Info("child exited")
			}
			return false, false, time.Since(spawnedAt)
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

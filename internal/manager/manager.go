// Package manager implements run_manager: the top-level loop that
// discovers child descriptors, supervises them, watches the signal
// rendezvous directory, and coordinates reload/restart by spawning a
// twin manager. It is the orchestration glue around
// internal/supervisor, internal/reload, internal/rendezvous and
// internal/config.
package manager

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/gotunnel/gt/internal/config"
	"github.com/gotunnel/gt/internal/descriptor"
	"github.com/gotunnel/gt/internal/reload"
	"github.com/gotunnel/gt/internal/rendezvous"
	"github.com/gotunnel/gt/internal/supervisor"
)

// Options configures one manager invocation.
type Options struct {
	// ConfigPath is the -c/--config value: a file, a directory, or ""
	// for the current working directory. Ignored if Direct is set.
	ConfigPath string

	// Direct, if non-nil, names a single descriptor the manager
	// should run directly, skipping discovery entirely.
	Direct *descriptor.Descriptor

	// TwinAnnounce marks this invocation as a twin manager spawned by
	// reload.Coordinate: instead of only logging, it announces every
	// child's readiness as a hex-framed envelope on its own stdout
	// and, once all descriptors are ready, emits ReadyDone.
	TwinAnnounce bool
}

// Run executes run_manager: discover descriptors, spawn and supervise
// one child per descriptor, then block watching the rendezvous
// directory for reload/restart/stop until ctx is cancelled or a Stop
// signal (or a completed reload handoff) ends the loop.
func Run(ctx context.Context, log *zap.Logger, opts Options) error {
	descs, err := discoverDescriptors(opts)
	if err != nil {
		return err
	}

	dir, err := rendezvous.WritePID()
	if err != nil {
		return fmt.Errorf("manager: writing pid file: %w", err)
	}

	var announcer *reload.Announcer
	if opts.TwinAnnounce {
		announcer = reload.NewAnnouncer(os.Stdout, len(descs))
	}

	sup := supervisor.New(supervisor.ExecSpawner{}, log, announcer)
	sup.StartAll(ctx, descs)

	if announcer != nil && len(descs) == 0 {
		if err := announcer.AllReady(); err != nil {
			return fmt.Errorf("manager: announcing ready-done with no descriptors: %w", err)
		}
	}

	watcher, err := rendezvous.NewWatcher(dir, log)
	if err != nil {
		return fmt.Errorf("manager: starting signal watcher: %w", err)
	}
	defer watcher.Close()

	twinSpawner := reload.ExecTwinSpawner{Args: os.Args[1:]}

	for {
		select {
		case <-ctx.Done():
			sup.ShutdownAll(context.Background(), supervisor.SendGraceful)
			return ctx.Err()

		case sig, ok := <-watcher.Events():
			if !ok {
				return fmt.Errorf("manager: signal watcher closed unexpectedly")
			}
			switch sig {
			case rendezvous.Stop:
				log.Info("stop signal received, shutting down")
				sup.ShutdownAll(context.Background(), supervisor.SendGraceful)
				return nil

			case rendezvous.Reload, rendezvous.Restart:
				log.Info("coordinating reload", zap.Stringer("signal", sig))
				if err := reload.Coordinate(ctx, sup, twinSpawner, sig, log); err != nil {
					log.Error("reload coordination failed, continuing with current children", zap.Error(err))
					continue
				}
				log.Info("reload complete, handing off to twin manager")
				return nil

			default:
				log.Warn("unrecognized rendezvous signal, ignoring", zap.Stringer("signal", sig))
			}
		}
	}
}

// discoverDescriptors prefers a direct descriptor from the CLI over
// filesystem discovery.
func discoverDescriptors(opts Options) ([]descriptor.Descriptor, error) {
	if opts.Direct != nil {
		return []descriptor.Descriptor{*opts.Direct}, nil
	}
	return config.Discover(nil, opts.ConfigPath)
}

package rendezvous

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounceWindow is the minimum gap between two deliveries of the same
// signal. A second trigger-file creation within this window of the
// previous one is dropped.
const debounceWindow = 3 * time.Second

// pollInterval is used by the fallback watcher when the native one
// cannot be constructed.
const pollInterval = 2 * time.Second

// Watcher delivers Signal values as the corresponding trigger files
// are created in the rendezvous directory.
type Watcher interface {
	// Events returns the channel signals are delivered on.
	Events() <-chan Signal
	// Close stops the watcher and releases its resources.
	Close() error
}

// NewWatcher builds a Watcher over dir, preferring a native OS watcher
// (inotify/kqueue/ReadDirectoryChangesW via fsnotify) and falling back
// to a 2-second polling watcher if construction fails with ENOSYS
// ("function not implemented"), which some container filesystems
// report for native watch APIs.
func NewWatcher(dir string, log *zap.Logger) (Watcher, error) {
	fw, err := newFSWatcher(dir, log)
	if err == nil {
		return fw, nil
	}
	if errors.Is(err, syscall.ENOSYS) {
		log.Warn("native filesystem watcher unavailable, falling back to polling", zap.Error(err))
		return newPollWatcher(dir, log), nil
	}
	return nil, err
}

// fsWatcher wraps fsnotify and applies the debounce window.
type fsWatcher struct {
	inner  *fsnotify.Watcher
	events chan Signal
	done   chan struct{}
}

func newFSWatcher(dir string, log *zap.Logger) (*fsWatcher, error) {
	inner, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := inner.Add(dir); err != nil {
		_ = inner.Close()
		return nil, err
	}

	fw := &fsWatcher{
		inner:  inner,
		events: make(chan Signal, 4),
		done:   make(chan struct{}),
	}

	go fw.run(log)
	return fw, nil
}

func (fw *fsWatcher) run(log *zap.Logger) {
	last := make(map[Signal]time.Time)
	for {
		select {
		case ev, ok := <-fw.inner.Events:
			if !ok {
				close(fw.events)
				return
			}
			// Only file creation counts as a signal. A trigger file
			// that already exists and is merely rewritten does not
			// re-fire through the native watcher; senders create the
			// file anew (leftovers are tolerated, not reused).
			if !ev.Has(fsnotify.Create) {
				continue
			}
			sig, ok := signalForPath(ev.Name)
			if !ok {
				continue
			}
			deliver(fw.events, sig, last)
		case err, ok := <-fw.inner.Errors:
			if !ok {
				continue
			}
			log.Error("filesystem watcher error", zap.Error(err))
		case <-fw.done:
			close(fw.events)
			return
		}
	}
}

func (fw *fsWatcher) Events() <-chan Signal { return fw.events }

func (fw *fsWatcher) Close() error {
	close(fw.done)
	return fw.inner.Close()
}

func signalForPath(p string) (Signal, bool) {
	switch filepath.Base(p) {
	case "reload":
		return Reload, true
	case "restart":
		return Restart, true
	case "stop":
		return Stop, true
	default:
		return 0, false
	}
}

func deliver(ch chan<- Signal, sig Signal, last map[Signal]time.Time) {
	now := time.Now()
	if prev, ok := last[sig]; ok && now.Sub(prev) < debounceWindow {
		return
	}
	last[sig] = now
	select {
	case ch <- sig:
	default:
		// Consumer is slow; drop rather than block the watcher loop.
	}
}

// pollWatcher stats the directory every pollInterval and diffs the set
// of trigger-file names present, without comparing contents.
type pollWatcher struct {
	events chan Signal
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newPollWatcher(dir string, log *zap.Logger) *pollWatcher {
	ctx, cancel := context.WithCancel(context.Background())
	pw := &pollWatcher{
		events: make(chan Signal, 4),
		cancel: cancel,
	}
	pw.wg.Add(1)
	go pw.run(ctx, dir, log)
	return pw
}

func (pw *pollWatcher) run(ctx context.Context, dir string, _ *zap.Logger) {
	defer pw.wg.Done()
	defer close(pw.events)

	last := make(map[Signal]time.Time)
	present := make(map[Signal]bool)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sig := range []Signal{Reload, Restart, Stop} {
				_, err := os.Stat(signalFile(dir, sig))
				exists := err == nil
				if exists && !present[sig] {
					deliver(pw.events, sig, last)
				}
				present[sig] = exists
			}
		}
	}
}

func (pw *pollWatcher) Events() <-chan Signal { return pw.events }

func (pw *pollWatcher) Close() error {
	pw.cancel()
	pw.wg.Wait()
	return nil
}

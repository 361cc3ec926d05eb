package reload

import (
	"io"
	"sync"

	"github.com/gotunnel/gt/internal/descriptor"
	"github.com/gotunnel/gt/internal/framing"
	"github.com/gotunnel/gt/internal/lifecycle"
)

// Announcer is installed as a twin manager's supervisor.ReadyAnnouncer.
// Each time one of the twin's own children reports Ready, it emits
// Ready(descriptor) on the twin's own stdout; once every expected
// descriptor has reported, it additionally emits ReadyDone exactly
// once.
type Announcer struct {
	w *lifecycle.Writer

	mu        sync.Mutex
	remaining int
	allReady  bool
}

// NewAnnouncer builds an Announcer writing hex-framed envelopes to
// stdout, expecting `expected` descriptors to report Ready.
func NewAnnouncer(stdout io.Writer, expected int) *Announcer {
	return &Announcer{
		w:         lifecycle.NewHexWriter(framing.NewHexWriter(stdout)),
		remaining: expected,
	}
}

// Announce implements supervisor.ReadyAnnouncer.
func (a *Announcer) Announce(d descriptor.Descriptor) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	dcopy := d
	if err := a.w.Send(lifecycle.Message{Op: lifecycle.Ready, Descriptor: &dcopy}); err != nil {
		return err
	}

	a.remaining--
	if a.remaining <= 0 && !a.allReady {
		a.allReady = true
		return a.w.Send(lifecycle.Message{Op: lifecycle.ReadyDone})
	}
	return nil
}

// AllReady implements supervisor.ReadyAnnouncer, covering the case
// where the expected count is zero at startup (no descriptors found).
func (a *Announcer) AllReady() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.allReady {
		return nil
	}
	a.allReady = true
	return a.w.Send(lifecycle.Message{Op: lifecycle.ReadyDone})
}

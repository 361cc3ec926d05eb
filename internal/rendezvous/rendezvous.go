package rendezvous

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Signal names the three trigger files the watcher recognizes.
type Signal int

const (
	// Reload asks the manager to re-read configs without dropping any
	// descriptor's connectivity for longer than necessary.
	Reload Signal = iota
	// Restart asks the manager to hard-cycle every child.
	Restart
	// Stop asks the manager to shut down cleanly.
	Stop
)

func (s Signal) String() string {
	switch s {
	case Reload:
		return "reload"
	case Restart:
		return "restart"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// ParseSignal maps a CLI --signal value to a Signal.
func ParseSignal(s string) (Signal, error) {
	switch strings.ToLower(s) {
	case "reload":
		return Reload, nil
	case "restart":
		return Restart, nil
	case "stop":
		return Stop, nil
	default:
		return 0, fmt.Errorf("rendezvous: unknown signal %q", s)
	}
}

// dirName is the directory created under the OS temp root.
const dirName = "gt-runtime"

// Dir returns the rendezvous directory path, creating it (and its
// parents) if necessary.
func Dir() (string, error) {
	dir := filepath.Join(os.TempDir(), dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("rendezvous: creating %q: %w", dir, err)
	}
	return dir, nil
}

func pidFile(dir string) string { return filepath.Join(dir, "pid") }

func signalFile(dir string, s Signal) string { return filepath.Join(dir, s.String()) }

// WritePID creates the rendezvous directory (if needed) and writes
// the current process's PID to <dir>/pid.
func WritePID() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	content := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(pidFile(dir), []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("rendezvous: writing pid file: %w", err)
	}
	return dir, nil
}

// Send implements the send_signal operation used by an external CLI
// invocation: create the signal's trigger file and return. No
// locking; delivery is best-effort and idempotent within the
// watcher's debounce window.
func Send(s Signal) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	// Remove any leftover trigger file first: the watcher reacts to
	// file creation only, and truncating an existing file would not
	// re-fire it.
	_ = os.Remove(signalFile(dir, s))
	f, err := os.Create(signalFile(dir, s))
	if err != nil {
		return fmt.Errorf("rendezvous: touching %s file: %w", s, err)
	}
	return f.Close()
}

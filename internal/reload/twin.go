package reload

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/gotunnel/gt/internal/procattr"
)

// TwinAnnounceFlag is appended by the coordinator when it re-execs a
// twin manager. A process started with this flag present installs an
// Announcer over its own stdout instead of behaving like a normal
// foreground manager — otherwise a plain interactive run would corrupt
// its own terminal with hex-framed readiness envelopes.
const TwinAnnounceFlag = "--twin-announce"

// TwinProcess is a running twin manager, abstracted so tests can
// substitute an in-memory fake.
type TwinProcess interface {
	Stdout() io.ReadCloser
	Wait() error
	Kill() error
}

// TwinSpawner starts the twin manager subprocess.
type TwinSpawner interface {
	SpawnTwin(ctx context.Context) (TwinProcess, error)
}

// ExecTwinSpawner re-execs the current program with the same argv and
// environment (plus TwinAnnounceFlag), stdin and stdout piped, detached
// into its own process group so a terminal Ctrl-C does not reach it.
type ExecTwinSpawner struct {
	// Executable defaults to os.Args[0].
	Executable string
	// Args is the argv to re-exec with, normally os.Args[1:].
	Args []string
	// Env defaults to os.Environ().
	Env []string
}

// SpawnTwin implements TwinSpawner.
func (s ExecTwinSpawner) SpawnTwin(ctx context.Context) (TwinProcess, error) {
	exePath := s.Executable
	if exePath == "" {
		exePath = os.Args[0]
	}
	env := s.Env
	if env == nil {
		env = os.Environ()
	}

	args := make([]string, 0, len(s.Args)+1)
	args = append(args, s.Args...)
	args = append(args, TwinAnnounceFlag)

	cmd := exec.CommandContext(ctx, exePath, args...)
	cmd.Env = env
	cmd.SysProcAttr = procattr.Isolated()
	cmd.Stderr = os.Stderr
	cmd.Cancel = nil // the coordinator, not context cancellation, decides when to kill the twin
	// Nothing is written to the twin's stdin; the pipe is closed
	// automatically once Wait sees the twin exit.
	if _, err := cmd.StdinPipe(); err != nil {
		return nil, fmt.Errorf("reload: creating twin stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("reload: creating twin stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("reload: starting twin manager: %w", err)
	}
	return &execTwin{cmd: cmd, stdout: stdout}, nil
}

type execTwin struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func (t *execTwin) Stdout() io.ReadCloser { return t.stdout }
func (t *execTwin) Wait() error           { return t.cmd.Wait() }
func (t *execTwin) Kill() error {
	if t.cmd.Process == nil {
		return nil
	}
	return t.cmd.Process.Kill()
}

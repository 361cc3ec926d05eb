// Package procattr builds the OS-specific process attributes used to
// isolate a spawned child into its own process group, so that console
// signals delivered to the manager (e.g. Ctrl-C) do not cascade to
// children the manager wants to shut down on its own schedule.
package procattr

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// Isolated returns SysProcAttr fields that place a new child in its
// own process group on Windows via the CREATE_NEW_PROCESS_GROUP flag,
// so console signals do not cascade.
func Isolated() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

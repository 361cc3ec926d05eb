package gtcmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var defaultFactory = NewRootCommandFactory(func() *cobra.Command {
	return &cobra.Command{
		Use: "gt",
		Long: `gt is a self-supervising process group that runs long-lived
network workers (a "server" worker and a "client" worker, each
configured by a YAML file) under a parent manager.

Running 'gt' with no subcommand discovers configs under --config (a
file, a directory, or the current directory) and supervises one child
per config, restarting crashed children with backoff and coordinating
hot-reload across the whole group.

	$ gt --config ./configs

Use 'gt server'/'gt client' to run a single config directly, bypassing
discovery:

	$ gt server --config server.yaml

Once a manager is running, poke it via the filesystem signal
rendezvous:

	$ gt --signal reload
	$ gt --signal restart
	$ gt --signal stop
`,
		Example: `  $ gt --config ./configs
  $ gt server --config server.yaml
  $ gt --signal reload`,

		SilenceUsage: true,
	}
})

func init() {
	defaultFactory.Use(func(root *cobra.Command) {
		root.SetVersionTemplate("{{.Version}}\n")
	})
}

// Flags wraps a pflag.FlagSet so typed flag values can be retrieved
// without re-checking the error return at every call site.
type Flags struct {
	*pflag.FlagSet
}

// String returns the flag's string value. Panics if name is not
// registered.
func (f Flags) String(name string) string {
	return f.FlagSet.Lookup(name).Value.String()
}

// Uint8 returns the flag's value parsed as a uint8, or 0 if it isn't
// one.
func (f Flags) Uint8(name string) uint8 {
	val, _ := strconv.ParseUint(f.String(name), 0, 8)
	return uint8(val)
}

// Bool returns the flag's value parsed as a bool, or false if it
// isn't one.
func (f Flags) Bool(name string) bool {
	val, _ := strconv.ParseBool(f.String(name))
	return val
}

// Duration returns the flag's value parsed as a time.Duration, or 0.
func (f Flags) Duration(name string) time.Duration {
	d, _ := time.ParseDuration(f.String(name))
	return d
}

// exitError carries a process exit code from a command's RunE back
// up to Main().
type exitError struct {
	ExitCode int
	Err      error
}

func (e *exitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exiting with status %d", e.ExitCode)
	}
	return e.Err.Error()
}

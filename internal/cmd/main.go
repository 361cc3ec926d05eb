// Package gtcmd is the CLI front-end: a cobra command tree exposing
// the manager's discovery/supervision entry point, the "server"/
// "client" direct-args shortcuts, the hidden "sub-p2p"/"sub-server"/
// "sub-client" child roles, and the "-s/--signal" rendezvous client.
package gtcmd

import (
	"errors"
	"fmt"
	"os"
)

// Main is the entry point of the gt binary. Call this from func
// main() in cmd/gt.
func Main() {
	if len(os.Args) == 0 {
		fmt.Fprintln(os.Stderr, "[FATAL] no arguments provided by OS; args[0] must be command")
		os.Exit(1)
	}

	if err := defaultFactory.Build().Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode)
		}
		os.Exit(1)
	}
}

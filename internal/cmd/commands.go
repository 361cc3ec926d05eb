package gtcmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gotunnel/gt/internal/childrole"
	"github.com/gotunnel/gt/internal/descriptor"
	"github.com/gotunnel/gt/internal/framing"
	"github.com/gotunnel/gt/internal/gtlog"
	"github.com/gotunnel/gt/internal/manager"
	"github.com/gotunnel/gt/internal/peer"
	"github.com/gotunnel/gt/internal/reload"
	"github.com/gotunnel/gt/internal/rendezvous"
)

func init() {
	defaultFactory.Use(func(root *cobra.Command) {
		root.PersistentFlags().StringP("config", "c", "", "Path to a config file or directory of config files")
		root.PersistentFlags().Uint8("depth", 0, "Reserved; not used by the core supervisor/router")
		root.Flags().StringP("signal", "s", "", "Send reload|restart|stop to a running manager instead of starting one")

		root.PersistentFlags().Bool("twin-announce", false, "")
		_ = root.PersistentFlags().MarkHidden("twin-announce")

		root.RunE = wrap(runRoot)

		root.AddCommand(
			newWorkerCommand("server", descriptor.RoleServer),
			newWorkerCommand("client", descriptor.RoleClient),
			newSubP2PCommand(),
			newSubWorkerCommand("sub-server"),
			newSubWorkerCommand("sub-client"),
		)
	})
}

// wrap adapts a function taking Flags into cobra's RunE signature,
// mapping its returned status to a process exit code.
func wrap(f func(Flags) (int, error)) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		status, err := f(Flags{cmd.Flags()})
		if err != nil {
			gtlog.Named("cmd").Error("command failed", zap.String("use", cmd.Name()), zap.Error(err))
		}
		if status > 1 {
			cmd.SilenceErrors = true
			return &exitError{ExitCode: status, Err: err}
		}
		return err
	}
}

// runRoot is the bare "gt" invocation: either send a signal to a
// running manager, or start one over discovered configs.
func runRoot(f Flags) (int, error) {
	if sig := f.String("signal"); sig != "" {
		s, err := rendezvous.ParseSignal(sig)
		if err != nil {
			return 1, err
		}
		if err := rendezvous.Send(s); err != nil {
			return 1, fmt.Errorf("sending %s signal: %w", s, err)
		}
		return 0, nil
	}

	log := gtlog.Named("manager")
	opts := manager.Options{
		ConfigPath:   f.String("config"),
		TwinAnnounce: isTwinAnnounce(os.Args),
	}
	if err := manager.Run(context.Background(), log, opts); err != nil {
		return 1, err
	}
	return 0, nil
}

// isTwinAnnounce reports whether this invocation was re-exec'd by
// reload.Coordinate as a twin manager.
func isTwinAnnounce(args []string) bool {
	for _, a := range args {
		if a == reload.TwinAnnounceFlag {
			return true
		}
	}
	return false
}

// newWorkerCommand builds the "server"/"client" subcommands: run a
// manager directly over one direct-args descriptor of the given role,
// bypassing config discovery and classification entirely. The config
// flag is optional; without it the worker runs on its built-in
// defaults.
func newWorkerCommand(use string, role descriptor.Role) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " [-c CFG]",
		Short: fmt.Sprintf("Run a single %s worker directly, bypassing discovery", role),
	}
	cmd.Flags().StringP("config", "c", "", "Optional path to this worker's config file")
	cmd.RunE = wrap(func(f Flags) (int, error) {
		log := gtlog.Named("manager")
		d := descriptor.ServerArgs(f.String("config"))
		if role == descriptor.RoleClient {
			d = descriptor.ClientArgs(f.String("config"))
		}
		opts := manager.Options{Direct: &d}
		if err := manager.Run(context.Background(), log, opts); err != nil {
			return 1, err
		}
		return 0, nil
	})
	return cmd
}

// newSubWorkerCommand builds the hidden "sub-server"/"sub-client"
// subcommands: the child-side half of the lifecycle protocol, hosting
// an opaque tunnel worker.
func newSubWorkerCommand(use string) *cobra.Command {
	cmd := &cobra.Command{
		Use:    use + " [-c CFG]",
		Hidden: true,
	}
	cmd.Flags().StringP("config", "c", "", "Path to this worker's config file")
	cmd.RunE = wrap(func(f Flags) (int, error) {
		log := gtlog.Named(use)
		ctx := context.Background()
		if err := childrole.Run(ctx, log, os.Stdin, os.Stdout, nil); err != nil {
			return 1, err
		}
		return 0, nil
	})
	return cmd
}

// newSubP2PCommand builds the hidden "sub-p2p" subcommand: the
// peer-connection controller, driving its signalling protocol over
// its own stdio.
func newSubP2PCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "sub-p2p",
		Hidden: true,
	}
	cmd.RunE = wrap(func(f Flags) (int, error) {
		log := gtlog.Named("sub-p2p")
		reader := peer.NewReader(framing.NewBinaryReader(os.Stdin))
		writer := peer.NewWriter(framing.NewBinaryWriter(os.Stdout))
		if err := peer.Run(context.Background(), log, reader, writer); err != nil {
			return 1, err
		}
		return 0, nil
	})
	return cmd
}

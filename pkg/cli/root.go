package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/sonic-net/kdumpctl/pkg/configdb"
	"github.com/sonic-net/kdumpctl/pkg/kdump"
	"github.com/sonic-net/kdumpctl/pkg/logging"
)

// rebootNotice is printed after every successful mutation that only takes
// full effect on the next boot.
const rebootNotice = "kdump updated, changes will take effect after reboot"

// New builds the kdumpctl command tree.
func New() *cli.Command {
	root := &cli.Command{
		Name:  "kdumpctl",
		Usage: "Manage kernel crash dump configuration",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
			&cli.BoolFlag{Name: "log-json", Usage: "emit logs as JSON"},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			logging.Setup(logging.Options{
				Debug: cmd.Bool("debug"),
				JSON:  cmd.Bool("log-json"),
			})
			return ctx, nil
		},
		Commands: []*cli.Command{
			enableCmd(),
			configNextCmd(),
			disableCmd(),
			memoryCmd(),
			numDumpsCmd(),
			remoteCmd(),
			sshStringCmd(),
			sshPathCmd(),
			showCmd(),
		},
	}
	root.CommandNotFound = func(_ context.Context, cmd *cli.Command, name string) {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", name)
		if s := suggestCommand(cmd.Commands, name); s != "" {
			fmt.Fprintf(os.Stderr, "did you mean %q?\n", s)
		}
		os.Exit(1)
	}
	return root
}

// Run executes kdumpctl with the given arguments.
func Run(ctx context.Context, args []string) error {
	return New().Run(ctx, args)
}

// requireRoot gates every mutating operation.
func requireRoot() error {
	if os.Geteuid() != 0 {
		return fmt.Errorf("this operation requires root privileges")
	}
	return nil
}

// newReconciler wires the driver against the real host. Overridden in tests.
var newReconciler = func(log *slog.Logger) (*kdump.Reconciler, func()) {
	db := configdb.New(configdb.DefaultAddr, log)
	r := kdump.New(db, log)
	return r, func() { db.Close() }
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/urfave/cli/v3"
)

func memoryCmd() *cli.Command {
	return &cli.Command{
		Name:      "memory",
		Usage:     "Show or set the crashkernel memory spec",
		ArgsUsage: "[SPEC]",
		Description: `Without an argument, prints the crashkernel value configured on the
current image's boot command line. With an argument such as 256M or a tiered
spec like 0M-2G:256M,2G-:512M, rewrites that value; the change takes effect
after a reboot.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			r, closeFn := newReconciler(slog.Default())
			defer closeFn()

			if cmd.Args().Len() == 0 {
				st, err := r.Status(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.Writer, st.ConfiguredCrashkernel)
				return nil
			}

			if err := requireRoot(); err != nil {
				return err
			}
			changed, err := r.SetMemory(ctx, cmd.Args().First())
			if err != nil {
				return err
			}
			if changed {
				fmt.Fprintln(cmd.Writer, rebootNotice)
			}
			return nil
		},
	}
}

func numDumpsCmd() *cli.Command {
	return &cli.Command{
		Name:      "num-dumps",
		Usage:     "Show or set the maximum number of retained dumps",
		ArgsUsage: "[N]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			r, closeFn := newReconciler(slog.Default())
			defer closeFn()

			if cmd.Args().Len() == 0 {
				n, err := r.Tool.ReadNumDumps()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.Writer, n)
				return nil
			}

			if err := requireRoot(); err != nil {
				return err
			}
			n, err := strconv.Atoi(cmd.Args().First())
			if err != nil || n < 0 {
				return fmt.Errorf("num-dumps: %q is not a non-negative integer", cmd.Args().First())
			}
			return r.Tool.WriteNumDumps(n)
		},
	}
}

func remoteCmd() *cli.Command {
	return &cli.Command{
		Name:      "remote",
		Usage:     "Show or toggle dumping to a remote host over SSH",
		ArgsUsage: "[on|off]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			r, closeFn := newReconciler(slog.Default())
			defer closeFn()

			if cmd.Args().Len() == 0 {
				_, commented, err := r.Tool.ReadSSHString()
				if err != nil {
					return err
				}
				if commented {
					fmt.Fprintln(cmd.Writer, "off")
				} else {
					fmt.Fprintln(cmd.Writer, "on")
				}
				return nil
			}

			if err := requireRoot(); err != nil {
				return err
			}
			switch cmd.Args().First() {
			case "on":
				return r.Tool.ToggleRemote(true)
			case "off":
				return r.Tool.ToggleRemote(false)
			default:
				return fmt.Errorf("remote: expected on or off, got %q", cmd.Args().First())
			}
		},
	}
}

func sshStringCmd() *cli.Command {
	return &cli.Command{
		Name:      "ssh-string",
		Usage:     "Show or set the remote dump endpoint (user@host)",
		ArgsUsage: "[USER@HOST]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			r, closeFn := newReconciler(slog.Default())
			defer closeFn()

			if cmd.Args().Len() == 0 {
				v, _, err := r.Tool.ReadSSHString()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.Writer, v)
				return nil
			}

			if err := requireRoot(); err != nil {
				return err
			}
			return r.Tool.WriteSSHString(cmd.Args().First())
		},
	}
}

func sshPathCmd() *cli.Command {
	return &cli.Command{
		Name:      "ssh-path",
		Usage:     "Show or set the SSH private key path for remote dumps",
		ArgsUsage: "[PATH]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			r, closeFn := newReconciler(slog.Default())
			defer closeFn()

			if cmd.Args().Len() == 0 {
				v, _, err := r.Tool.ReadSSHPath()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.Writer, v)
				return nil
			}

			if err := requireRoot(); err != nil {
				return err
			}
			return r.Tool.WriteSSHPath(cmd.Args().First())
		},
	}
}

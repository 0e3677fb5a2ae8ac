package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/sonic-net/kdumpctl/pkg/kdump"
)

func enableCmd() *cli.Command {
	return &cli.Command{
		Name:  "enable",
		Usage: "Enable crash dump capture for the current image",
		Description: `Reserves crashkernel memory on the current image's boot command line,
activates the kdump tool, and, when a reservation is already live in the
running kernel, loads the capture kernel immediately.`,
		Action: reconcileAction(func(ctx context.Context, r *kdump.Reconciler) (bool, error) {
			return r.Enable(ctx)
		}),
	}
}

func configNextCmd() *cli.Command {
	return &cli.Command{
		Name:  "config-next",
		Usage: "Enable crash dump capture for the next boot image",
		Description: `Same as enable, applied to the image that boots after the next reboot.
The currently running image is left untouched when the two differ.`,
		Action: reconcileAction(func(ctx context.Context, r *kdump.Reconciler) (bool, error) {
			return r.ConfigNext(ctx)
		}),
	}
}

func disableCmd() *cli.Command {
	return &cli.Command{
		Name:  "disable",
		Usage: "Disable crash dump capture for the current image",
		Description: `Deactivates the kdump tool (unloading the capture kernel) and removes
the crashkernel reservation from the current image's boot command line.`,
		Action: reconcileAction(func(ctx context.Context, r *kdump.Reconciler) (bool, error) {
			return r.Disable(ctx)
		}),
	}
}

func reconcileAction(op func(context.Context, *kdump.Reconciler) (bool, error)) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		if err := requireRoot(); err != nil {
			return err
		}
		r, closeFn := newReconciler(slog.Default())
		defer closeFn()

		changed, err := op(ctx, r)
		if err != nil {
			return err
		}
		if changed {
			fmt.Fprintln(cmd.Writer, rebootNotice)
		}
		return nil
	}
}

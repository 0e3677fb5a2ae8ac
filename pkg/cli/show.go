package cli

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/sonic-net/kdumpctl/pkg/kdump"
	"github.com/sonic-net/kdumpctl/pkg/serializer"
)

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "format", Aliases: []string{"t"}, Value: "json", Usage: "output format (json, yaml, table)"},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output file path (default: stdout)"},
	}
}

func showCmd() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Display crash dump configuration and state",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Desired configuration from the config database",
				Flags:  outputFlags(),
				Action: showAction(func(ctx context.Context, r *kdump.Reconciler) (any, error) {
					return r.DB.DesiredConfig(ctx), nil
				}),
			},
			{
				Name:   "status",
				Usage:  "Observed kdump state of the running system",
				Flags:  outputFlags(),
				Action: showAction(func(ctx context.Context, r *kdump.Reconciler) (any, error) {
					return r.Status(ctx)
				}),
			},
			{
				Name:   "records",
				Usage:  "Captured crash dump records",
				Flags:  outputFlags(),
				Action: showAction(func(_ context.Context, r *kdump.Reconciler) (any, error) {
					return r.Records(), nil
				}),
			},
		},
	}
}

func showAction(get func(context.Context, *kdump.Reconciler) (any, error)) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		format, err := parseOutputFormat(cmd)
		if err != nil {
			return err
		}
		r, closeFn := newReconciler(slog.Default())
		defer closeFn()

		v, err := get(ctx, r)
		if err != nil {
			return err
		}
		return serializer.NewFileWriterOrStdout(format, cmd.String("output")).Serialize(ctx, v)
	}
}

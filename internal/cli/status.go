package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity, pending changes and the last sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, rootOpts, runOptions{probe: true}, func(ctx context.Context, a *app, out *OutputFormatter) error {
				st, err := a.client.Status(ctx)
				if err != nil {
					return err
				}
				return out.Success(statusView(st))
			})
		},
	}
}

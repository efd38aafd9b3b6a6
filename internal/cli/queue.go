package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cadence/internal/model"
)

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or discard changes waiting to sync",
	}
	cmd.AddCommand(newQueueListCommand(rootOpts))
	cmd.AddCommand(newQueueClearCommand(rootOpts))
	return cmd
}

func newQueueListCommand(rootOpts *RootOptions) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued changes in replay order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, rootOpts, runOptions{}, func(ctx context.Context, a *app, out *OutputFormatter) error {
				var (
					items []model.QueueItem
					err   error
				)
				if kind == "" {
					items, err = a.store.GetSyncQueue(ctx)
				} else {
					k, perr := model.ParseKind(kind)
					if perr != nil {
						return WrapExitError(ExitCommandError, "invalid --store", perr)
					}
					items, err = a.store.GetSyncQueueByStore(ctx, k)
				}
				if err != nil {
					return err
				}
				return out.Success(queueView(items))
			})
		},
	}
	cmd.Flags().StringVar(&kind, "store", "", "only show items for this store (goals, wins, ...)")
	return cmd
}

func newQueueClearCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard every queued change",
		Long: `Discard every queued change without sending it.

Local records stay as they are but will not reach the service unless they are
edited again. Requires --yes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "refusing to discard queued changes without --yes")
			}
			return runWithApp(cmd, rootOpts, runOptions{}, func(ctx context.Context, a *app, out *OutputFormatter) error {
				n, err := a.store.CountSyncQueue(ctx)
				if err != nil {
					return err
				}
				if err := a.store.Clear(ctx, model.KindSyncQueue); err != nil {
					return err
				}
				a.logger.Warn("sync queue cleared", "items", n)
				return out.Success(fmt.Sprintf("discarded %d queued change(s)", n))
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm discarding queued changes")
	return cmd
}

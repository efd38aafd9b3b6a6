package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/cadence/internal/model"
	"github.com/roach88/cadence/internal/offline"
)

// NewGoalsCommand creates the goals command group.
func NewGoalsCommand(rootOpts *RootOptions) *cobra.Command {
	return newEntityCommand(rootOpts, "goals", "goal",
		func(c *offline.Client) *offline.Resource[model.Goal] { return c.Goals },
		`{"title":"Run a marathon","target_date":"2024-10-01","progress":10}`)
}

// NewWinsCommand creates the wins command group.
func NewWinsCommand(rootOpts *RootOptions) *cobra.Command {
	return newEntityCommand(rootOpts, "wins", "win",
		func(c *offline.Client) *offline.Resource[model.Win] { return c.Wins },
		`{"title":"Shipped v1","date":"2024-01-05"}`)
}

// NewFocusCommand creates the focus sessions command group.
func NewFocusCommand(rootOpts *RootOptions) *cobra.Command {
	return newEntityCommand(rootOpts, "focus", "focus session",
		func(c *offline.Client) *offline.Resource[model.FocusSession] { return c.FocusSessions },
		`{"date":"2024-01-05","duration_minutes":50,"task":"write tests"}`)
}

// NewWeeklyCommand creates the weekly reviews command group.
func NewWeeklyCommand(rootOpts *RootOptions) *cobra.Command {
	return newEntityCommand(rootOpts, "weekly", "weekly review",
		func(c *offline.Client) *offline.Resource[model.WeeklyReview] { return c.WeeklyReviews },
		`{"week_start":"2024-01-01","rating":4}`)
}

// newEntityCommand builds list/get/create/update/delete for one resource.
func newEntityCommand[T model.Entity](rootOpts *RootOptions, use, noun string, pick func(*offline.Client) *offline.Resource[T], example string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Manage %ss", noun),
	}

	run := func(cmd *cobra.Command, probe bool, fn func(ctx context.Context, r *offline.Resource[T], out *OutputFormatter) error) error {
		return runWithApp(cmd, rootOpts, runOptions{probe: probe}, func(ctx context.Context, a *app, out *OutputFormatter) error {
			return fn(ctx, pick(a.client), out)
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List %ss", noun),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, true, func(ctx context.Context, r *offline.Resource[T], out *OutputFormatter) error {
				items, err := r.List(ctx)
				if err != nil {
					return err
				}
				return out.Success(itemsView[T](items))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: fmt.Sprintf("Show one %s", noun),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args[0])
			if err != nil {
				return err
			}
			return run(cmd, true, func(ctx context.Context, r *offline.Resource[T], out *OutputFormatter) error {
				item, err := r.Get(ctx, id)
				if err != nil {
					return err
				}
				return out.Success(itemsView[T]{item})
			})
		},
	})

	var createData string
	create := &cobra.Command{
		Use:     "create",
		Short:   fmt.Sprintf("Create a %s", noun),
		Example: fmt.Sprintf("  cadence %s create --data '%s'", use, example),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := decodeData[T](createData, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return run(cmd, true, func(ctx context.Context, r *offline.Resource[T], out *OutputFormatter) error {
				item, err := r.Create(ctx, v)
				if err != nil {
					return err
				}
				return out.Success(itemsView[T]{item})
			})
		},
	}
	create.Flags().StringVar(&createData, "data", "-", "JSON body, or - to read stdin")
	cmd.AddCommand(create)

	var updateData string
	update := &cobra.Command{
		Use:   "update <id>",
		Short: fmt.Sprintf("Replace a %s", noun),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args[0])
			if err != nil {
				return err
			}
			v, err := decodeData[T](updateData, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return run(cmd, true, func(ctx context.Context, r *offline.Resource[T], out *OutputFormatter) error {
				item, err := r.Update(ctx, id, v)
				if err != nil {
					return err
				}
				return out.Success(itemsView[T]{item})
			})
		},
	}
	update.Flags().StringVar(&updateData, "data", "-", "JSON body, or - to read stdin")
	cmd.AddCommand(update)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: fmt.Sprintf("Delete a %s", noun),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args[0])
			if err != nil {
				return err
			}
			return run(cmd, true, func(ctx context.Context, r *offline.Resource[T], out *OutputFormatter) error {
				if err := r.Delete(ctx, id); err != nil {
					return err
				}
				return out.Success(fmt.Sprintf("deleted %s %s", noun, id))
			})
		},
	})

	return cmd
}

func parseIDArg(s string) (model.ID, error) {
	id, err := model.ParseID(s)
	if err != nil {
		return model.ID{}, WrapExitError(ExitCommandError, "invalid id", err)
	}
	return id, nil
}

// decodeData parses a JSON entity from data, or from stdin when data is "-".
// Unknown fields are rejected.
func decodeData[T model.Entity](data string, stdin io.Reader) (T, error) {
	var v T
	var r io.Reader = bytes.NewBufferString(data)
	if data == "-" {
		r = stdin
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, WrapExitError(ExitCommandError, "invalid --data", err)
	}
	return v, nil
}

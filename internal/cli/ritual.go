package cli

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewRitualCommand creates the ritual command group.
func NewRitualCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ritual",
		Short: "Record and read daily rituals",
	}
	cmd.AddCommand(newRitualSaveCommand(rootOpts))
	cmd.AddCommand(newRitualShowCommand(rootOpts))
	cmd.AddCommand(newRitualRecentCommand(rootOpts))
	return cmd
}

func today() string {
	return time.Now().Format(time.DateOnly)
}

func newRitualSaveCommand(rootOpts *RootOptions) *cobra.Command {
	var ritualType, date, data string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save the answers for one ritual, replacing that day's previous answers",
		Example: `  cadence ritual save --type morning --data '{"intention":"ship the sync engine"}'
  cadence ritual save --type evening --date 2024-01-05 --data -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var answers map[string]any
			r := cmd.InOrStdin()
			if data != "-" {
				r = strings.NewReader(data)
			}
			if err := json.NewDecoder(r).Decode(&answers); err != nil {
				return WrapExitError(ExitCommandError, "invalid --data", err)
			}
			return runWithApp(cmd, rootOpts, runOptions{probe: true}, func(ctx context.Context, a *app, out *OutputFormatter) error {
				rec, err := a.client.Rituals.Save(ctx, ritualType, date, answers)
				if err != nil {
					return err
				}
				return out.Success(ritualsView{rec})
			})
		},
	}
	cmd.Flags().StringVar(&ritualType, "type", "", "ritual type (morning, evening, ...)")
	cmd.Flags().StringVar(&date, "date", today(), "day, YYYY-MM-DD")
	cmd.Flags().StringVar(&data, "data", "-", "JSON object of answers, or - to read stdin")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newRitualShowCommand(rootOpts *RootOptions) *cobra.Command {
	var ritualType, date string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the rituals of one day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, rootOpts, runOptions{probe: true}, func(ctx context.Context, a *app, out *OutputFormatter) error {
				if ritualType != "" {
					rec, err := a.client.Rituals.Get(ctx, date, ritualType)
					if err != nil {
						return err
					}
					return out.Success(ritualsView{rec})
				}
				recs, err := a.client.Rituals.ForDate(ctx, date)
				if err != nil {
					return err
				}
				return out.Success(ritualsView(recs))
			})
		},
	}
	cmd.Flags().StringVar(&ritualType, "type", "", "only this ritual type")
	cmd.Flags().StringVar(&date, "date", today(), "day, YYYY-MM-DD")
	return cmd
}

func newRitualRecentCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recent",
		Short: "Show the most recent rituals from the local projection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, rootOpts, runOptions{}, func(ctx context.Context, a *app, out *OutputFormatter) error {
				recs, err := a.client.Rituals.Recent(ctx)
				if err != nil {
					return err
				}
				return out.Success(ritualsView(recs))
			})
		},
	}
}


package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"waterflow.dev/waterflow/internal/lifecycle"
)

// newRunCmd creates the run command
func newRunCmd(configPath *string) *cobra.Command {
	var (
		prID     int
		revision string
		options  []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the merge pipeline once for a pull request",
		RunE: func(cmd *cobra.Command, args []string) error {
			if prID <= 0 {
				return fmt.Errorf("--pr is required")
			}
			d, err := buildDeps(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer d.splog.Close()

			var opts lifecycle.Options
			for _, o := range options {
				name, value := splitOption(o)
				// Options from the command line come from the operator.
				if err := opts.Apply(name, value, true); err != nil {
					return err
				}
			}

			job := &lifecycle.Job{
				Settings: d.settings,
				Repo:     d.repo,
				Host:     d.host,
				Tracker:  d.tracker,
				Log:      d.splog,
				Snapshot: lifecycle.NewSnapshot(),
				PRID:     prID,
				Revision: revision,
				Options:  opts,
			}
			out := job.Run(cmd.Context())
			if out.Kind == lifecycle.OutcomeInternalError {
				return fmt.Errorf("%s: %w", out.Message, out.Err)
			}
			posted, err := lifecycle.PostOutcome(cmd.Context(), d.host, prID, revision, out)
			if err != nil {
				return fmt.Errorf("failed to post outcome on pull request %d: %w", prID, err)
			}
			if posted {
				d.splog.Info(fmt.Sprintf("commented on pull request %d", prID))
			}
			d.splog.Info(out.String())
			return nil
		},
	}

	cmd.Flags().IntVar(&prID, "pr", 0, "pull request number")
	cmd.Flags().StringVar(&revision, "revision", "", "source tip the trigger was issued for")
	cmd.Flags().StringArrayVar(&options, "option", nil, "pipeline option, repeatable (e.g. no_octopus, after_pull_request=12)")

	return cmd
}

func splitOption(s string) (name, value string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}

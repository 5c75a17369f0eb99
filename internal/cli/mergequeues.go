package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"waterflow.dev/waterflow/internal/cascade"
	"waterflow.dev/waterflow/internal/queue"
)

// newMergeQueuesCmd creates the merge-queues command
func newMergeQueuesCmd(configPath *string) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "merge-queues",
		Short: "Merge every queued pull request whose builds have all succeeded",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx, *configPath)
			if err != nil {
				return err
			}
			defer d.splog.Close()

			if err := d.repo.Clone(ctx); err != nil {
				return err
			}
			if err := d.repo.Fetch(ctx); err != nil {
				return err
			}

			csc, err := cascade.BuildFromRepo(d.repo)
			if err != nil {
				return err
			}
			qc := queue.NewCollection(d.repo, csc, d.host, d.settings.Build.Key, d.splog)
			if err := qc.Build(ctx); err != nil {
				return err
			}
			if err := qc.Validate(ctx); err != nil {
				return err
			}
			mergeable, err := qc.Process(ctx)
			if err != nil {
				return err
			}
			if len(mergeable) == 0 {
				d.splog.Info("nothing mergeable")
				return nil
			}
			d.splog.Info(fmt.Sprintf("mergeable pull requests: %v", mergeable))
			if dryRun {
				return nil
			}
			if err := qc.MergeMergeable(ctx); err != nil {
				return err
			}
			d.splog.Info("queues merged")
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute the mergeable set without merging")
	return cmd
}

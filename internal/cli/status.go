package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"waterflow.dev/waterflow/internal/cascade"
	"waterflow.dev/waterflow/internal/queue"
)

// statusReport is the machine-readable form of the queue state.
type statusReport struct {
	Lanes      []laneReport `yaml:"lanes"`
	Mergeable  []int        `yaml:"mergeable,omitempty"`
	Incoherent string       `yaml:"incoherent,omitempty"`
}

type laneReport struct {
	Version string   `yaml:"version"`
	Master  string   `yaml:"master"`
	Entries []string `yaml:"entries,omitempty"`
}

// newStatusCmd creates the status command
func newStatusCmd(configPath *string) *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the queue lanes and the currently mergeable pull requests",
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

			report := statusReport{}
			for _, l := range qc.Lanes() {
				lr := laneReport{Version: l.Version.String(), Master: "<missing>"}
				if l.Master != nil {
					lr.Master = l.Master.Name()
				}
				for _, e := range l.Entries {
					lr.Entries = append(lr.Entries, e.Name())
				}
				report.Lanes = append(report.Lanes, lr)
			}

			if err := qc.Validate(ctx); err != nil {
				report.Incoherent = err.Error()
			} else {
				mergeable, err := qc.Process(ctx)
				if err != nil {
					return err
				}
				report.Mergeable = mergeable
			}

			if asYAML {
				return yaml.NewEncoder(os.Stdout).Encode(report)
			}

			if len(report.Lanes) == 0 {
				d.splog.Info("queue is empty")
				return nil
			}
			for _, l := range report.Lanes {
				d.splog.Info(fmt.Sprintf("lane %s (%s): %d queued", l.Version, l.Master, len(l.Entries)))
				for _, e := range l.Entries {
					d.splog.Info("  " + e)
				}
			}
			if report.Incoherent != "" {
				d.splog.Warn(report.Incoherent)
				return nil
			}
			d.splog.Info(fmt.Sprintf("mergeable pull requests: %v", report.Mergeable))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print the report as YAML")
	return cmd
}

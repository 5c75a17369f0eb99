// Package cli wires the waterflow commands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root cobra command
func NewRootCmd(version, commit, date string) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "waterflow",
		Short: "Waterflow merges approved pull requests down a cascade of version branches",
		Long: `Waterflow watches pull requests that target versioned development and
stabilization branches, keeps one integration branch per destination, and
merges or queues a change on every branch of the cascade once its approvals,
builds and issue tracker checks pass.`,
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the settings file")

	rootCmd.AddCommand(newRunCmd(&configPath))
	rootCmd.AddCommand(newStatusCmd(&configPath))
	rootCmd.AddCommand(newMergeQueuesCmd(&configPath))

	return rootCmd
}

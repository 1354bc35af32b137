package cmd

import (
	"fmt"

	"github.com/crytic/cachestate/config"
	"github.com/spf13/cobra"
)

// addApplyFlags adds the various flags for the apply command
func addApplyFlags() error {
	defaultConfig := config.GetDefaultProjectConfig()

	// Prevent alphabetical sorting of usage message
	applyCmd.Flags().SortFlags = false

	// Config file
	applyCmd.Flags().String("config", "", "path to config file")

	// Prestate database
	applyCmd.Flags().String("db", "",
		fmt.Sprintf("path of the prestate database (unless a config file is provided, default is %q)", defaultConfig.Loader.DatabasePath))

	// Database lock timeout
	applyCmd.Flags().Int("timeout", 0,
		fmt.Sprintf("number of seconds to wait for the database lock (unless a config file is provided, default is %d)", defaultConfig.Loader.OpenTimeout))

	// State clearing
	applyCmd.Flags().Bool("state-clear", false,
		fmt.Sprintf("remove touched empty accounts as per EIP-161 (unless a config file is provided, default is %t)", defaultConfig.Cache.StateClear))

	// Shards
	applyCmd.Flags().Int("shards", 0, "number of account cache shards, rounded up to a power of two (default scales with CPUs)")

	// Metrics
	applyCmd.Flags().Bool("metrics", false,
		fmt.Sprintf("print cache metrics to stderr once done (unless a config file is provided, default is %t)", defaultConfig.Metrics.Enabled))

	// Output
	applyCmd.Flags().String("out", "", "path of the output file (default is stdout)")

	// Account dump
	applyCmd.Flags().Bool("accounts", false, "include every existing cached account in the output")

	// Coloring
	applyCmd.Flags().Bool("no-color", false, "disable colored terminal output")
	return nil
}

// updateProjectConfigWithApplyFlags will update the given projectConfig with any CLI arguments that were provided to the apply command
func updateProjectConfigWithApplyFlags(cmd *cobra.Command, projectConfig *config.ProjectConfig) error {
	var err error

	// If --metrics was used
	if cmd.Flags().Changed("metrics") {
		projectConfig.Metrics.Enabled, err = cmd.Flags().GetBool("metrics")
		if err != nil {
			return err
		}
	}

	return updateProjectConfigWithCacheFlags(cmd, projectConfig)
}

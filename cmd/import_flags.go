package cmd

import (
	"fmt"

	"github.com/crytic/cachestate/config"
	"github.com/spf13/cobra"
)

// addImportFlags adds the various flags for the import command
func addImportFlags() error {
	defaultConfig := config.GetDefaultProjectConfig()

	// Prevent alphabetical sorting of usage message
	importCmd.Flags().SortFlags = false

	// Config file
	importCmd.Flags().String("config", "", "path to config file")

	// Prestate database
	importCmd.Flags().String("db", "",
		fmt.Sprintf("path of the prestate database (unless a config file is provided, default is %q)", defaultConfig.Loader.DatabasePath))

	// Database lock timeout
	importCmd.Flags().Int("timeout", 0,
		fmt.Sprintf("number of seconds to wait for the database lock (unless a config file is provided, default is %d)", defaultConfig.Loader.OpenTimeout))

	// Coloring
	importCmd.Flags().Bool("no-color", false, "disable colored terminal output")
	return nil
}

// updateProjectConfigWithImportFlags will update the given projectConfig with any CLI arguments that were provided to the import command
func updateProjectConfigWithImportFlags(cmd *cobra.Command, projectConfig *config.ProjectConfig) error {
	return updateProjectConfigWithLoaderFlags(cmd, projectConfig)
}

// updateProjectConfigWithLoaderFlags updates the loader and logging configuration from the --db, --timeout and
// --no-color flags, for each that the command defines and was set.
func updateProjectConfigWithLoaderFlags(cmd *cobra.Command, projectConfig *config.ProjectConfig) error {
	var err error

	// If --db was used
	if cmd.Flags().Lookup("db") != nil && cmd.Flags().Changed("db") {
		projectConfig.Loader.DatabasePath, err = cmd.Flags().GetString("db")
		if err != nil {
			return err
		}
	}

	// If --timeout was used
	if cmd.Flags().Lookup("timeout") != nil && cmd.Flags().Changed("timeout") {
		projectConfig.Loader.OpenTimeout, err = cmd.Flags().GetInt("timeout")
		if err != nil {
			return err
		}
	}

	// If --no-color was used
	if cmd.Flags().Lookup("no-color") != nil && cmd.Flags().Changed("no-color") {
		projectConfig.Logging.NoColor, err = cmd.Flags().GetBool("no-color")
		if err != nil {
			return err
		}
	}
	return nil
}

// updateProjectConfigWithCacheFlags updates the cache configuration from the --state-clear and --shards flags, along
// with the loader flags, for each that the command defines and was set.
func updateProjectConfigWithCacheFlags(cmd *cobra.Command, projectConfig *config.ProjectConfig) error {
	var err error

	// If --state-clear was used
	if cmd.Flags().Lookup("state-clear") != nil && cmd.Flags().Changed("state-clear") {
		projectConfig.Cache.StateClear, err = cmd.Flags().GetBool("state-clear")
		if err != nil {
			return err
		}
	}

	// If --shards was used
	if cmd.Flags().Lookup("shards") != nil && cmd.Flags().Changed("shards") {
		projectConfig.Cache.Shards, err = cmd.Flags().GetInt("shards")
		if err != nil {
			return err
		}
	}

	return updateProjectConfigWithLoaderFlags(cmd, projectConfig)
}

package cmd

import (
	"github.com/crytic/cachestate/config"
	"github.com/spf13/cobra"
)

// addInitFlags adds the various flags for the init command
func addInitFlags() error {
	// Output path for configuration
	initCmd.Flags().String("out", "", "output path for the new project configuration file")

	// Overwrite an existing file
	initCmd.Flags().Bool("force", false, "overwrite the output file if it exists")

	// Prestate database
	initCmd.Flags().String("db", "", "path of the prestate database")

	// State clearing
	initCmd.Flags().Bool("state-clear", true, "remove touched empty accounts (EIP-161)")
	return nil
}

// updateProjectConfigWithInitFlags will update the given projectConfig with any CLI arguments that were provided to the init command
func updateProjectConfigWithInitFlags(cmd *cobra.Command, projectConfig *config.ProjectConfig) error {
	return updateProjectConfigWithCacheFlags(cmd, projectConfig)
}

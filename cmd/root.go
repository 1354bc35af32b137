package cmd

import (
	"github.com/crytic/cachestate/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// rootCmd represents the root command, which every other command is added to
var rootCmd = &cobra.Command{
	Use:   "cachestate",
	Short: "An EVM account cache and state transition engine",
	Long: "cachestate loads accounts from a prestate database, applies recorded execution batches to them and reports " +
		"the resulting account transitions",
}

// cmdLogger is the logger used by the cmd package. It logs to console until a command sets up the GlobalLogger.
var cmdLogger = logging.NewLogger(zerolog.InfoLevel, true)

// Execute runs the root command, dispatching to the sub-command provided on the command line.
func Execute() error {
	return rootCmd.Execute()
}

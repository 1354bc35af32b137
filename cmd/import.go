package cmd

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/crytic/cachestate/logging/colors"
	"github.com/crytic/cachestate/state/loader"
	"github.com/spf13/cobra"
)

// importCmd represents the command provider for importing an allocation into the prestate database
var importCmd = &cobra.Command{
	Use:               "import <alloc.json>",
	Short:             "Imports a genesis-style allocation into the prestate database",
	Long:              `Imports a genesis-style allocation (balances, nonces, code and storage per address) into the prestate database`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: cmdValidFlagArgs,
	RunE:              cmdRunImport,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	// Add all the flags allowed for the import command
	err := addImportFlags()
	if err != nil {
		cmdLogger.Panic("Failed to initialize the import command", err)
	}

	// Add the import command and its associated flags to the root command
	rootCmd.AddCommand(importCmd)
}

// cmdRunImport executes the CLI import command
func cmdRunImport(cmd *cobra.Command, args []string) error {
	projectConfig, err := loadProjectConfig(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the import command", err)
		return err
	}

	// Update the project configuration given whatever flags were set using the CLI
	err = updateProjectConfigWithImportFlags(cmd, projectConfig)
	if err != nil {
		cmdLogger.Error("Failed to run the import command", err)
		return err
	}
	if err = projectConfig.Validate(); err != nil {
		cmdLogger.Error("Failed to run the import command", err)
		return err
	}

	closeLogs, err := setupLogging(projectConfig.Logging)
	if err != nil {
		cmdLogger.Error("Failed to run the import command", err)
		return err
	}
	defer closeLogs()

	alloc, err := loader.ReadAllocFile(args[0])
	if err != nil {
		cmdLogger.Error("Failed to run the import command", err)
		return err
	}

	// Stop importing on keyboard interrupts
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	timeout := time.Duration(projectConfig.Loader.OpenTimeout) * time.Second
	store, err := loader.OpenBoltStore(ctx, projectConfig.Loader.DatabasePath, timeout)
	if err != nil {
		cmdLogger.Error("Failed to run the import command", err)
		return err
	}
	defer store.Close()

	count, err := store.Import(ctx, alloc)
	if err != nil {
		cmdLogger.Error("Failed to run the import command", err)
		return err
	}

	cmdLogger.Info("Imported ", colors.Bold, count, colors.Reset, " accounts into ", colors.Bold,
		projectConfig.Loader.DatabasePath, colors.Reset)
	return nil
}

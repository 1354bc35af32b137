package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/crytic/cachestate/config"
	"github.com/crytic/cachestate/logging"
	"github.com/crytic/cachestate/logging/colors"
	"github.com/crytic/cachestate/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// cmdValidFlagArgs returns the flags that have not been set yet, for dynamic completion of commands which accept flags
// and file arguments.
func cmdValidFlagArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var unusedFlags []string
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if !flag.Changed {
			unusedFlags = append(unusedFlags, "--"+flag.Name)
		}
	})
	return unusedFlags, cobra.ShellCompDirectiveDefault
}

// loadProjectConfig resolves the project configuration of a command:
// #1: If --config was used, read that file and fail if it cannot be read.
// #2: Otherwise, read cachestate.json from the working directory if it exists.
// #3: Otherwise, use the default project configuration.
func loadProjectConfig(cmd *cobra.Command) (*config.ProjectConfig, error) {
	configFlagUsed := cmd.Flags().Changed("config")
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// If --config was not used, look for the default config in the working directory
	if !configFlagUsed {
		workingDirectory, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(workingDirectory, DefaultProjectConfigFilename)
	}

	_, existenceError := os.Stat(configPath)
	if existenceError == nil {
		cmdLogger.Info("Reading the configuration file at: ", colors.Bold, configPath, colors.Reset)
		return config.ReadProjectConfigFromFile(configPath)
	}
	if configFlagUsed {
		return nil, existenceError
	}

	cmdLogger.Debug(fmt.Sprintf("Unable to find the config file at %v, will use the default project configuration", configPath))
	return config.GetDefaultProjectConfig(), nil
}

// setupLogging replaces the GlobalLogger with one following the logging configuration. If a log directory is
// configured, structured logs are also written to a new file in it. The returned function closes the file.
func setupLogging(loggingConfig config.LoggingConfig) (func(), error) {
	if loggingConfig.NoColor {
		colors.DisableColor()
	}

	logging.GlobalLogger = logging.NewLogger(loggingConfig.Level, loggingConfig.EnableConsoleLogging)
	if loggingConfig.LogDirectory == "" {
		return func() {}, nil
	}

	filename := fmt.Sprintf("%v-%v.log", DefaultLogFilePrefix, time.Now().Unix())
	file, err := utils.CreateFile(loggingConfig.LogDirectory, filename)
	if err != nil {
		return nil, err
	}
	logging.GlobalLogger.AddWriter(file, logging.STRUCTURED)
	return func() {
		logging.GlobalLogger.RemoveWriter(file)
		_ = file.Close()
	}, nil
}

// writeOutput writes b to the file at path, or to stdout if path is empty.
func writeOutput(path string, b []byte) error {
	var out io.Writer = os.Stdout
	if path != "" {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}
	_, err := out.Write(append(b, '\n'))
	return err
}

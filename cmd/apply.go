package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"time"

	"github.com/crytic/cachestate/cmd/exitcodes"
	"github.com/crytic/cachestate/config"
	"github.com/crytic/cachestate/logging/colors"
	"github.com/crytic/cachestate/state/cache"
	"github.com/crytic/cachestate/state/fixture"
	"github.com/crytic/cachestate/state/loader"
	"github.com/crytic/cachestate/state/types"
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

// applyCmd represents the command provider for applying execution batches to the cache
var applyCmd = &cobra.Command{
	Use:   "apply <fixture.json>",
	Short: "Applies recorded execution batches to the prestate and prints the resulting transitions",
	Long: `Loads every address referenced by a fixture from the prestate database into the cache, applies the
fixture's execution batches in order and prints the resulting account transitions as JSON`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: cmdValidFlagArgs,
	RunE:              cmdRunApply,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	// Add all the flags allowed for the apply command
	err := addApplyFlags()
	if err != nil {
		cmdLogger.Panic("Failed to initialize the apply command", err)
	}

	// Add the apply command and its associated flags to the root command
	rootCmd.AddCommand(applyCmd)
}

// applyOutput describes the JSON document printed by the apply command.
type applyOutput struct {
	// Batches describes the transitions of each batch, in order.
	Batches [][]fixture.Transition `json:"batches"`

	// Rewards describes the transitions caused by the fixture's balance increments.
	Rewards []fixture.Transition `json:"rewards,omitempty"`

	// Accounts describes every existing account in the cache once the fixture was applied, if requested.
	Accounts map[common.Address]fixture.PlainAccount `json:"accounts,omitempty"`
}

// cmdRunApply executes the CLI apply command
func cmdRunApply(cmd *cobra.Command, args []string) error {
	projectConfig, err := loadProjectConfig(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the apply command", err)
		return err
	}

	// Update the project configuration given whatever flags were set using the CLI
	err = updateProjectConfigWithApplyFlags(cmd, projectConfig)
	if err != nil {
		cmdLogger.Error("Failed to run the apply command", err)
		return err
	}
	if err = projectConfig.Validate(); err != nil {
		cmdLogger.Error("Failed to run the apply command", err)
		return err
	}

	closeLogs, err := setupLogging(projectConfig.Logging)
	if err != nil {
		cmdLogger.Error("Failed to run the apply command", err)
		return err
	}
	defer closeLogs()

	fx, err := fixture.ReadFile(args[0])
	if err != nil {
		cmdLogger.Error("Failed to run the apply command", err)
		return err
	}

	// Create the metrics registry if metrics are enabled
	var (
		registry *prometheus.Registry
		metrics  *cache.Metrics
	)
	if projectConfig.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		metrics, err = cache.NewMetrics(registry)
		if err != nil {
			cmdLogger.Error("Failed to run the apply command", err)
			return err
		}
	}
	cacheState := cache.NewCacheStateWithConfig(projectConfig.Cache, metrics)

	// Stop loading on keyboard interrupts
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = loadFixturePrestate(ctx, projectConfig, cacheState, fx)
	if err != nil {
		cmdLogger.Error("Failed to run the apply command", err)
		return err
	}

	states, err := fx.EvmStates()
	if err != nil {
		cmdLogger.Error("Failed to run the apply command", err)
		return err
	}
	increments, err := fx.Increments()
	if err != nil {
		cmdLogger.Error("Failed to run the apply command", err)
		return err
	}
	if fx.StateClear != nil {
		cacheState.SetStateClearFlag(*fx.StateClear)
	}

	dumpAccounts, err := cmd.Flags().GetBool("accounts")
	if err != nil {
		cmdLogger.Error("Failed to run the apply command", err)
		return err
	}
	output, err := applyBatches(cacheState, states, increments, dumpAccounts)
	if err != nil {
		cmdLogger.Error("Failed to apply the fixture", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeContractViolation)
	}

	b, err := json.MarshalIndent(output, "", "\t")
	if err != nil {
		cmdLogger.Error("Failed to run the apply command", err)
		return err
	}
	outputPath, err := cmd.Flags().GetString("out")
	if err != nil {
		cmdLogger.Error("Failed to run the apply command", err)
		return err
	}
	if err = writeOutput(outputPath, b); err != nil {
		cmdLogger.Error("Failed to run the apply command", err)
		return err
	}

	cmdLogger.Info("Applied ", colors.Bold, len(output.Batches), colors.Reset, " batches to ", colors.Bold,
		cacheState.NumAccounts(), colors.Reset, " cached accounts")

	if registry != nil {
		if err = writeMetrics(registry); err != nil {
			cmdLogger.Error("Failed to write metrics", err)
			return err
		}
	}
	return nil
}

// loadFixturePrestate inserts every address referenced by the fixture into the cache from the prestate database.
func loadFixturePrestate(ctx context.Context, projectConfig *config.ProjectConfig, cacheState *cache.CacheState, fx *fixture.Fixture) error {
	timeout := time.Duration(projectConfig.Loader.OpenTimeout) * time.Second
	store, err := loader.OpenBoltStore(ctx, projectConfig.Loader.DatabasePath, timeout)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.LoadInto(ctx, cacheState, fx.Addresses())
}

// applyBatches applies every batch in order, then the balance increments. A contract violation raised by the cache is
// returned as an error.
func applyBatches(cacheState *cache.CacheState, states []types.EvmState, increments map[common.Address]uint256.Int, dumpAccounts bool) (output *applyOutput, err error) {
	defer cache.RecoverContractViolation(&err)

	output = &applyOutput{
		Batches: make([][]fixture.Transition, 0, len(states)),
	}
	for _, state := range states {
		output.Batches = append(output.Batches, fixture.NewTransitions(cacheState.ApplyEvmState(state)))
	}
	if len(increments) > 0 {
		output.Rewards = fixture.NewTransitions(cacheState.IncrementBalances(increments))
	}

	if dumpAccounts {
		output.Accounts = make(map[common.Address]fixture.PlainAccount)
		for addr, account := range cacheState.TrieAccounts() {
			output.Accounts[addr] = fixture.NewPlainAccount(account)
		}
	}
	return output, nil
}

// writeMetrics writes every gathered metric family to stderr in the prometheus text format.
func writeMetrics(registry *prometheus.Registry) error {
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	for _, family := range families {
		if _, err = expfmt.MetricFamilyToText(os.Stderr, family); err != nil {
			return err
		}
	}
	return nil
}

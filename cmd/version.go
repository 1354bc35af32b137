package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/crytic/cachestate/version"
	"github.com/spf13/cobra"
)

// versionCmd represents the version command that displays build information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and build information",
	Long: `Print detailed version and build information for cachestate.

This includes the semantic version, git commit hash, build timestamp,
and Go version used to compile the binary.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.GetInfo()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			b, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		}
		if short, _ := cmd.Flags().GetBool("short"); short {
			fmt.Fprintln(cmd.OutOrStdout(), info.Short())
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), info.String())
		return nil
	},
}

func init() {
	versionCmd.Flags().Bool("short", false, "print the version on a single line")
	versionCmd.Flags().Bool("json", false, "print the version information as JSON")
	rootCmd.AddCommand(versionCmd)
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// completionCmd represents the command provider for shell completion scripts
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh]",
	Short: "Generate shell completion code for the specified shell",
	Long: `To load completions:

Bash:

  $ source <(cachestate completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ cachestate completion bash > /etc/bash_completion.d/cachestate

Zsh:

  $ cachestate completion zsh > "${fpath[1]}/_cachestate"`,
	ValidArgs: []string{"bash", "zsh"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		var err error
		switch args[0] {
		case "bash":
			err = cmd.Root().GenBashCompletionV2(os.Stdout, true)
		case "zsh":
			err = cmd.Root().GenZshCompletion(os.Stdout)
		}
		if err != nil {
			return fmt.Errorf("unable to generate a %v completion: %w", args[0], err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

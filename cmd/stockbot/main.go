package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stockbot",
		Short: "Cost-gated stock questions over Telegram and HTTP",
		Long: `stockbot answers questions about listed companies. Every answer is
priced before it is produced and runs only after the user confirms,
within a per-request and a daily spend ceiling.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newEstimateCmd())
	rootCmd.AddCommand(newAliasesCmd())
	rootCmd.AddCommand(newTokenCmd())

	return rootCmd
}

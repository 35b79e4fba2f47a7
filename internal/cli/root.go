package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file (defaults to $CONFIG_FILE)")
}

var rootCmd = &cobra.Command{
	Use:   "bollette",
	Short: "Track recurring bills and the payments made against them",
	Long: `bollette keeps recurring bills described by RFC 5545 rules, classifies
each occurrence as paid, upcoming or due soon, and records payments
together with the matching ledger entry.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		LoadEnvFile()
	},
}

// Execute runs the command line.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/micropaywall/paygate/internal/interfaces/cli/migrate"
	"github.com/micropaywall/paygate/internal/interfaces/cli/server"
	"github.com/micropaywall/paygate/internal/shared/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "paygate",
		Short:        "paygate - on-chain payment verification and access tokens",
		Long:         `paygate verifies Solana and EVM payments against payment intents and issues access tokens for paid content.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		migrate.NewCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the build version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version.String())
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

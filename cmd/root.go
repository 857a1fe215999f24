// Package cmd defines the CLI commands for the botrelay executable.
package cmd

import (
	"github.com/spf13/cobra"
)

// newRootCmd creates the root command and attaches subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "botrelay",
		Short: "Relay between a browser client and the bot-management API.",
		Long: `botrelay exposes a small JSON API to the browser client, forwards
reads to the upstream bot-management API with rate-limit aware retries,
and keeps an in-memory record of which alt accounts registered which bots.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a config file (yaml, json or toml)")
	cmd.AddCommand(newServeCmd(&cfgFile))

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute() //nolint:wrapcheck // cobra already reports the error
}

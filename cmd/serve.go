package cmd

import (
	"github.com/spf13/cobra"
)

const serveCmdName = "serve"

// newServeCmd creates the 'serve' subcommand, which exposes the session API
// until SIGINT/SIGTERM.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   serveCmdName,
		Short: "Runs the crawl session HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return appInstance.Run(cmd.Context())
		},
	}
}

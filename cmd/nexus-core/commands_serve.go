package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the control plane.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Nexus Core HTTP API",
		Long: `Start the Nexus Core control plane.

The server will:
1. Load configuration from the specified file
2. Open the Postgres connection pool and wire every repository
3. Register the configured LLM provider adapters and tools
4. Start the scheduled-task dispatcher, if enabled
5. Serve the HTTP API (chat, projects, approvals, webhooks, secrets, ...)

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with default config
  nexus-core serve

  # Start with a custom config
  nexus-core serve --config /etc/nexus-core/production.yaml

  # Start with debug logging
  nexus-core serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

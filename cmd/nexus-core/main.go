// Package main provides the CLI entry point for the Nexus Core control
// plane: a multi-tenant runtime that drives LLM-backed agents across chat
// sessions, scheduled tasks, and inbound webhooks.
//
// # Basic Usage
//
// Start the server:
//
//	nexus-core serve --config nexus-core.yaml
//
// Manage database migrations:
//
//	nexus-core migrate up
//	nexus-core migrate status
//
// # Environment Variables
//
// Provider API keys and other secrets are resolved through the env var
// names configured under llm.providers.<name>.api_key_env_var and
// secrets.master_key_env_var -- see internal/config for the full list.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nexus-core",
		Short: "Nexus Core - multi-tenant LLM agent control plane",
		Long: `Nexus Core drives LLM-backed agents across chat sessions, scheduled
tasks, and inbound webhooks, with per-project prompt layering, cost
guards, tool approval gating, and long-term memory.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
	)

	return rootCmd
}

const defaultConfigPath = "nexus-core.yaml"

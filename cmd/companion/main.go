// Package main provides the CLI entry point for the companion
// local-first agent orchestration server.
//
// # Basic Usage
//
// Start the server:
//
//	companion serve --config companion.yaml
//
// # Environment Variables
//
//   - COMPANION_VAULT_ROOT: path to the user's vault directory
//   - COMPANION_HOST / COMPANION_PORT: HTTP bind address
//   - ANTHROPIC_API_KEY / ANTHROPIC_MODEL: direct-trust LLM runtime
//   - OPENAI_API_KEY: post-turn observer analyzer
//
// Grounded on _examples/haasonsaas-nexus/cmd/nexus/main.go's
// build-info-plus-cobra-root-command structure, scoped down to this
// module's two subcommands: the long-running "serve" and "token".
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "companion",
		Short:        "companion - local-first agent orchestration server",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd(), buildTokenCmd())
	return root
}

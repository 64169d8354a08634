// Package main provides the CLI entry point for the orchestrator agent.
//
// orchestratorctl wires the secret vault, workflow event log, cron
// scheduler, tool registry, subagent registry, approval service, and
// orchestration router into one process that listens on whichever
// channel adapters are enabled in configuration (Telegram, Discord,
// Slack) and answers inbound messages through an LLM provider with
// failover.
//
// # Basic Usage
//
// Start the server:
//
//	orchestratorctl serve --config orchestrator.yaml
//
// Inspect configured components without starting the server:
//
//	orchestratorctl status --config orchestrator.yaml
//
// Manage the workspace secret vault:
//
//	orchestratorctl vault put API_KEY --config orchestrator.yaml
//	orchestratorctl vault list --config orchestrator.yaml
//
// List or fire cron jobs:
//
//	orchestratorctl cron list --config orchestrator.yaml
//	orchestratorctl cron run <job-id> --config orchestrator.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

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

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "orchestratorctl",
		Short: "orchestratorctl - headless multi-channel LLM orchestration agent",
		Long: `orchestratorctl connects messaging channels to LLM providers through a
mode-classifying router (once/agent/task), gating tool calls behind an
approval service and persisting task-mode progress to a resumable event
log.

Supported channels: Telegram, Discord, Slack
Supported LLM providers: Anthropic, OpenAI, Bedrock, and any failover
chain built from internal/agent/providers.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	root.AddCommand(
		buildServeCmd(),
		buildStatusCmd(),
		buildVaultCmd(),
		buildCronCmd(),
	)

	return root
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func buildStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the configured components without starting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(configPath)
			if err != nil {
				return err
			}
			return a.printStatus()
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "orchestrator.yaml", "path to configuration file")
	return cmd
}

func (a *app) printStatus() error {
	fmt.Printf("workspace:        %s\n", a.workspaceDir)
	fmt.Printf("llm provider:     %s (fallbacks: %v)\n", a.cfg.LLM.DefaultProvider, a.cfg.LLM.FallbackChain)
	fmt.Printf("tools registered: %d\n", len(a.tools.All()))
	fmt.Printf("cron jobs:        %d\n", len(a.sched.Jobs()))
	fmt.Printf("secrets stored:   %d\n", len(a.vault.ListNames()))
	if a.skills != nil {
		fmt.Printf("skills eligible:  %d\n", len(a.skills.ListEligible()))
		for name, reason := range a.skills.RejectedReasons() {
			fmt.Printf("  - %s (held back: %s)\n", name, reason)
		}
	}
	fmt.Println("channels:")
	for _, adapter := range a.channels.All() {
		fmt.Printf("  - %s\n", adapter.Type())
	}
	return nil
}

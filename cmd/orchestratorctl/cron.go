package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func buildCronCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "cron",
		Short: "Inspect and fire scheduled jobs",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "orchestrator.yaml", "path to configuration file")

	root.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List registered cron jobs and their next run time",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := buildApp(configPath)
				if err != nil {
					return err
				}
				for _, job := range a.sched.Jobs() {
					fmt.Printf("%-24s %-32s enabled=%v\n", job.ID, job.Name, job.Enabled)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "run <job-id>",
			Short: "Run one job immediately, bypassing its schedule",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := buildApp(configPath)
				if err != nil {
					return err
				}
				return a.sched.RunJob(cmd.Context(), args[0])
			},
		},
	)

	return root
}

package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func buildVaultCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "vault",
		Short: "Manage the workspace secret vault",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "orchestrator.yaml", "path to configuration file")

	root.AddCommand(
		&cobra.Command{
			Use:   "put <name>",
			Short: "Store a secret, reading its plaintext from stdin",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := buildApp(configPath)
				if err != nil {
					return err
				}
				fmt.Fprint(os.Stderr, "secret value: ")
				reader := bufio.NewReader(os.Stdin)
				line, err := reader.ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read secret value: %w", err)
				}
				return a.vault.Put(args[0], strings.TrimRight(line, "\r\n"))
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List stored secret names",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := buildApp(configPath)
				if err != nil {
					return err
				}
				names := a.vault.ListNames()
				sort.Strings(names)
				for _, n := range names {
					fmt.Println(n)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <name>",
			Short: "Remove a stored secret",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := buildApp(configPath)
				if err != nil {
					return err
				}
				return a.vault.Remove(args[0])
			},
		},
	)

	return root
}

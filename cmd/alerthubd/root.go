package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "alerthubd",
		Short: "Notification fan-out daemon",
		Long: `alerthubd runs the notification pipeline: it accepts notifications and
user interactions, persists them, and fans them out to subscribers, push
services and webhooks.`,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return root
}

package main

import (
	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show today's quota usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		u, err := c.Usage(cmd.Context())
		if err != nil {
			return err
		}
		if outputFmt == "json" {
			return writeJSON(cmd.OutOrStdout(), u)
		}
		return renderUsage(cmd.OutOrStdout(), u)
	},
}

func init() {
	rootCmd.AddCommand(usageCmd)
}

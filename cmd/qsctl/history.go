package main

import (
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List your most recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		recs, err := c.History(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if outputFmt == "json" {
			return writeJSON(cmd.OutOrStdout(), recs)
		}
		return renderHistory(cmd.OutOrStdout(), recs)
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

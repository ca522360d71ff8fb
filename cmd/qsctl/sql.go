package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/af-corp/querysmith/internal/sqlfmt"
	"github.com/af-corp/querysmith/internal/types"
)

var inputFile string

// remoteModeCmd builds the command for one model-backed mode.
func remoteModeCmd(mode types.Mode, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(inputFile, args, os.Stdin)
			if err != nil {
				return err
			}
			c, err := newClient()
			if err != nil {
				return err
			}

			prompt, sql := "", text
			if mode.TakesPrompt() {
				prompt, sql = text, ""
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			spinner, _ := pterm.DefaultSpinner.WithRemoveWhenDone(true).WithWriter(os.Stderr).Start(fmt.Sprintf("Running %s", mode))
			res, err := c.Run(ctx, mode, prompt, sql)
			if spinner != nil {
				spinner.Stop()
			}
			if err != nil {
				return err
			}

			if outputFmt == "json" {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			renderResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

var formatCmd = &cobra.Command{
	Use:   "format [sql]",
	Short: "Format SQL locally without contacting the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(inputFile, args, os.Stdin)
		if err != nil {
			return err
		}
		out, err := sqlfmt.New().Format(text)
		if err != nil {
			return err
		}
		if outputFmt == "json" {
			return writeJSON(cmd.OutOrStdout(), map[string]string{"mode": string(types.ModeFormat), "result": out})
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	cmds := []*cobra.Command{
		remoteModeCmd(types.ModeGenerate, "generate [question]", "Write SQL for a natural-language question against your saved schema"),
		remoteModeCmd(types.ModeOptimize, "optimize [sql]", "Rewrite SQL for performance"),
		remoteModeCmd(types.ModeValidate, "validate [sql]", "Check SQL and return a corrected version"),
		remoteModeCmd(types.ModeExplain, "explain [sql]", "Explain what SQL does step by step"),
		formatCmd,
	}
	for _, c := range cmds {
		c.Flags().StringVarP(&inputFile, "file", "f", "", "read input from file")
		rootCmd.AddCommand(c)
	}
}

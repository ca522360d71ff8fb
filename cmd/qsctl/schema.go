package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/af-corp/querysmith/internal/introspect"
)

var (
	schemaFile  string
	pullDialect string
	pullDSN     string
	pullDryRun  bool
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Show or replace the schema used by generate",
}

var schemaGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the saved schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		sc, err := c.GetSchema(cmd.Context())
		if err != nil {
			return err
		}
		if outputFmt == "json" {
			return writeJSON(cmd.OutOrStdout(), sc)
		}
		fmt.Fprintln(cmd.OutOrStdout(), sc.Text)
		return nil
	},
}

var schemaSetCmd = &cobra.Command{
	Use:   "set [ddl]",
	Short: "Replace the saved schema with DDL from a file, args or stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(schemaFile, args, os.Stdin)
		if err != nil {
			return err
		}
		return saveSchema(cmd.Context(), text)
	},
}

var schemaPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Introspect a live database and save its schema",
	Long: `pull reads tables, columns, primary keys and foreign keys from a live
database and saves them as CREATE TABLE statements. Only catalog metadata is
read; no rows are touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn := pullDSN
		if dsn == "" {
			dsn = os.Getenv("QUERYSMITH_SCHEMA_DSN")
		}
		if dsn == "" {
			return errors.New("no database: pass --dsn or set QUERYSMITH_SCHEMA_DSN")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		db, err := introspect.Open(ctx, pullDialect, dsn)
		if err != nil {
			return err
		}
		defer db.Close()

		tables, err := introspect.Describe(ctx, db, pullDialect)
		if err != nil {
			return err
		}
		if len(tables) == 0 {
			return errors.New("no tables found")
		}
		ddl := introspect.Render(tables)

		if pullDryRun {
			fmt.Fprintln(cmd.OutOrStdout(), ddl)
			return nil
		}
		pterm.Info.Printfln("Found %d tables", len(tables))
		return saveSchema(ctx, ddl)
	},
}

func saveSchema(ctx context.Context, text string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	sc, err := c.PutSchema(ctx, text)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("Schema saved (%d lines)", strings.Count(strings.TrimRight(sc.Text, "\n"), "\n")+1)
	return nil
}

func init() {
	schemaSetCmd.Flags().StringVarP(&schemaFile, "file", "f", "", "read DDL from file")

	schemaPullCmd.Flags().StringVar(&pullDialect, "dialect", "postgres", "database dialect: "+strings.Join(introspect.Dialects(), ", "))
	schemaPullCmd.Flags().StringVar(&pullDSN, "dsn", "", "database connection string (env QUERYSMITH_SCHEMA_DSN)")
	schemaPullCmd.Flags().BoolVar(&pullDryRun, "dry-run", false, "print the DDL instead of saving it")

	schemaCmd.AddCommand(schemaGetCmd, schemaSetCmd, schemaPullCmd)
	rootCmd.AddCommand(schemaCmd)
}

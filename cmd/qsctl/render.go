package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"

	"github.com/af-corp/querysmith/internal/client"
	"github.com/af-corp/querysmith/internal/types"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderResult prints a pipeline result. SQL goes to w unadorned so it can be
// piped; warnings and explanations are styled.
func renderResult(w io.Writer, res *types.Result) {
	if res.Explanation != nil {
		renderExplanation(w, res.Explanation)
	} else {
		fmt.Fprintln(w, res.Output)
	}
	for _, warn := range res.Warnings {
		pterm.Warning.WithWriter(w).Println(warn)
	}
	if a := res.Filters.Injection; a.Action == "flag" {
		pterm.Warning.WithWriter(w).Println("request was flagged by the injection filter")
	}
}

func renderExplanation(w io.Writer, e *types.Explanation) {
	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint(title))
		for i, it := range items {
			fmt.Fprintf(w, "  %d. %s\n", i+1, it)
		}
	}
	fmt.Fprintln(w, e.Summary)
	section("Steps", e.Steps)
	section("Output columns", e.OutputColumns)
	section("Performance", e.PerformanceNotes)
	section("Risks", e.Risks)
}

func renderHistory(w io.Writer, recs []types.HistoryRecord) error {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No history yet.")
		return nil
	}
	data := pterm.TableData{{"When", "Mode", "Request", "Output"}}
	for _, r := range recs {
		data = append(data, []string{
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			string(r.Mode),
			truncate(r.RequestText, 48),
			truncate(r.Output, 48),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render()
}

func renderUsage(w io.Writer, u *client.Usage) error {
	data := pterm.TableData{
		{"Used", "Limit", "Remaining", "Resets"},
		{
			fmt.Sprint(u.Used),
			fmt.Sprint(u.Limit),
			fmt.Sprint(u.Remaining),
			u.ResetsAt.Local().Format("2006-01-02 15:04"),
		},
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render()
}

// truncate shortens s to n runes on a single line.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

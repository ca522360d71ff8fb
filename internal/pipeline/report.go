package pipeline

import (
	"fmt"
	"strings"

	"github.com/af-corp/querysmith/internal/types"
)

// FormatExplanation flattens an explanation into a plain-text report with
// sections in a fixed order. Empty sections are left out.
func FormatExplanation(e *types.Explanation) string {
	if e == nil {
		return ""
	}

	var sb strings.Builder
	section := func(title string, body func()) {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(title)
		sb.WriteString("\n")
		body()
	}
	bullets := func(title string, items types.TextList) {
		if len(items) == 0 {
			return
		}
		section(title, func() {
			for i, it := range items {
				if i > 0 {
					sb.WriteString("\n")
				}
				sb.WriteString("- ")
				sb.WriteString(it)
			}
		})
	}

	if e.Summary != "" {
		section("Summary", func() { sb.WriteString(e.Summary) })
	}
	if len(e.Steps) > 0 {
		section("Execution Steps", func() {
			for i, step := range e.Steps {
				if i > 0 {
					sb.WriteString("\n")
				}
				fmt.Fprintf(&sb, "%d. %s", i+1, step)
			}
		})
	}
	bullets("Output Columns", e.OutputColumns)
	bullets("Performance Notes", e.PerformanceNotes)
	bullets("Risks", e.Risks)

	return sb.String()
}

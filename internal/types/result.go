package types

// Result is what a successful pipeline run hands back to the caller.
type Result struct {
	RequestID   string        `json:"request_id"`
	Mode        Mode          `json:"mode"`
	Output      string        `json:"result"`
	Explanation *Explanation  `json:"explanation,omitempty"`
	Warnings    []string      `json:"warnings,omitempty"`
	Filters     FilterSummary `json:"filter_actions"`

	// Stage bookkeeping, exposed for logging and metrics.
	Repairs       int  `json:"-"`
	Reviewed      bool `json:"-"`
	Continuations int  `json:"-"`
	Complete      bool `json:"-"`
}

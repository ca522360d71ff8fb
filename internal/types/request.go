package types

import "time"

// Request is the canonical envelope for one pipeline run.
// Exactly one of Prompt and SQL is meaningful, chosen by Mode.
type Request struct {
	// Identity (set by auth middleware)
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	APIKeyID  string `json:"api_key_id"`

	// Request content
	Mode   Mode   `json:"mode"`
	Prompt string `json:"prompt,omitempty"`
	SQL    string `json:"sql,omitempty"`

	// Internal tracking
	ReceivedAt time.Time `json:"-"`
	DailyQuota int64     `json:"-"`
}

// Input returns the text the mode operates on.
func (r *Request) Input() string {
	if r.Mode.TakesPrompt() {
		return r.Prompt
	}
	return r.SQL
}

package types

import "time"

// SchemaContext is the free-form database schema text a user has saved. It
// is embedded verbatim in model prompts.
type SchemaContext struct {
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updated_at"`
}

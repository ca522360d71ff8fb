package types

import (
	"time"

	"github.com/google/uuid"
)

// HistoryRecord is the artifact of one successful pipeline run.
// It is written once and never changed afterwards.
type HistoryRecord struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"user_id"`
	Mode        Mode      `json:"mode"`
	RequestText string    `json:"request_text"`
	Output      string    `json:"output"`
	CreatedAt   time.Time `json:"created_at"`
}

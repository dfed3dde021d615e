package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Transcript is the persisted record of one handled chat message: what the
// customer asked, how the pipeline resolved it, and what was answered.
type Transcript struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	UserText  string    `json:"user_text"`
	ReplyText string    `json:"reply_text"`
	// Outcome is the pipeline's terminal state: "delivered", "fallback",
	// "rejected_input", "throttled", "blocked", or "redirected".
	Outcome   string `json:"outcome"`
	CardIDs   string `json:"card_ids"`
	LatencyMs int64  `json:"latency_ms"`
}

package domain

import "time"

// ConversationTurn is one message of a user/assistant exchange.
type ConversationTurn struct {
	ID         int64     `json:"id"`
	UserID     UserID    `json:"user_id"`
	SessionID  string    `json:"session_id"`
	Role       string    `json:"role"` // "user" or "assistant"
	Content    string    `json:"content"`
	Intent     string    `json:"intent,omitempty"`
	Confidence int       `json:"confidence,omitempty"` // 0-100
	CreatedAt  time.Time `json:"created_at"`
}

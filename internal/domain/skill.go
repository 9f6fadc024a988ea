package domain

import "time"

type Skill struct {
	ID          string    `json:"id"`
	Name        string    `json:"skill_name"`
	Version     string    `json:"skill_version"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	IsInstalled bool      `json:"is_installed"`
	UsageCount  int       `json:"usage_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Face is a registered face embedding bound to a user.
type Face struct {
	ID        int64     `json:"id"`
	UserID    UserID    `json:"user_id"`
	Label     string    `json:"label,omitempty"`
	Embedding []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

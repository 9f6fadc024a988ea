// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"
	"time"
)

const MaxUsernameLen = 36

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

type UserID string

type User struct {
	ID             UserID         `json:"id"`
	Username       string         `json:"username"`
	Email          string         `json:"email"`
	FullName       string         `json:"full_name,omitempty"`
	HashedPassword string         `json:"-"`
	Preferences    map[string]any `json:"preferences,omitempty"`
	IsActive       bool           `json:"is_active"`
	LastLogin      *time.Time     `json:"last_login,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (u *User) SetUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	u.Username = username
	return nil
}

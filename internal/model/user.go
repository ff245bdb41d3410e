package model

import (
	"fmt"
	"time"
)

// User represents a registered user account.
//
// The email is the login identifier (unique, normalized on the way in).
// We generate our own internal string ID (xid) rather than exposing a
// database sequence in session tokens.
//
// WHY GitHubID *int64?
// Signing in with GitHub is optional. A nil pointer maps to SQL NULL, so the
// UNIQUE constraint on github_id only applies to accounts that linked one.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"isActive"`
	IsAdmin      bool      `json:"isAdmin"`
	GitHubID     *int64    `json:"githubId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (u User) String() string {
	return fmt.Sprintf("%s (%s)", u.FirstName, u.Email)
}

// PasswordReset is a single-use token emailed to a user who forgot their password.
type PasswordReset struct {
	Token     string     `json:"token"`
	UserID    string     `json:"userId"`
	ExpiresAt time.Time  `json:"expiresAt"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Valid reports whether the token can still be redeemed at now.
func (r PasswordReset) Valid(now time.Time) bool {
	return r.UsedAt == nil && now.Before(r.ExpiresAt)
}

package models

import "time"

// PersonalAccessToken is a bearer token issued to one device of a user.
// Token holds the SHA-256 of the secret; the plaintext is only returned at issue time.
type PersonalAccessToken struct {
	ID         int64      `json:"id"`
	UserID     string     `json:"user_id"`
	Name       string     `json:"name"`
	Token      string     `json:"-"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

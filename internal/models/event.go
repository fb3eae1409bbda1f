package models

import "time"

// Event represents an auditable authentication action.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`  // e.g., "auth.login", "auth.logout"
	Level     string    `json:"level"` // e.g., "info", "warn", "error"
	Message   string    `json:"message"`
	UserID    *string   `json:"user_id,omitempty"` // Nil for events without a known user
	CreatedAt time.Time `json:"created_at"`
}

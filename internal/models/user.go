package models

import "time"

// User is a registered account identified by its NIP.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Prodi        string    `json:"prodi"`
	NIP          string    `json:"nip"`
	PasswordHash string    `json:"-"` // Never expose this to the client
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Package common defines sentinel errors shared by the services and the HTTP
// layer. Callers match them with errors.Is.
package common

import "errors"

var (
	// Storage-level errors.
	ErrNotFound = errors.New("not found")

	// Registration errors.
	ErrDuplicateNIP = errors.New("nip already registered")

	// Authentication errors.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDeviceNameRequired = errors.New("device name required")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidToken       = errors.New("invalid token")

	ErrInternal = errors.New("internal server error")
)

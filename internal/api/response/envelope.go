// Package response writes the JSON envelope returned by every endpoint.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

const (
	MessageSuccess = "success"
	MessageFailed  = "failed"
)

// Envelope is the uniform response body. Data is always present, null when empty.
type Envelope struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
	Error   string `json:"error,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

// JSON writes env with the given status code.
func JSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.Error().Err(err).Int("status", status).Msg("Failed to encode response")
	}
}

// Success writes a 200 envelope carrying data.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Envelope{Message: MessageSuccess, Data: data})
}

// Failure writes a failed envelope with a single error message.
func Failure(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, Envelope{Message: MessageFailed, Error: msg})
}

// ValidationFailure writes a 400 envelope with per-field errors.
func ValidationFailure(w http.ResponseWriter, fieldErrors any) {
	JSON(w, http.StatusBadRequest, Envelope{Message: MessageFailed, Error: "validation failed", Errors: fieldErrors})
}

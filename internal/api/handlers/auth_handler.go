package handlers

import (
	"errors"
	"net/http"
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/isdelr/nip-auth/internal/api/response"
	"github.com/isdelr/nip-auth/internal/auth"
	"github.com/isdelr/nip-auth/internal/common"
	"github.com/isdelr/nip-auth/internal/services"
	"github.com/rs/zerolog/log"
)

// AuthHandler handles HTTP requests for registration and token sessions.
type AuthHandler struct {
	service services.AuthServiceProvider
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(service services.AuthServiceProvider) *AuthHandler {
	return &AuthHandler{service: service}
}

// Register handles new user registration.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload services.RegisterInput
	err := bind(r, &payload, func(form url.Values) {
		payload = services.RegisterInput{
			Name:     form.Get("name"),
			Prodi:    form.Get("prodi"),
			NIP:      form.Get("nip"),
			Password: form.Get("password"),
		}
	})
	if err != nil {
		response.Failure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.service.Register(r.Context(), payload)
	if err != nil {
		writeError(w, r, err, "Failed to register user", payload.NIP)
		return
	}

	response.Success(w, user)
}

// Login checks credentials and issues a bearer token for the named device.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload services.LoginInput
	err := bind(r, &payload, func(form url.Values) {
		payload = services.LoginInput{
			NIP:        form.Get("nip"),
			Password:   form.Get("password"),
			DeviceName: form.Get("device_name"),
		}
	})
	if err != nil {
		response.Failure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.service.Login(r.Context(), payload)
	if err != nil {
		writeError(w, r, err, "Login failed", payload.NIP)
		return
	}

	log.Info().Str("nip", payload.NIP).Str("device_name", payload.DeviceName).Msg("Login successful")
	response.Success(w, map[string]string{"token": token})
}

// Me returns the user that owns the presented token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())
	user, err := h.service.Me(r.Context(), session)
	if err != nil {
		writeError(w, r, err, "Could not resolve current user", "")
		return
	}
	response.Success(w, user)
}

// Logout revokes the presented token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())
	if err := h.service.Logout(r.Context(), session); err != nil {
		writeError(w, r, err, "Failed to logout", "")
		return
	}
	response.Success(w, nil)
}

// writeError maps service errors onto the response envelope. Internal error
// text is logged, never sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error, msg, nip string) {
	var fieldErrs validation.Errors
	switch {
	case errors.As(err, &fieldErrs):
		response.ValidationFailure(w, fieldErrs)
	case errors.Is(err, common.ErrDuplicateNIP):
		log.Warn().Str("nip", nip).Msg(msg + ": nip already registered")
		response.Failure(w, http.StatusConflict, common.ErrDuplicateNIP.Error())
	case errors.Is(err, common.ErrInvalidCredentials):
		log.Warn().Str("nip", nip).Msg(msg + ": invalid credentials")
		response.Failure(w, http.StatusUnauthorized, common.ErrInvalidCredentials.Error())
	case errors.Is(err, common.ErrDeviceNameRequired):
		log.Warn().Str("nip", nip).Msg(msg + ": device_name is missing")
		response.Failure(w, http.StatusBadRequest, common.ErrDeviceNameRequired.Error())
	case errors.Is(err, common.ErrUnauthenticated), errors.Is(err, common.ErrInvalidToken):
		response.Failure(w, http.StatusUnauthorized, common.ErrUnauthenticated.Error())
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Str("nip", nip).Msg(msg)
		response.Failure(w, http.StatusInternalServerError, common.ErrInternal.Error())
	}
}

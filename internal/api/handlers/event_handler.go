package handlers

import (
	"net/http"
	"strconv"

	"github.com/isdelr/nip-auth/internal/api/response"
	"github.com/isdelr/nip-auth/internal/auth"
	"github.com/isdelr/nip-auth/internal/common"
	"github.com/isdelr/nip-auth/internal/models"
	"github.com/isdelr/nip-auth/internal/services"
	"github.com/rs/zerolog/log"
)

const (
	defaultEventLimit = 20
	maxEventLimit     = 100
)

// EventHandler handles HTTP requests related to auth activity.
type EventHandler struct {
	service services.EventServiceProvider
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(service services.EventServiceProvider) *EventHandler {
	return &EventHandler{service: service}
}

// GetMine returns the recent auth activity of the authenticated user.
func (h *EventHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		response.Failure(w, http.StatusUnauthorized, common.ErrUnauthenticated.Error())
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	events, err := h.service.GetRecentEventsForUser(r.Context(), session.User.ID, limit)
	if err != nil {
		log.Error().Err(err).Str("user_id", session.User.ID).Msg("Failed to retrieve events")
		response.Failure(w, http.StatusInternalServerError, common.ErrInternal.Error())
		return
	}
	if events == nil {
		events = []models.Event{}
	}

	response.Success(w, events)
}

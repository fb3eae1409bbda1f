package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/isdelr/nip-auth/internal/api/response"
	"github.com/isdelr/nip-auth/internal/common"
	"github.com/isdelr/nip-auth/internal/models"
	"github.com/rs/zerolog/log"
)

// Session is the authenticated state of one request: the user and the token it presented.
type Session struct {
	User  models.User
	Token models.PersonalAccessToken
}

// TokenResolver maps a presented bearer token to its owner.
type TokenResolver interface {
	ResolveToken(ctx context.Context, plain string) (models.User, models.PersonalAccessToken, error)
}

type contextKey string

// SessionKey is the context key for the request Session.
const SessionKey = contextKey("session")

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, SessionKey, s)
}

// SessionFromContext returns the Session stored by BearerMiddleware, if any.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(SessionKey).(*Session)
	return s, ok && s != nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// BearerMiddleware rejects requests without a valid bearer token and stores
// the resolved Session in the request context.
func BearerMiddleware(resolver TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := BearerToken(r)
			if tokenStr == "" {
				response.Failure(w, http.StatusUnauthorized, common.ErrUnauthenticated.Error())
				return
			}

			user, token, err := resolver.ResolveToken(r.Context(), tokenStr)
			if err != nil {
				if !errors.Is(err, common.ErrInvalidToken) {
					log.Error().Err(err).Msg("Failed to resolve bearer token")
					response.Failure(w, http.StatusInternalServerError, common.ErrInternal.Error())
					return
				}
				response.Failure(w, http.StatusUnauthorized, common.ErrUnauthenticated.Error())
				return
			}

			ctx := WithSession(r.Context(), &Session{User: user, Token: token})
			log.Debug().Str("user_id", user.ID).Int64("token_id", token.ID).Msg("Authenticated request")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

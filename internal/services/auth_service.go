package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/isdelr/nip-auth/internal/auth"
	"github.com/isdelr/nip-auth/internal/common"
	"github.com/isdelr/nip-auth/internal/models"
	"github.com/rs/zerolog/log"
)

// RegisterInput carries the fields of a registration request.
type RegisterInput struct {
	Name     string `json:"name"`
	Prodi    string `json:"prodi"`
	NIP      string `json:"nip"`
	Password string `json:"password"`
}

// Validate requires every field. Passwords are capped at 72 bytes, the bcrypt input limit.
func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.By(notBlank), validation.Length(1, 255)),
		validation.Field(&in.Prodi, validation.Required, validation.By(notBlank), validation.Length(1, 255)),
		validation.Field(&in.NIP, validation.Required, validation.By(notBlank), validation.Length(1, 255)),
		validation.Field(&in.Password, validation.Required, validation.By(maxBytes(72))),
	)
}

// LoginInput carries the fields of a login request. DeviceName is checked
// only after the credentials, so it is not part of Validate.
type LoginInput struct {
	NIP        string `json:"nip"`
	Password   string `json:"password"`
	DeviceName string `json:"device_name"`
}

// Validate requires the credential fields.
func (in LoginInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.NIP, validation.Required, validation.By(notBlank)),
		validation.Field(&in.Password, validation.Required),
	)
}

// notBlank rejects strings made only of whitespace; Required lets them through.
func notBlank(value interface{}) error {
	s, _ := value.(string)
	if s != "" && strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
}

func maxBytes(n int) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if len(s) > n {
			return fmt.Errorf("must be at most %d bytes long", n)
		}
		return nil
	}
}

// AuthServiceProvider defines the interface for the authentication flow.
type AuthServiceProvider interface {
	Register(ctx context.Context, in RegisterInput) (models.User, error)
	Login(ctx context.Context, in LoginInput) (string, error)
	Me(ctx context.Context, session *auth.Session) (models.User, error)
	Logout(ctx context.Context, session *auth.Session) error
}

// AuthService orchestrates registration, login, current-user lookup and logout.
type AuthService struct {
	users  UserServiceProvider
	tokens TokenServiceProvider
	events EventServiceProvider
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserServiceProvider, tokens TokenServiceProvider, events EventServiceProvider) *AuthService {
	return &AuthService{users: users, tokens: tokens, events: events}
}

// Register validates the input and creates the user. It returns
// validation.Errors for missing fields and common.ErrDuplicateNIP for a taken NIP.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	if err := in.Validate(); err != nil {
		return models.User{}, err
	}

	user, err := s.users.CreateUser(ctx, in.Name, in.Prodi, in.NIP, in.Password)
	if err != nil {
		return models.User{}, err
	}

	s.record(ctx, EventRegister, "info", fmt.Sprintf("User with NIP %s registered.", user.NIP), &user.ID)
	return user, nil
}

// Login checks the credentials, then the device name, and mints a token.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}

	user, err := s.users.AuthenticateUser(ctx, in.NIP, in.Password)
	if err != nil {
		if errors.Is(err, common.ErrInvalidCredentials) {
			s.record(ctx, EventLoginFailed, "warn", fmt.Sprintf("Failed login attempt for NIP %s.", in.NIP), nil)
		}
		return "", err
	}

	if strings.TrimSpace(in.DeviceName) == "" {
		return "", common.ErrDeviceNameRequired
	}

	plain, token, err := s.tokens.IssueToken(ctx, user.ID, in.DeviceName)
	if err != nil {
		return "", err
	}

	s.record(ctx, EventLogin, "info", fmt.Sprintf("Token %d issued for device '%s'.", token.ID, token.Name), &user.ID)
	return plain, nil
}

// Me returns the user owning the session.
func (s *AuthService) Me(ctx context.Context, session *auth.Session) (models.User, error) {
	if session == nil {
		return models.User{}, common.ErrUnauthenticated
	}
	return session.User, nil
}

// Logout revokes the token that authenticated the session, leaving the
// user's other tokens untouched.
func (s *AuthService) Logout(ctx context.Context, session *auth.Session) error {
	if session == nil {
		return common.ErrUnauthenticated
	}
	if err := s.tokens.RevokeToken(ctx, session.Token.ID); err != nil {
		return err
	}

	s.record(ctx, EventLogout, "info", fmt.Sprintf("Token %d revoked.", session.Token.ID), &session.User.ID)
	return nil
}

// record writes an audit event; failures are logged and otherwise ignored.
func (s *AuthService) record(ctx context.Context, eventType, level, message string, userID *string) {
	if s.events == nil {
		return
	}
	if err := s.events.CreateEvent(ctx, eventType, level, message, userID); err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("Failed to record event")
	}
}

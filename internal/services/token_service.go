package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/isdelr/nip-auth/internal/auth"
	"github.com/isdelr/nip-auth/internal/common"
	"github.com/isdelr/nip-auth/internal/models"
	"github.com/rs/zerolog/log"
)

// TokenServiceProvider defines the interface for bearer token services.
type TokenServiceProvider interface {
	IssueToken(ctx context.Context, userID, name string) (string, models.PersonalAccessToken, error)
	ResolveToken(ctx context.Context, plain string) (models.User, models.PersonalAccessToken, error)
	RevokeToken(ctx context.Context, tokenID int64) error
}

// TokenService issues, resolves and revokes personal access tokens.
type TokenService struct {
	db *sql.DB
}

// NewTokenService creates a new TokenService.
func NewTokenService(db *sql.DB) *TokenService {
	return &TokenService{db: db}
}

const tokenWithUserQuery = `
	SELECT t.id, t.user_id, t.name, t.token, t.last_used_at, t.created_at,
	       u.id, u.name, u.prodi, u.nip, u.created_at, u.updated_at
	FROM personal_access_tokens t
	JOIN users u ON u.id = t.user_id
`

// IssueToken mints a token for userID labelled with the device name. The
// returned plaintext is the only copy of the secret.
func (s *TokenService) IssueToken(ctx context.Context, userID, name string) (string, models.PersonalAccessToken, error) {
	secret, err := auth.NewTokenSecret()
	if err != nil {
		return "", models.PersonalAccessToken{}, fmt.Errorf("failed to generate token: %w", err)
	}

	token := models.PersonalAccessToken{
		UserID:    userID,
		Name:      name,
		Token:     auth.HashToken(secret),
		CreatedAt: time.Now().UTC(),
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO personal_access_tokens (user_id, name, token, created_at) VALUES (?, ?, ?, ?)",
		token.UserID, token.Name, token.Token, token.CreatedAt)
	if err != nil {
		return "", models.PersonalAccessToken{}, fmt.Errorf("db error: %w", err)
	}
	token.ID, err = res.LastInsertId()
	if err != nil {
		return "", models.PersonalAccessToken{}, fmt.Errorf("db error: %w", err)
	}

	return auth.FormatPlainToken(token.ID, secret), token, nil
}

// ResolveToken returns the owner of a presented token and records its use.
// Unknown, malformed or mismatching tokens yield common.ErrInvalidToken.
func (s *TokenService) ResolveToken(ctx context.Context, plain string) (models.User, models.PersonalAccessToken, error) {
	id, secret, hasID, ok := auth.ParsePlainToken(plain)
	if !ok {
		return models.User{}, models.PersonalAccessToken{}, common.ErrInvalidToken
	}

	var row *sql.Row
	if hasID {
		row = s.db.QueryRowContext(ctx, tokenWithUserQuery+"WHERE t.id = ?", id)
	} else {
		row = s.db.QueryRowContext(ctx, tokenWithUserQuery+"WHERE t.token = ?", auth.HashToken(secret))
	}

	var (
		user       models.User
		token      models.PersonalAccessToken
		lastUsedAt sql.NullTime
	)
	err := row.Scan(&token.ID, &token.UserID, &token.Name, &token.Token, &lastUsedAt, &token.CreatedAt,
		&user.ID, &user.Name, &user.Prodi, &user.NIP, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, models.PersonalAccessToken{}, common.ErrInvalidToken
		}
		return models.User{}, models.PersonalAccessToken{}, fmt.Errorf("db error: %w", err)
	}

	if !auth.TokenMatches(secret, token.Token) {
		return models.User{}, models.PersonalAccessToken{}, common.ErrInvalidToken
	}

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, "UPDATE personal_access_tokens SET last_used_at = ? WHERE id = ?", now, token.ID); err != nil {
		log.Warn().Err(err).Int64("token_id", token.ID).Msg("Failed to record token usage")
		if lastUsedAt.Valid {
			token.LastUsedAt = &lastUsedAt.Time
		}
	} else {
		token.LastUsedAt = &now
	}

	return user, token, nil
}

// RevokeToken deletes a single token. Deleting a token that no longer
// exists yields common.ErrInvalidToken.
func (s *TokenService) RevokeToken(ctx context.Context, tokenID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM personal_access_tokens WHERE id = ?", tokenID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrInvalidToken
	}
	return nil
}

package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/nip-auth/internal/auth"
	"github.com/isdelr/nip-auth/internal/common"
	"github.com/isdelr/nip-auth/internal/database"
	"github.com/isdelr/nip-auth/internal/dbx"
	"github.com/isdelr/nip-auth/internal/models"
)

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	GetUserByNIP(ctx context.Context, nip string) (models.User, error)
	CreateUser(ctx context.Context, name, prodi, nip, password string) (models.User, error)
	AuthenticateUser(ctx context.Context, nip, password string) (models.User, error)
}

// UserService is the credential store backed by the users table.
type UserService struct {
	db        *sql.DB
	hasher    auth.PasswordHasher
	dummyHash string
}

// NewUserService creates a new UserService. It fails when the hasher cannot
// produce the dummy hash compared against for unknown NIPs.
func NewUserService(db *sql.DB, hasher auth.PasswordHasher) (*UserService, error) {
	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	return &UserService{db: db, hasher: hasher, dummyHash: dummy}, nil
}

// GetUserByNIP retrieves a single user by NIP, including the password hash.
func (s *UserService) GetUserByNIP(ctx context.Context, nip string) (models.User, error) {
	var user models.User
	row := s.db.QueryRowContext(ctx, "SELECT id, name, prodi, nip, password_hash, created_at, updated_at FROM users WHERE nip = ?", nip)
	err := row.Scan(&user.ID, &user.Name, &user.Prodi, &user.NIP, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, common.ErrNotFound
		}
		return models.User{}, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// CreateUser stores a new user with a hashed password. A NIP that is already
// registered yields common.ErrDuplicateNIP.
func (s *UserService) CreateUser(ctx context.Context, name, prodi, nip, password string) (models.User, error) {
	// skip hashing for NIPs that are obviously taken
	taken, err := nipTaken(ctx, s.db, nip)
	if err != nil {
		return models.User{}, err
	}
	if taken {
		return models.User{}, common.ErrDuplicateNIP
	}

	hashedPassword, err := s.hasher.Hash(password)
	if err != nil {
		return models.User{}, err
	}

	now := time.Now().UTC()
	user := models.User{
		ID:           uuid.New().String(),
		Name:         name,
		Prodi:        prodi,
		NIP:          nip,
		PasswordHash: hashedPassword,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		taken, err := nipTaken(ctx, tx, nip)
		if err != nil {
			return err
		}
		if taken {
			return common.ErrDuplicateNIP
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO users (id, name, prodi, nip, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			user.ID, user.Name, user.Prodi, user.NIP, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
		if err != nil {
			// lost a race with a concurrent registration
			if database.IsUniqueViolation(err) {
				return common.ErrDuplicateNIP
			}
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.User{}, err
	}

	// Return user without password hash
	user.PasswordHash = ""
	return user, nil
}

func nipTaken(ctx context.Context, q dbx.DBTX, nip string) (bool, error) {
	var exists int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM users WHERE nip = ?", nip).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

// AuthenticateUser verifies a user's credentials. Unknown NIPs and wrong
// passwords both yield common.ErrInvalidCredentials.
func (s *UserService) AuthenticateUser(ctx context.Context, nip, password string) (models.User, error) {
	user, err := s.GetUserByNIP(ctx, nip)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.hasher.Check(password, s.dummyHash)
			return models.User{}, common.ErrInvalidCredentials
		}
		return models.User{}, err
	}

	if !s.hasher.Check(password, user.PasswordHash) {
		return models.User{}, common.ErrInvalidCredentials
	}

	// Don't send the password hash to the client
	user.PasswordHash = ""
	return user, nil
}

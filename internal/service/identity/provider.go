// Package identity is the account service of record: lookup, creation and
// password verification by email.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/clubllm/backend/internal/config"
	"github.com/zhouzirui/clubllm/backend/internal/model/user"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("email and password are required")
)

// Provider is the identity provider consumed by the web tier.
type Provider interface {
	Create(ctx context.Context, email, password string) (user.User, error)
	Authenticate(ctx context.Context, email, password string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	Close() error
}

// Open picks the store matching cfg.DSN and applies its schema.
func Open(ctx context.Context, cfg config.IdentityConfig) (Provider, error) {
	if cfg.IsPostgres() {
		store, err := OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	store, err := OpenSQLite(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return store, nil
}

var (
	_ Provider = (*SQLiteStore)(nil)
	_ Provider = (*PostgresStore)(nil)
)

// NormalizeEmail trims and lower-cases an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// dummyHash is compared against when the email is unknown, so a miss costs
// the same as a wrong password.
var dummyHash = mustHash("clubllm-dummy-password")

func mustHash(password string) []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return hash
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// verify returns ErrInvalidCredentials unless password matches u's hash.
// A lookup miss (found == false) still pays for one comparison.
func verify(u user.User, found bool, password string) error {
	hash := dummyHash
	if found {
		hash = []byte(u.PasswordHash)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || !found {
		return ErrInvalidCredentials
	}
	return nil
}

func validateInput(email, password string) error {
	if email == "" || password == "" {
		return ErrInvalidInput
	}
	return nil
}

package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/clubllm/backend/internal/model/user"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    last_login_at DATETIME NOT NULL
);
`

// SQLiteStore keeps accounts in a SQLite database through the pure-Go driver.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens dsn and applies the schema. In-memory databases are
// pinned to one connection so every query sees the same data.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Create registers a new account.
func (s *SQLiteStore) Create(ctx context.Context, email, password string) (user.User, error) {
	email = NormalizeEmail(email)
	if err := validateInput(email, password); err != nil {
		return user.User{}, err
	}

	if _, err := s.GetByEmail(ctx, email); err == nil {
		return user.User{}, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return user.User{}, err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return user.User{}, err
	}

	now := s.now().UTC()
	u := user.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		LastLoginAt:  now,
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at, last_login_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt, u.LastLoginAt,
	)
	if err != nil {
		// a concurrent signup can slip between the lookup and the insert
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return user.User{}, ErrEmailTaken
		}
		return user.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// Authenticate verifies password for email and records the login.
func (s *SQLiteStore) Authenticate(ctx context.Context, email, password string) (user.User, error) {
	email = NormalizeEmail(email)
	if err := validateInput(email, password); err != nil {
		return user.User{}, ErrInvalidCredentials
	}

	u, err := s.GetByEmail(ctx, email)
	found := err == nil
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return user.User{}, err
	}
	if err := verify(u, found, password); err != nil {
		return user.User{}, err
	}

	u.LastLoginAt = s.now().UTC()
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, u.LastLoginAt, u.ID); err != nil {
		return user.User{}, fmt.Errorf("update last login: %w", err)
	}
	return u, nil
}

// GetByID looks up an account by identifier.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (user.User, error) {
	return s.queryOne(ctx, `SELECT id, email, password_hash, created_at, last_login_at FROM users WHERE id = ?`, id)
}

// GetByEmail looks up an account by normalized email.
func (s *SQLiteStore) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return s.queryOne(ctx, `SELECT id, email, password_hash, created_at, last_login_at FROM users WHERE email = ?`, NormalizeEmail(email))
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) queryOne(ctx context.Context, query string, arg any) (user.User, error) {
	var u user.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.LastLoginAt)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, ErrUserNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

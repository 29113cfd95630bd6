package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zhouzirui/clubllm/backend/internal/model/user"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_login_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

const uniqueViolation = "23505"

// PostgresStore keeps accounts in Postgres through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// OpenPostgres connects, pings and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(connectCtx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}

	return &PostgresStore{pool: pool, now: time.Now}, nil
}

// Create registers a new account.
func (s *PostgresStore) Create(ctx context.Context, email, password string) (user.User, error) {
	email = NormalizeEmail(email)
	if err := validateInput(email, password); err != nil {
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, created_at, last_login_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt, u.LastLoginAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return user.User{}, ErrEmailTaken
	}
	if err != nil {
		return user.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// Authenticate verifies password for email and records the login.
func (s *PostgresStore) Authenticate(ctx context.Context, email, password string) (user.User, error) {
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

	err = s.pool.QueryRow(ctx,
		`UPDATE users SET last_login_at = $1 WHERE id = $2 RETURNING last_login_at`,
		s.now().UTC(), u.ID,
	).Scan(&u.LastLoginAt)
	if err != nil {
		return user.User{}, fmt.Errorf("update last login: %w", err)
	}
	return u, nil
}

// GetByID looks up an account by identifier.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (user.User, error) {
	return s.queryOne(ctx, `SELECT id, email, password_hash, created_at, last_login_at FROM users WHERE id = $1`, id)
}

// GetByEmail looks up an account by normalized email.
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return s.queryOne(ctx, `SELECT id, email, password_hash, created_at, last_login_at FROM users WHERE email = $1`, NormalizeEmail(email))
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) queryOne(ctx context.Context, query string, arg any) (user.User, error) {
	var u user.User
	err := s.pool.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.LastLoginAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return user.User{}, ErrUserNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

package identity

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/zhouzirui/clubllm/backend/internal/config"
)

func openSQLiteForTest(t *testing.T) Provider {
	t.Helper()
	store, err := Open(context.Background(), config.IdentityConfig{DSN: "file::memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func openPostgresForTest(t *testing.T) Provider {
	t.Helper()
	dsn := os.Getenv("CLUBLLM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CLUBLLM_TEST_POSTGRES_DSN not set")
	}
	store, err := Open(context.Background(), config.IdentityConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// uniqueEmail keeps runs against a shared Postgres database independent.
func uniqueEmail(local string) string {
	return local + "+" + uuid.NewString()[:8] + "@example.com"
}

func TestSQLiteProvider(t *testing.T) {
	runProviderSuite(t, openSQLiteForTest)
}

func TestPostgresProvider(t *testing.T) {
	runProviderSuite(t, openPostgresForTest)
}

func runProviderSuite(t *testing.T, open func(t *testing.T) Provider) {
	ctx := context.Background()

	t.Run("create then authenticate", func(t *testing.T) {
		store := open(t)
		email := uniqueEmail("ada")

		created, err := store.Create(ctx, email, "correct horse")
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)
		require.Equal(t, NormalizeEmail(email), created.Email)
		require.NotEqual(t, "correct horse", created.PasswordHash)

		got, err := store.Authenticate(ctx, email, "correct horse")
		require.NoError(t, err)
		require.Equal(t, created.ID, got.ID)
		require.False(t, got.LastLoginAt.Before(created.LastLoginAt))
	})

	t.Run("email lookup is case-insensitive", func(t *testing.T) {
		store := open(t)
		email := uniqueEmail("grace")

		created, err := store.Create(ctx, "  "+email+" ", "hopper123")
		require.NoError(t, err)

		byEmail, err := store.GetByEmail(ctx, NormalizeEmail(email))
		require.NoError(t, err)
		require.Equal(t, created.ID, byEmail.ID)

		_, err = store.Authenticate(ctx, "GRACE"+email[len("grace"):], "hopper123")
		require.NoError(t, err)
	})

	t.Run("duplicate signup", func(t *testing.T) {
		store := open(t)
		email := uniqueEmail("dup")

		_, err := store.Create(ctx, email, "first-pass")
		require.NoError(t, err)

		_, err = store.Create(ctx, email, "second-pass")
		require.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("unknown email", func(t *testing.T) {
		store := open(t)

		_, err := store.Authenticate(ctx, uniqueEmail("ghost"), "whatever")
		require.ErrorIs(t, err, ErrInvalidCredentials)

		_, err = store.GetByEmail(ctx, uniqueEmail("ghost"))
		require.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("wrong password", func(t *testing.T) {
		store := open(t)
		email := uniqueEmail("linus")

		_, err := store.Create(ctx, email, "right-password")
		require.NoError(t, err)

		_, err = store.Authenticate(ctx, email, "wrong-password")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("get by id", func(t *testing.T) {
		store := open(t)

		created, err := store.Create(ctx, uniqueEmail("ken"), "thompson1")
		require.NoError(t, err)

		got, err := store.GetByID(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, created.Email, got.Email)

		_, err = store.GetByID(ctx, uuid.NewString())
		require.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("blank input", func(t *testing.T) {
		store := open(t)

		_, err := store.Create(ctx, "   ", "password")
		require.ErrorIs(t, err, ErrInvalidInput)

		_, err = store.Create(ctx, uniqueEmail("blank"), "")
		require.ErrorIs(t, err, ErrInvalidInput)

		_, err = store.Authenticate(ctx, "", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestNormalizeEmail(t *testing.T) {
	require.Equal(t, "ada@example.com", NormalizeEmail("  Ada@Example.COM "))
}

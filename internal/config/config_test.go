package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "SITE_URL", "CORS_ALLOWED_ORIGINS",
		"SESSION_SECRET", "SESSION_TTL", "SESSION_COOKIE_SECURE",
		"IDENTITY_DSN",
		"AI_PROVIDER", "AI_TIMEOUT", "AI_TEMPERATURE", "AI_MAX_TOKENS",
		"API_KEY", "OPENROUTER_API_KEY", "OPENROUTER_BASE_URL", "OPENROUTER_MODEL", "OPENROUTER_TITLE",
		"ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "ARK_MODEL", "ARK_BASE_URL", "ARK_REGION",
		"LOG_LEVEL", "LOG_PRETTY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, "http://localhost:8080", cfg.Server.SiteURL)
	require.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	require.Equal(t, 7*24*time.Hour, cfg.Session.TTL)
	require.Len(t, cfg.Session.Secret, 32)
	require.Equal(t, DefaultIdentityDSN, cfg.Identity.DSN)
	require.False(t, cfg.Identity.IsPostgres())
	require.Equal(t, ProviderOpenRouter, cfg.AI.Provider)
	require.Equal(t, DefaultOpenRouterModel, cfg.AI.OpenRouter.Model)
	require.Equal(t, DefaultTitle, cfg.AI.OpenRouter.Title)
	require.Equal(t, "http://localhost:8080", cfg.AI.OpenRouter.Referer)
	require.False(t, cfg.AI.Enabled(), "no API key configured")
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOpenRouterKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "legacy-key")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "legacy-key", cfg.AI.OpenRouter.APIKey)
	require.True(t, cfg.AI.Enabled())

	t.Setenv("OPENROUTER_API_KEY", "preferred-key")
	cfg, err = Load()
	require.NoError(t, err)
	require.Equal(t, "preferred-key", cfg.AI.OpenRouter.APIKey)
}

func TestLoadPortForms(t *testing.T) {
	clearEnv(t)

	t.Setenv("PORT", "127.0.0.1:9000")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)

	t.Setenv("PORT", "80 80")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	cases := map[string]string{
		"SESSION_TTL":           "forever",
		"SESSION_COOKIE_SECURE": "maybe",
		"AI_PROVIDER":           "llama",
		"AI_TIMEOUT":            "soon",
		"AI_TEMPERATURE":        "hot",
		"AI_MAX_TOKENS":         "lots",
		"LOG_PRETTY":            "sure",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)

			_, err := Load()
			require.Error(t, err)
			require.Contains(t, err.Error(), key)
		})
	}
}

func TestLoadSessionSecretAndList(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, ,http://b.test")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []byte("s3cret"), cfg.Session.Secret)
	require.Equal(t, 2*time.Hour, cfg.Session.TTL)
	require.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
}

func TestArkEnabled(t *testing.T) {
	cfg := AIConfig{Provider: ProviderArk, Ark: ArkConfig{Model: "doubao"}}
	require.False(t, cfg.Enabled())

	cfg.Ark.AccessKey = "ak"
	require.False(t, cfg.Enabled())

	cfg.Ark.SecretKey = "sk"
	require.True(t, cfg.Enabled())
}

func TestIdentityIsPostgres(t *testing.T) {
	require.True(t, IdentityConfig{DSN: "postgres://u:p@localhost/db"}.IsPostgres())
	require.True(t, IdentityConfig{DSN: "postgresql://localhost/db"}.IsPostgres())
	require.False(t, IdentityConfig{DSN: "file::memory:"}.IsPostgres())
}

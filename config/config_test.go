package config_test

import (
	"testing"
	"time"

	auth "github.com/goliatone/go-actor-auth"
	"github.com/goliatone/go-actor-auth/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ auth.Config = (*config.Config)(nil)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 8, cfg.GetTokenExpiration())
	assert.Equal(t, "header:Authorization", cfg.GetTokenLookup())
	assert.Equal(t, "Bearer", cfg.GetAuthScheme())
	assert.Equal(t, time.Minute, cfg.LoginRateWindow)
	assert.False(t, cfg.GetSingleSession())
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("JWT_AUDIENCE", "admin-portal,landlord-portal")
	t.Setenv("AUTH_SINGLE_SESSION", "true")
	t.Setenv("DB_DRIVER", "postgres")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"admin-portal", "landlord-portal"}, cfg.GetAudience())
	assert.True(t, cfg.GetSingleSession())
	assert.Equal(t, "postgres", cfg.DBDriver)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing secret", env: map[string]string{"JWT_SECRET": ""}},
		{name: "short secret in production", env: map[string]string{"JWT_SECRET": "short", "APP_ENV": "production"}},
		{name: "unknown driver", env: map[string]string{"JWT_SECRET": "test-secret", "DB_DRIVER": "mysql"}},
		{name: "zero expiration", env: map[string]string{"JWT_SECRET": "test-secret", "JWT_EXPIRATION_HOURS": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

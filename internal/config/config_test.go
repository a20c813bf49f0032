package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-sql-console/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "SESSION_STORE", "SESSION_TOKEN_LIFETIME_MINUTES", "RATE_LIMIT_RPS", "GOOGLE_REFRESH_TIMEOUT"} {
		t.Setenv(key, "")
	}
	c := config.New()

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, config.StoreMemory, c.GetSessionStore())
	require.Equal(t, 15*time.Minute, c.GetSessionTokenLifetime())
	require.Equal(t, 24*time.Hour, c.GetRefreshTokenLifetime())
	require.Equal(t, 10*time.Second, c.GetGoogleRefreshTimeout())
	require.InDelta(t, 20.0, c.GetRateLimitRPS(), 0.001)
}

func TestOverrides(t *testing.T) {
	t.Setenv("PORT", ":9090")
	t.Setenv("SESSION_STORE", config.StoreRedis)
	t.Setenv("SESSION_TOKEN_LIFETIME_MINUTES", "5")
	t.Setenv("GOOGLE_REFRESH_TIMEOUT", "3s")
	t.Setenv("RATE_LIMIT_BURST", "not-a-number")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test,")
	c := config.New()

	require.Equal(t, ":9090", c.GetPort())
	require.Equal(t, config.StoreRedis, c.GetSessionStore())
	require.Equal(t, 5*time.Minute, c.GetSessionTokenLifetime())
	require.Equal(t, 3*time.Second, c.GetGoogleRefreshTimeout())
	require.Equal(t, 40, c.GetRateLimitBurst())

	origins := c.GetAllowedOrigins()
	require.Len(t, origins, 2)
	require.True(t, origins.IsAllowedOrigin("http://b.test"))
	require.False(t, origins.IsAllowedOrigin("http://c.test"))
}

func TestExposedHeaders(t *testing.T) {
	require.Contains(t, config.New().GetExposedHeaders(), "refreshed-session-token")
}

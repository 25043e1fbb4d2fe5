package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("WS_PING_INTERVAL", "")
	cfg := LoadConfig()
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 30*time.Second, cfg.WSPingInterval)
	assert.Equal(t, 10*time.Second, cfg.WSHandshakeTimeout)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("WS_PING_INTERVAL", "15s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.workhub.io, https://admin.workhub.io")
	cfg := LoadConfig()
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, 15*time.Second, cfg.WSPingInterval)
	assert.Equal(t, []string{"https://app.workhub.io", "https://admin.workhub.io"}, cfg.CORSAllowedOrigins)
}

func TestSecureCookies(t *testing.T) {
	assert.False(t, Config{Env: "dev"}.SecureCookies())
	assert.False(t, Config{Env: "Local"}.SecureCookies())
	assert.True(t, Config{Env: "production"}.SecureCookies())
	assert.True(t, Config{Env: "staging"}.SecureCookies())
}

func TestNewServerWithMemoryStore(t *testing.T) {
	srv, err := NewServer(Config{
		Env:                "dev",
		Port:               "0",
		JWTSecret:          "secret-a",
		JWTRefreshSecret:   "secret-b",
		StoreDriver:        StoreDriverMemory,
		CORSAllowedOrigins: []string{"http://localhost:5173"},
	})
	require.NoError(t, err)
	assert.Nil(t, srv.DB)
	assert.NotNil(t, srv.HTTPServer.Handler)
}

func TestNewServerRejectsUnknownDriver(t *testing.T) {
	_, err := NewServer(Config{StoreDriver: "mongo"})
	assert.Error(t, err)
}

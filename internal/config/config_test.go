package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("REALTIME_URL", "wss://realtime.example.com/ws")
	t.Setenv("AUTH_TOKEN", "token")
}

func TestFromEnv_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg := FromEnv()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, TransportWebSocket, cfg.Realtime.Transport)
	assert.Equal(t, 20*time.Second, cfg.Realtime.HandshakeTimeout)
	assert.Equal(t, time.Second, cfg.Realtime.BaseDelay)
	assert.Equal(t, 5*time.Second, cfg.Realtime.MaxDelay)
	assert.Equal(t, 5, cfg.Realtime.MaxReconnectAttempts)
	assert.Equal(t, 20, cfg.API.PageSize)
	assert.Equal(t, ":8081", cfg.HTTP.Addr)
	assert.True(t, cfg.IsDevelopment())
}

func TestFromEnv_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REALTIME_TRANSPORT", "socketio")
	t.Setenv("REALTIME_PATH", "/socket.io/")
	t.Setenv("REALTIME_MAX_RECONNECT_ATTEMPTS", "-1")
	t.Setenv("REALTIME_BASE_DELAY", "250ms")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("API_PAGE_SIZE", "not-a-number")

	cfg := FromEnv()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, TransportSocketIO, cfg.Realtime.Transport)
	assert.Equal(t, -1, cfg.Realtime.MaxReconnectAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Realtime.BaseDelay)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 20, cfg.API.PageSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "missing url",
			mutate:  func(c *Config) { c.Realtime.URL = "" },
			wantErr: "Realtime.URL failed required",
		},
		{
			name:    "unknown transport",
			mutate:  func(c *Config) { c.Realtime.Transport = "grpc" },
			wantErr: "Realtime.Transport failed oneof",
		},
		{
			name:    "max delay below base delay",
			mutate:  func(c *Config) { c.Realtime.MaxDelay = time.Millisecond },
			wantErr: "Realtime.MaxDelay failed gtefield",
		},
		{
			name:    "attempts below -1",
			mutate:  func(c *Config) { c.Realtime.MaxReconnectAttempts = -2 },
			wantErr: "Realtime.MaxReconnectAttempts failed gte",
		},
		{
			name: "no credential source",
			mutate: func(c *Config) {
				c.Auth.Token = ""
			},
			wantErr: "one of AUTH_TOKEN, AUTH_TOKEN_FILE or AUTH_SIGNING_SECRET is required",
		},
		{
			name: "signing without user",
			mutate: func(c *Config) {
				c.Auth.Token = ""
				c.Auth.SigningSecret = "dev-secret"
			},
			wantErr: "AUTH_USER_ID is required",
		},
		{
			name: "production needs origins",
			mutate: func(c *Config) {
				c.App.Environment = "production"
			},
			wantErr: "HTTP_ALLOWED_ORIGINS must be set in production",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "trace" },
			wantErr: "Logging.Level failed oneof",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			cfg := FromEnv()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_String(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "postgres://user:secret@db:5432/ticketsync")

	s := FromEnv().String()

	assert.NotContains(t, s, "secret")
	assert.NotContains(t, s, "token")
	assert.Contains(t, s, "@db:5432/ticketsync")
}

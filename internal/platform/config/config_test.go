package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("INVOKE_API_URL", "http://localhost:9090")
	t.Setenv("INVOKE_SOCKET_URL", "ws://localhost:9090/ws")
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
}

func TestLoad_AllRequiredVarsSet(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9090", cfg.InvokeAPIURL)
	assert.Equal(t, "ws://localhost:9090/ws", cfg.InvokeSocketURL)
	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name    string
		skipEnv string
		wantErr string
	}{
		{"missing INVOKE_API_URL", "INVOKE_API_URL", "INVOKE_API_URL is required"},
		{"missing INVOKE_SOCKET_URL", "INVOKE_SOCKET_URL", "INVOKE_SOCKET_URL is required"},
		{"missing DATABASE_URL", "DATABASE_URL", "DATABASE_URL is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.skipEnv, "")

			_, err := Load()
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "default", cfg.QueueID)
	assert.Equal(t, 300*time.Millisecond, cfg.QuietPeriod)
	assert.Equal(t, time.Duration(0), cfg.CompletionTimeout)
	assert.Equal(t, time.Hour, cfg.ImageDTOCacheTTL)
}

func TestLoad_CustomPortAndEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "8081")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, "8081", cfg.Port)
}

func TestLoad_SocketURLMustBeWebsocket(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("INVOKE_SOCKET_URL", "http://localhost:9090/ws")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ws or wss scheme")
}

func TestLoad_QuietPeriodMustBePositive(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PREPROCESS_QUIET_PERIOD", "0s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PREPROCESS_QUIET_PERIOD must be positive")
}

func TestLoad_CompletionTimeoutMustNotBeNegative(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PREPROCESS_COMPLETION_TIMEOUT", "-1s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PREPROCESS_COMPLETION_TIMEOUT must not be negative")
}

func TestLoad_EffectTuning(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PREPROCESS_QUIET_PERIOD", "150ms")
	t.Setenv("PREPROCESS_COMPLETION_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 150*time.Millisecond, cfg.QuietPeriod)
	assert.Equal(t, 30*time.Second, cfg.CompletionTimeout)
}

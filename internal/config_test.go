package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

// setBaseEnv sets the minimum environment for a valid memory-backed config.
func setBaseEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"ENV", "PORT", "CACHE_DRIVER", "AI_PROVIDER", "STORAGE_PROVIDER", "TIMEZONE", "STRIPE_SECRET_KEY", "LOCAL_STORAGE_URL"} {
		t.Setenv(key, "")
	}
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", testJWTSecret)
	t.Setenv("LOCAL_STORAGE_SIGNING_KEY", "signing-key")
}

func TestNewConfig_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "memory", cfg.CacheDriver)
	assert.Equal(t, "mock", cfg.AIProvider)
	assert.Equal(t, "local", cfg.StorageProvider)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.InviteTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.Equal(t, 20, cfg.AIRateLimitPerMinute)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.False(t, cfg.IsSecure())
	assert.Equal(t, "/files/", cfg.FilesPath())
}

func TestNewConfig_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("TIMEZONE", "America/New_York")
	t.Setenv("RATES_TTL", "30m")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "60")
	t.Setenv("LOCAL_STORAGE_URL", "https://cairn.example.com/downloads")
	t.Setenv("OBJECT_PATH_STYLE", "true")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsSecure())
	assert.Equal(t, "America/New_York", cfg.Location().String())
	assert.Equal(t, 30*time.Minute, cfg.RatesTTL)
	assert.Equal(t, 60, cfg.RateLimitPerMinute)
	assert.Equal(t, "/downloads/", cfg.FilesPath())
	assert.True(t, cfg.ObjectPathStyle)
}

func TestNewConfig_MalformedNumbersFallBack(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PORT", "eighty")
	t.Setenv("JWT_TTL", "a day")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
}

func TestNewConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "postgres without database url",
			env:     map[string]string{"STORE_DRIVER": "postgres"},
			wantErr: "DATABASE_URL",
		},
		{
			name:    "unknown store driver",
			env:     map[string]string{"STORE_DRIVER": "sqlite"},
			wantErr: "STORE_DRIVER",
		},
		{
			name:    "unknown cache driver",
			env:     map[string]string{"CACHE_DRIVER": "memcached"},
			wantErr: "CACHE_DRIVER",
		},
		{
			name:    "short jwt secret",
			env:     map[string]string{"JWT_SECRET": "short"},
			wantErr: "JWT_SECRET",
		},
		{
			name:    "bad timezone",
			env:     map[string]string{"TIMEZONE": "Mars/Olympus"},
			wantErr: "TIMEZONE",
		},
		{
			name:    "local storage without signing key",
			env:     map[string]string{"LOCAL_STORAGE_SIGNING_KEY": ""},
			wantErr: "LOCAL_STORAGE_SIGNING_KEY",
		},
		{
			name:    "r2 without account",
			env:     map[string]string{"STORAGE_PROVIDER": "r2"},
			wantErr: "R2_ACCOUNT_ID",
		},
		{
			name:    "s3 without bucket",
			env:     map[string]string{"STORAGE_PROVIDER": "s3", "OBJECT_ACCESS_KEY_ID": "id", "OBJECT_SECRET_ACCESS_KEY": "secret"},
			wantErr: "OBJECT_BUCKET",
		},
		{
			name:    "unknown storage provider",
			env:     map[string]string{"STORAGE_PROVIDER": "ftp"},
			wantErr: "STORAGE_PROVIDER",
		},
		{
			name:    "anthropic without key",
			env:     map[string]string{"AI_PROVIDER": "anthropic"},
			wantErr: "ANTHROPIC_API_KEY",
		},
		{
			name:    "openai without key",
			env:     map[string]string{"AI_PROVIDER": "openai"},
			wantErr: "OPENAI_API_KEY",
		},
		{
			name:    "unknown ai provider",
			env:     map[string]string{"AI_PROVIDER": "llama"},
			wantErr: "AI_PROVIDER",
		},
		{
			name:    "stripe key without webhook secret",
			env:     map[string]string{"STRIPE_SECRET_KEY": "sk_test_1"},
			wantErr: "STRIPE_WEBHOOK_SECRET",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := NewConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

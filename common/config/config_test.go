package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("vcd")
	require.NoError(t, err)

	assert.Equal(t, "vcd", cfg.Service.Name)
	assert.Equal(t, 5*time.Second, cfg.Database.TxTimeout)
	assert.Equal(t, 60*time.Second, cfg.Claim.LockTTL)
	assert.False(t, cfg.Claim.CreatorBypass)
	assert.False(t, cfg.Captcha.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Claim.StatsInterval)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("CLAIM_CREATOR_BYPASS", "true")
	t.Setenv("CLAIM_LOCK_TTL", "2m")
	t.Setenv("CAPTCHA_ENABLED", "1")

	cfg, err := Load("vcd")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Service.Port)
	assert.Equal(t, "cache:6380", cfg.RedisAddr())
	assert.True(t, cfg.Claim.CreatorBypass)
	assert.Equal(t, 2*time.Minute, cfg.Claim.LockTTL)
	assert.True(t, cfg.Captcha.Enabled)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("POSTGRES_PORT", "not-a-number")
	t.Setenv("CLAIM_LOCK_TTL", "soon")

	cfg, err := Load("vcd")
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 60*time.Second, cfg.Claim.LockTTL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Service.Port = 0 }},
		{"empty db host", func(c *Config) { c.Database.Host = "" }},
		{"max below min conns", func(c *Config) { c.Database.MaxConns = 1; c.Database.MinConns = 2 }},
		{"zero tx timeout", func(c *Config) { c.Database.TxTimeout = 0 }},
		{"empty redis host", func(c *Config) { c.Redis.Host = "" }},
		{"zero redis read timeout", func(c *Config) { c.Redis.ReadTimeout = 0 }},
		{"zero lock ttl", func(c *Config) { c.Claim.LockTTL = 0 }},
		{"tiny throttle window", func(c *Config) { c.Claim.ThrottleWindow = time.Millisecond }},
		{"zero stats interval", func(c *Config) { c.Claim.StatsInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("vcd")
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

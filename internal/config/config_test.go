package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.App.Env)
	assert.Equal(t, ":8082", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "memory", cfg.Cache.Kind)
	assert.Equal(t, "memory", cfg.Challenge.Backend)
	assert.Equal(t, "mfa_required", cfg.Resolver.OnLookupFailure)
	assert.Equal(t, 30*24*time.Hour, cfg.Trust.TTL)
	assert.Equal(t, 15*time.Minute, cfg.Session.TTL)
	assert.Equal(t, 1, cfg.Timecode.WindowSteps)
	assert.Equal(t, "console", cfg.Log.Format) // dev => console
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
app:
  app_env: staging
server:
  addr: ":9000"
storage:
  driver: memory
lookup:
  base_url: "https://idp.internal"
  static:
    u-1: "ada@example.com"
session:
  issuer: "mfa-front"
rate:
  enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.App.Env)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "https://idp.internal", cfg.Lookup.BaseURL)
	assert.Equal(t, "ada@example.com", cfg.Lookup.Static["u-1"])
	assert.Equal(t, "mfa-front", cfg.Session.Issuer)
	assert.True(t, cfg.Rate.Enabled)
	assert.Equal(t, "json", cfg.Log.Format) // no-dev => json
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "PROD")
	t.Setenv("SERVER_ADDR", ":7777")
	t.Setenv("SESSION_TTL", "5m")
	t.Setenv("WEBAUTHN_RP_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SIDECHANNEL_DEBUG_ECHO_CODES", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, ":7777", cfg.Server.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Session.TTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.WebAuthn.RPOrigins)

	// prod apaga el eco de códigos aunque el entorno lo pida
	assert.False(t, cfg.Sidechannel.DebugEchoCodes)
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"driver desconocido", func(c *Config) { c.Storage.Driver = "cassandra" }},
		{"postgres sin dsn", func(c *Config) { c.Storage.Driver = "postgres"; c.Storage.DSN = "" }},
		{"redis sin addr", func(c *Config) { c.Cache.Kind = "redis"; c.Cache.Redis.Addr = "" }},
		{"challenge redis sin addr", func(c *Config) { c.Challenge.Backend = "redis"; c.Cache.Redis.Addr = "" }},
		{"policy desconocida", func(c *Config) { c.Resolver.OnLookupFailure = "allow" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
env: production
server:
  addr: ":9090"
  allowed_origins: ["https://skyguidehub.com"]
store:
  driver: postgres
  dsn: "postgres://localhost/alpha?sslmode=disable"
signup:
  limit: 500
  mode: approximate
email:
  provider: ses
  from: "alpha@skyguide.site"
  ses:
    region: ap-southeast-2
dispatch:
  chunk_size: 40
  granularity: chunk
  concurrency: 4
  send_timeout_seconds: 5
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"https://skyguidehub.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 500, cfg.Signup.Limit)
	assert.Equal(t, "approximate", cfg.Signup.Mode)
	assert.Equal(t, "ses", cfg.Email.Provider)
	assert.Equal(t, "ap-southeast-2", cfg.Email.SES.Region)
	assert.Equal(t, 40, cfg.Dispatch.ChunkSize)
	assert.Equal(t, 50, cfg.Dispatch.ProviderLimit, "default provider limit")
	assert.Equal(t, 5*time.Second, cfg.Dispatch.SendTimeout())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_UnknownKey(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("signup:\n  limt: 5\n"), 0644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 350, cfg.Signup.Limit)
	assert.Equal(t, "strict", cfg.Signup.Mode)
	assert.Equal(t, 45, cfg.Dispatch.ChunkSize)
	assert.Equal(t, 50, cfg.Dispatch.ProviderLimit)
	assert.Equal(t, "address", cfg.Dispatch.Granularity)
	assert.Equal(t, "SkyGuide Alpha Program", cfg.Brand.Program)
	assert.False(t, cfg.IsProduction())
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SIGNUP_LIMIT":              "10",
		"DATABASE_URL":              "postgres://db/alpha",
		"RESEND_API_KEY":            "re_123",
		"RESEND_FROM_EMAIL":         "alpha@skyguide.site",
		"MASS_EMAIL_SECRET_KEY":     "s3cret",
		"PORT":                      "3000",
		"ALPHAGATE_ALLOWED_ORIGINS": "https://a.example, https://b.example ,",
	}
	cfg := Default()
	require.NoError(t, cfg.applyEnv(func(k string) string { return env[k] }))

	assert.Equal(t, 10, cfg.Signup.Limit)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://db/alpha", cfg.Store.DSN)
	assert.Equal(t, "re_123", cfg.Email.ResendAPIKey)
	assert.Equal(t, "alpha@skyguide.site", cfg.Email.From)
	assert.Equal(t, "s3cret", cfg.Dispatch.Secret)
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestApplyEnv_BadInteger(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(k string) string {
		if k == "SIGNUP_LIMIT" {
			return "lots"
		}
		return ""
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SIGNUP_LIMIT")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SIGNUP_LIMIT", "25")
	t.Setenv("ALPHAGATE_ADMISSION_MODE", "approximate")

	cfg, err := LoadFromEnv("")
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Signup.Limit)
	assert.Equal(t, "approximate", cfg.Signup.Mode)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"chunk equals provider limit", func(c *Config) { c.Dispatch.ChunkSize = 50 }, "chunk_size"},
		{"zero limit", func(c *Config) { c.Signup.Limit = -1 }, "signup.limit"},
		{"locked without redis", func(c *Config) { c.Signup.Mode = "locked" }, "redis.addr"},
		{"unknown mode", func(c *Config) { c.Signup.Mode = "yolo" }, "signup.mode"},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = "postgres" }, "store.dsn"},
		{"unknown provider", func(c *Config) { c.Email.Provider = "carrier-pigeon" }, "email.provider"},
		{"bad granularity", func(c *Config) { c.Dispatch.Granularity = "batch" }, "granularity"},
		{"short csrf key", func(c *Config) { c.Server.CSRFKey = "short" }, "csrf_key"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

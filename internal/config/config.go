// Package config loads service configuration from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the service.
type Config struct {
	Env      string         `yaml:"env"`
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Signup   SignupConfig   `yaml:"signup"`
	Redis    RedisConfig    `yaml:"redis"`
	Email    EmailConfig    `yaml:"email"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Brand    BrandConfig    `yaml:"brand"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr                string   `yaml:"addr"`
	ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`
	AllowedOrigins      []string `yaml:"allowed_origins"`
	RateLimitPerMinute  int      `yaml:"rate_limit_per_minute"`
	RateLimitBurst      int      `yaml:"rate_limit_burst"`
	CSRFKey             string   `yaml:"csrf_key"` // 32 bytes; empty disables form CSRF checks
	TrustProxy          bool     `yaml:"trust_proxy"`
}

// StoreConfig selects the signup store.
type StoreConfig struct {
	Driver      string `yaml:"driver"` // sqlite | postgres
	Path        string `yaml:"path"`   // sqlite file
	DSN         string `yaml:"dsn"`    // postgres connection string
	SlowQueryMs int    `yaml:"slow_query_ms"`
}

// SignupConfig holds admission settings.
type SignupConfig struct {
	Limit          int    `yaml:"limit"`
	Mode           string `yaml:"mode"` // approximate | strict | locked
	DisableWelcome bool   `yaml:"disable_welcome_email"`
}

// RedisConfig holds the admission lock backend.
type RedisConfig struct {
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
	LockWaitMs     int    `yaml:"lock_wait_ms"`
}

// EmailConfig selects and configures the delivery provider.
type EmailConfig struct {
	Provider     string    `yaml:"provider"` // resend | ses | noop
	From         string    `yaml:"from"`
	ReplyTo      string    `yaml:"reply_to"`
	ResendAPIKey string    `yaml:"resend_api_key"`
	SES          SESConfig `yaml:"ses"`
}

// SESConfig holds AWS SES settings.
type SESConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`
}

// DispatchConfig holds batch notification settings.
type DispatchConfig struct {
	Secret             string `yaml:"secret"`
	SecretHash         string `yaml:"secret_hash"` // bcrypt hash; preferred over Secret
	ChunkSize          int    `yaml:"chunk_size"`
	ProviderLimit      int    `yaml:"provider_limit"`
	Granularity        string `yaml:"granularity"` // address | chunk
	Concurrency        int    `yaml:"concurrency"`
	SendTimeoutSeconds int    `yaml:"send_timeout_seconds"`
}

// BrandConfig holds the names and links used in email layouts.
type BrandConfig struct {
	Product string `yaml:"product"`
	Program string `yaml:"program"`
	SiteURL string `yaml:"site_url"`
	LogoURL string `yaml:"logo_url"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// ReadTimeout returns the server read timeout.
func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the server write timeout.
func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// SlowQuery returns the slow query threshold.
func (c StoreConfig) SlowQuery() time.Duration {
	return time.Duration(c.SlowQueryMs) * time.Millisecond
}

// LockTTL returns the admission lock expiry.
func (c RedisConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// LockWait returns how long to wait for the admission lock.
func (c RedisConfig) LockWait() time.Duration {
	return time.Duration(c.LockWaitMs) * time.Millisecond
}

// SendTimeout returns the per-call provider timeout.
func (c DispatchConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// IsProduction reports whether Env is "production".
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 10
	}
	if c.Server.WriteTimeoutSeconds == 0 {
		c.Server.WriteTimeoutSeconds = 120
	}
	if c.Server.RateLimitPerMinute == 0 {
		c.Server.RateLimitPerMinute = 10
	}
	if c.Server.RateLimitBurst == 0 {
		c.Server.RateLimitBurst = 5
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Path == "" {
		c.Store.Path = "alphagate.db"
	}
	if c.Store.SlowQueryMs == 0 {
		c.Store.SlowQueryMs = 50
	}
	if c.Signup.Limit == 0 {
		c.Signup.Limit = 350
	}
	if c.Signup.Mode == "" {
		c.Signup.Mode = "strict"
	}
	if c.Redis.LockTTLSeconds == 0 {
		c.Redis.LockTTLSeconds = 5
	}
	if c.Redis.LockWaitMs == 0 {
		c.Redis.LockWaitMs = 2000
	}
	if c.Email.Provider == "" {
		c.Email.Provider = "resend"
	}
	if c.Email.SES.Region == "" {
		c.Email.SES.Region = "us-east-1"
	}
	if c.Dispatch.ChunkSize == 0 {
		c.Dispatch.ChunkSize = 45
	}
	if c.Dispatch.ProviderLimit == 0 {
		c.Dispatch.ProviderLimit = 50
	}
	if c.Dispatch.Granularity == "" {
		c.Dispatch.Granularity = "address"
	}
	if c.Dispatch.Concurrency == 0 {
		c.Dispatch.Concurrency = 1
	}
	if c.Dispatch.SendTimeoutSeconds == 0 {
		c.Dispatch.SendTimeoutSeconds = 15
	}
	if c.Brand.Product == "" {
		c.Brand.Product = "SkyGuide"
	}
	if c.Brand.Program == "" {
		c.Brand.Program = c.Brand.Product + " Alpha Program"
	}
	if c.Brand.SiteURL == "" {
		c.Brand.SiteURL = "https://skyguidehub.com"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Load reads and parses the configuration file. An empty path yields defaults.
// PRE: path is empty or names a readable YAML file
// POST: Returns a config with defaults applied; unknown keys are rejected
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config: %w", err)
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file in the working directory is loaded first if present.
// PRE: path is empty or names a readable YAML file
// POST: Returns a config with file values, then env overrides, then defaults
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s must be an integer: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("ALPHAGATE_ENV", &c.Env)
	str("ALPHAGATE_ADDR", &c.Server.Addr)
	if v := getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}
	if v := getenv("ALPHAGATE_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	num("ALPHAGATE_RATE_LIMIT_PER_MINUTE", &c.Server.RateLimitPerMinute)
	str("ALPHAGATE_CSRF_KEY", &c.Server.CSRFKey)

	str("ALPHAGATE_DB_PATH", &c.Store.Path)
	if v := getenv("DATABASE_URL"); v != "" {
		c.Store.Driver = "postgres"
		c.Store.DSN = v
	}
	num("ALPHAGATE_SLOW_QUERY_MS", &c.Store.SlowQueryMs)

	num("SIGNUP_LIMIT", &c.Signup.Limit)
	str("ALPHAGATE_ADMISSION_MODE", &c.Signup.Mode)

	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)

	str("ALPHAGATE_EMAIL_PROVIDER", &c.Email.Provider)
	str("RESEND_API_KEY", &c.Email.ResendAPIKey)
	str("RESEND_FROM_EMAIL", &c.Email.From)
	str("ALPHAGATE_REPLY_TO", &c.Email.ReplyTo)
	str("AWS_SES_ACCESS_KEY", &c.Email.SES.AccessKey)
	str("AWS_SES_SECRET_KEY", &c.Email.SES.SecretKey)
	str("AWS_SES_REGION", &c.Email.SES.Region)

	str("MASS_EMAIL_SECRET_KEY", &c.Dispatch.Secret)
	str("MASS_EMAIL_SECRET_HASH", &c.Dispatch.SecretHash)
	num("ALPHAGATE_CHUNK_SIZE", &c.Dispatch.ChunkSize)
	num("ALPHAGATE_DISPATCH_CONCURRENCY", &c.Dispatch.Concurrency)
	str("ALPHAGATE_DISPATCH_GRANULARITY", &c.Dispatch.Granularity)

	str("LOG_LEVEL", &c.Log.Level)

	return errors.Join(errs...)
}

// Validate reports every configuration problem found.
// POST: Returns nil or an error joining one message per problem
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			add("store.path is required for sqlite")
		}
	case "postgres":
		if c.Store.DSN == "" {
			add("store.dsn is required for postgres")
		}
	default:
		add("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}

	if c.Signup.Limit <= 0 {
		add("signup.limit must be positive, got %d", c.Signup.Limit)
	}
	switch c.Signup.Mode {
	case "approximate", "strict":
	case "locked":
		if c.Redis.Addr == "" {
			add("redis.addr is required for locked admission")
		}
	default:
		add("signup.mode must be approximate, strict or locked, got %q", c.Signup.Mode)
	}

	switch c.Email.Provider {
	case "resend", "ses", "noop":
	default:
		add("email.provider must be resend, ses or noop, got %q", c.Email.Provider)
	}

	if c.Dispatch.ProviderLimit <= 0 {
		add("dispatch.provider_limit must be positive")
	}
	if c.Dispatch.ChunkSize <= 0 || c.Dispatch.ChunkSize >= c.Dispatch.ProviderLimit {
		add("dispatch.chunk_size must be between 1 and %d, got %d", c.Dispatch.ProviderLimit-1, c.Dispatch.ChunkSize)
	}
	if c.Dispatch.Granularity != "address" && c.Dispatch.Granularity != "chunk" {
		add("dispatch.granularity must be address or chunk, got %q", c.Dispatch.Granularity)
	}
	if c.Dispatch.Concurrency < 1 {
		add("dispatch.concurrency must be at least 1")
	}

	if c.Server.CSRFKey != "" && len(c.Server.CSRFKey) != 32 {
		add("server.csrf_key must be exactly 32 bytes")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

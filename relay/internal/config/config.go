// Package config handles relay configuration loading and validation.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Admission policies applied when a tenant already has an admitted session.
const (
	PolicyStrict  = "strict"  // reject the newcomer, keep the occupant
	PolicyReplace = "replace" // evict the occupant, admit the newcomer
)

// knownWeakSecrets is a blocklist of secrets that must never be used in production.
var knownWeakSecrets = map[string]bool{
	"changeme": true,
	"secret":   true,
	"no_token": true,
}

// GenerateRandomSecret returns a cryptographically random 64-character hex string
// suitable for use as a JWT or signing secret.
func GenerateRandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Config is the top-level relay configuration.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Auth      AuthConfig      `json:"auth" yaml:"auth"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Session   SessionConfig   `json:"session" yaml:"session"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	RateLimit RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// ServerConfig defines the relay's listener settings.
type ServerConfig struct {
	Addr           string   `json:"addr" yaml:"addr"`                                             // e.g. ":3000"
	TLSCert        string   `json:"tls_cert,omitempty" yaml:"tls_cert,omitempty"`
	TLSKey         string   `json:"tls_key,omitempty" yaml:"tls_key,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"` // CORS + websocket origins; default ["*"]
	MaxBodyBytes   int64    `json:"max_body_bytes,omitempty" yaml:"max_body_bytes,omitempty"`   // default 1MB
}

// AuthConfig defines operator authentication and request signing.
// Leaving AdminPasswordHash empty keeps the admin API open, as does an empty
// SendSecret for /api/venta.
type AuthConfig struct {
	JWTSecret         string   `json:"jwt_secret,omitempty" yaml:"jwt_secret,omitempty"`
	JWTExpiry         Duration `json:"jwt_expiry,omitempty" yaml:"jwt_expiry,omitempty"`
	AdminUsername     string   `json:"admin_username,omitempty" yaml:"admin_username,omitempty"`
	AdminPasswordHash string   `json:"admin_password_hash,omitempty" yaml:"admin_password_hash,omitempty"` // bcrypt
	SendSecret        string   `json:"send_secret,omitempty" yaml:"send_secret,omitempty"`                 // HMAC key for X-Signature
}

// AdminEnabled reports whether admin routes require a login.
func (a AuthConfig) AdminEnabled() bool {
	return a.AdminPasswordHash != ""
}

// StorageConfig defines where tenant tokens are persisted.
type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "file" (default), "sqlite" or "postgres"
	DSN    string `json:"dsn" yaml:"dsn"`       // file path, sqlite DSN or postgres URL
}

// SessionConfig defines session admission and transport behavior.
type SessionConfig struct {
	Policy          string   `json:"policy,omitempty" yaml:"policy,omitempty"`                       // "strict" (default) or "replace"
	MaxMessageBytes int64    `json:"max_message_bytes,omitempty" yaml:"max_message_bytes,omitempty"` // default 64KB
	PingInterval    Duration `json:"ping_interval,omitempty" yaml:"ping_interval,omitempty"`         // default 30s
	RegisterTimeout Duration `json:"register_timeout,omitempty" yaml:"register_timeout,omitempty"`   // 0 disables
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"` // "json" or "text"
}

// RateLimitConfig defines per-IP rate limiting for public endpoints.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"` // default 10
	Burst             int     `json:"burst,omitempty" yaml:"burst,omitempty"`                             // default 20
}

// Duration is a JSON/YAML-friendly time.Duration.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v any) error {
	switch val := v.(type) {
	case string:
		dur, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		d.Duration = dur
	case float64:
		d.Duration = time.Duration(val) * time.Second
	case int:
		d.Duration = time.Duration(val) * time.Second
	default:
		return fmt.Errorf("invalid duration: %v", v)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Load reads and validates a config file. Files ending in .yaml or .yml are
// decoded as YAML, everything else as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes cfg to path, choosing the encoding from the file extension.
func Save(path string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	switch c.Storage.Driver {
	case "", "file", "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required for postgres")
	}
	switch c.Session.Policy {
	case "", PolicyStrict, PolicyReplace:
	default:
		return fmt.Errorf("session.policy must be %q or %q", PolicyStrict, PolicyReplace)
	}
	if c.Auth.AdminEnabled() {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is required when admin login is enabled")
		}
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
		}
	}
	if knownWeakSecrets[c.Auth.JWTSecret] || knownWeakSecrets[c.Auth.SendSecret] {
		return fmt.Errorf("auth secrets must not be well-known weak values")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 1024 * 1024 // 1MB
	}
	if c.Auth.JWTExpiry.Duration == 0 {
		c.Auth.JWTExpiry.Duration = 12 * time.Hour
	}
	if c.Auth.AdminUsername == "" {
		c.Auth.AdminUsername = "admin"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.DSN == "" {
		switch c.Storage.Driver {
		case "sqlite":
			c.Storage.DSN = "wha-relay.db"
		default:
			c.Storage.DSN = "tokens.json"
		}
	}
	if c.Session.Policy == "" {
		c.Session.Policy = PolicyStrict
	}
	if c.Session.MaxMessageBytes == 0 {
		c.Session.MaxMessageBytes = 64 * 1024 // 64KB
	}
	if c.Session.PingInterval.Duration == 0 {
		c.Session.PingInterval.Duration = 30 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 10
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
}

// Default returns a config with only defaults applied, listening on addr.
func Default(addr string) *Config {
	cfg := &Config{Server: ServerConfig{Addr: addr}}
	cfg.applyDefaults()
	return cfg
}

// Package config loads the gate configuration from a YAML file.
package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete gate configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Origin    OriginConfig    `yaml:"origin"`
	Identity  IdentityConfig  `yaml:"identity"`
	Cookie    CookieConfig    `yaml:"cookie"`
	Challenge ChallengeConfig `yaml:"challenge"`
	Verifier  VerifierConfig  `yaml:"verifier"`
	Policy    PolicyConfig    `yaml:"policy"`
	Audit     AuditConfig     `yaml:"audit"`
	Admin     AdminConfig     `yaml:"admin"`
}

// ServerConfig configures the listening side of the gate.
type ServerConfig struct {
	Address string    `yaml:"address"`
	TLS     TLSConfig `yaml:"tls"`
}

// TLSConfig configures TLS.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// OriginConfig points at the protected origin service.
type OriginConfig struct {
	URL string `yaml:"url"`
}

// IdentityConfig selects the trusted edge headers carrying the client's
// network identity, in priority order.
type IdentityConfig struct {
	Headers []string `yaml:"headers"`
}

// CookieConfig configures the session cookie.
type CookieConfig struct {
	Name   string `yaml:"name"`
	Scheme string `yaml:"scheme"` // "aead", "hmac"
	Secret string `yaml:"secret"` // hex-encoded, min 256-bit
}

// ChallengeConfig configures the challenge flow.
type ChallengeConfig struct {
	Mode           string `yaml:"mode"` // "inline", "redirect"
	PublishableKey string `yaml:"publishable_key"`
}

// VerifierConfig selects and configures the risk verifier.
type VerifierConfig struct {
	Mode   string               `yaml:"mode"` // "remote", "local"
	Remote RemoteVerifierConfig `yaml:"remote"`
	Local  LocalVerifierConfig  `yaml:"local"`
}

// RemoteVerifierConfig configures the remote assessment API.
type RemoteVerifierConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// LocalVerifierConfig configures in-process bundle verification.
type LocalVerifierConfig struct {
	PublicKeyPEM string `yaml:"public_key_pem"`
	Secret       string `yaml:"secret"` // hex-encoded shared HMAC key
}

// PolicyConfig configures the assessment policy.
type PolicyConfig struct {
	ExemptedServices []string      `yaml:"exempted_services"`
	Tolerance        time.Duration `yaml:"tolerance"`

	// DisableIdentityCheck skips comparing the assessment's bound
	// identity against the caller. Off by default; the check is kept.
	DisableIdentityCheck bool `yaml:"disable_identity_check"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	Enabled       bool           `yaml:"enabled"`
	Database      DatabaseConfig `yaml:"database"`
	RetentionDays int            `yaml:"retention_days"`
}

// DatabaseConfig configures the audit database connection.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// AdminConfig configures the operator API.
type AdminConfig struct {
	Enabled bool          `yaml:"enabled"`
	Keys    []AdminKeyDef `yaml:"keys"`
}

// AdminKeyDef defines an operator API key. The key value itself is never
// stored; only its bcrypt hash.
type AdminKeyDef struct {
	Name    string `yaml:"name"`
	KeyHash string `yaml:"key_hash"`
}

// Load reads configuration from a file.
// The path is expected to come from command line arguments, controlled by the administrator.
func Load(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration bytes, expanding ${VAR} environment
// references and applying defaults.
func Parse(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if len(cfg.Identity.Headers) == 0 {
		cfg.Identity.Headers = []string{"CF-Connecting-IP", "X-Real-IP"}
	}
	if cfg.Cookie.Name == "" {
		cfg.Cookie.Name = "MCLVALID"
	}
	if cfg.Cookie.Scheme == "" {
		cfg.Cookie.Scheme = "aead"
	}
	if cfg.Challenge.Mode == "" {
		cfg.Challenge.Mode = "inline"
	}
	if cfg.Verifier.Mode == "" {
		cfg.Verifier.Mode = "remote"
	}
	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = 30
	}
	if cfg.Audit.Database.MaxOpenConns == 0 {
		cfg.Audit.Database.MaxOpenConns = 10
	}
}

// CookieSecret decodes the hex-encoded cookie secret.
func (c *Config) CookieSecret() ([]byte, error) {
	secret, err := hex.DecodeString(c.Cookie.Secret)
	if err != nil {
		return nil, fmt.Errorf("cookie secret is not valid hex: %w", err)
	}
	return secret, nil
}

// LocalVerifierSecret decodes the hex-encoded local bundle secret.
func (c *Config) LocalVerifierSecret() ([]byte, error) {
	if c.Verifier.Local.Secret == "" {
		return nil, nil
	}
	secret, err := hex.DecodeString(c.Verifier.Local.Secret)
	if err != nil {
		return nil, fmt.Errorf("local verifier secret is not valid hex: %w", err)
	}
	return secret, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Origin.URL == "" {
		errs = append(errs, "origin.url is required")
	} else if u, err := url.Parse(c.Origin.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "origin.url must be an absolute URL")
	}

	if c.Cookie.Secret == "" {
		errs = append(errs, "cookie.secret is required")
	} else if secret, err := c.CookieSecret(); err != nil {
		errs = append(errs, err.Error())
	} else if len(secret) < 32 {
		errs = append(errs, "cookie.secret must carry at least 256 bits")
	}

	switch c.Cookie.Scheme {
	case "aead", "hmac":
	default:
		errs = append(errs, fmt.Sprintf("cookie.scheme %q is not supported", c.Cookie.Scheme))
	}

	switch c.Challenge.Mode {
	case "inline", "redirect":
	default:
		errs = append(errs, fmt.Sprintf("challenge.mode %q is not supported", c.Challenge.Mode))
	}

	switch c.Verifier.Mode {
	case "remote":
		if c.Verifier.Remote.URL == "" {
			errs = append(errs, "verifier.remote.url is required for remote mode")
		}
	case "local":
		if c.Verifier.Local.PublicKeyPEM == "" && c.Verifier.Local.Secret == "" {
			errs = append(errs, "verifier.local needs public_key_pem or secret")
		}
	default:
		errs = append(errs, fmt.Sprintf("verifier.mode %q is not supported", c.Verifier.Mode))
	}

	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		errs = append(errs, "server.tls requires cert_file and key_file")
	}

	if c.Audit.Enabled && c.Audit.Database.DSN == "" {
		errs = append(errs, "audit.database.dsn is required when audit is enabled")
	}

	if c.Admin.Enabled && len(c.Admin.Keys) == 0 {
		errs = append(errs, "admin.keys is required when the admin API is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

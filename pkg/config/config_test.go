package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  address: ":9090"
origin:
  url: "https://origin.internal:8443"
cookie:
  secret: "4242424242424242424242424242424242424242424242424242424242424242"
challenge:
  publishable_key: "pk_test"
verifier:
  mode: remote
  remote:
    url: "https://assess.example.com/api/v1/assessment"
    token: "vt"
    timeout: 3s
policy:
  exempted_services: ["WARP_VPN", "ICLOUD_RELAY_PROXY"]
  tolerance: 5s
`

func TestParseValid(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Server.Address != ":9090" {
		t.Errorf("Address = %q", cfg.Server.Address)
	}
	if cfg.Verifier.Remote.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v", cfg.Verifier.Remote.Timeout)
	}
	if len(cfg.Policy.ExemptedServices) != 2 {
		t.Errorf("ExemptedServices = %v", cfg.Policy.ExemptedServices)
	}
	secret, err := cfg.CookieSecret()
	if err != nil {
		t.Fatalf("CookieSecret() error = %v", err)
	}
	if len(secret) != 32 {
		t.Errorf("secret length = %d, want 32", len(secret))
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("origin:\n  url: http://localhost:3000\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("default address = %q", cfg.Server.Address)
	}
	if cfg.Cookie.Name != "MCLVALID" {
		t.Errorf("default cookie name = %q", cfg.Cookie.Name)
	}
	if cfg.Cookie.Scheme != "aead" {
		t.Errorf("default scheme = %q", cfg.Cookie.Scheme)
	}
	if cfg.Challenge.Mode != "inline" {
		t.Errorf("default challenge mode = %q", cfg.Challenge.Mode)
	}
	if len(cfg.Identity.Headers) != 2 || cfg.Identity.Headers[0] != "CF-Connecting-IP" {
		t.Errorf("default identity headers = %v", cfg.Identity.Headers)
	}
}

func TestParseEnvExpansion(t *testing.T) {
	t.Setenv("TEST_GATE_SECRET", strings.Repeat("ab", 32))
	cfg, err := Parse([]byte("cookie:\n  secret: ${TEST_GATE_SECRET}\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Cookie.Secret != strings.Repeat("ab", 32) {
		t.Errorf("secret = %q, env var not expanded", cfg.Cookie.Secret)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Origin.URL != "https://origin.internal:8443" {
		t.Errorf("Origin.URL = %q", cfg.Origin.URL)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing origin", func(c *Config) { c.Origin.URL = "" }, "origin.url"},
		{"relative origin", func(c *Config) { c.Origin.URL = "/just/a/path" }, "absolute URL"},
		{"missing secret", func(c *Config) { c.Cookie.Secret = "" }, "cookie.secret"},
		{"short secret", func(c *Config) { c.Cookie.Secret = "abcd" }, "256 bits"},
		{"bad hex secret", func(c *Config) { c.Cookie.Secret = "zz" }, "hex"},
		{"bad scheme", func(c *Config) { c.Cookie.Scheme = "rot13" }, "cookie.scheme"},
		{"bad challenge mode", func(c *Config) { c.Challenge.Mode = "popup" }, "challenge.mode"},
		{"remote without url", func(c *Config) { c.Verifier.Remote.URL = "" }, "verifier.remote.url"},
		{"bad verifier mode", func(c *Config) { c.Verifier.Mode = "psychic" }, "verifier.mode"},
		{"local without keys", func(c *Config) { c.Verifier.Mode = "local" }, "verifier.local"},
		{"tls without files", func(c *Config) { c.Server.TLS.Enabled = true }, "server.tls"},
		{"audit without dsn", func(c *Config) { c.Audit.Enabled = true }, "audit.database.dsn"},
		{"admin without keys", func(c *Config) { c.Admin.Enabled = true }, "admin.keys"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(validYAML))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.want)
			}
		})
	}
}

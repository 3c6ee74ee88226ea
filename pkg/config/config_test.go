package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8090 {
		t.Errorf("Expected default server port 8090, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("Expected default storage type memory, got %s", cfg.Storage.Type)
	}
	if cfg.Client.APIPath != "instances" {
		t.Errorf("Expected default api path instances, got %s", cfg.Client.APIPath)
	}
	if cfg.Management.BasePath != "/actuator" {
		t.Errorf("Expected default management base path /actuator, got %s", cfg.Management.BasePath)
	}
	if cfg.Management.Separate() {
		t.Error("Expected management to share the instance port by default")
	}
	if len(cfg.Server.MetadataKeysToSanitize) != 6 {
		t.Errorf("Expected 6 default sanitize patterns, got %d", len(cfg.Server.MetadataKeysToSanitize))
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"zero port", 0},
		{"negative port", -1},
		{"port too high", 65536},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Server.Port = tt.port

			if err := cfg.Validate(); err == nil {
				t.Errorf("Expected error for port %d", tt.port)
			}
		})
	}
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown storage", func(c *Config) { c.Storage.Type = "redis" }},
		{"mongodb without uri", func(c *Config) {
			c.Storage.Type = "mongodb"
			c.Storage.MongoDB.URI = ""
		}},
		{"monitor interval too short", func(c *Config) { c.Monitor.Interval = 10 * time.Millisecond }},
		{"auth required without secret", func(c *Config) { c.RegistrationAuth.RequireAuth = true }},
		{"zero rate limit", func(c *Config) { c.RateLimit.RegistrationsPerMinute = 0 }},
		{"bad host type", func(c *Config) { c.Instance.ServiceHostType = "fqdn" }},
		{"bad management port", func(c *Config) { c.Management.Port = 70000 }},
		{"bad instance port", func(c *Config) { c.Instance.Port = -5 }},
		{"registration period too short", func(c *Config) { c.Client.Period = time.Millisecond }},
		{"bad sanitize pattern", func(c *Config) { c.Server.MetadataKeysToSanitize = []string{"(unclosed"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestValidate_DisabledFeaturesSkipChecks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Monitor.Enabled = false
	cfg.Monitor.Interval = 0
	cfg.RateLimit.Enabled = false
	cfg.RateLimit.RegistrationsPerMinute = 0
	cfg.Client.AutoRegistration = false
	cfg.Client.Period = 0

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected no error for disabled features, got %v", err)
	}
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{Host: "localhost", Port: 9090}
	if got := cfg.Address(); got != "localhost:9090" {
		t.Errorf("Expected localhost:9090, got %s", got)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9000
  context_path: /admin
instance:
  name: billing
  port: 8081
  metadata:
    tags.env: prod
management:
  port: 8082
  base_path: /manage
monitor:
  interval: 30s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("ADMIN_INSTANCE_NAME", "billing-eu")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Server.ContextPath != "/admin" {
		t.Errorf("Expected context path /admin, got %s", cfg.Server.ContextPath)
	}
	if cfg.Instance.Name != "billing-eu" {
		t.Errorf("Expected env override billing-eu, got %s", cfg.Instance.Name)
	}
	if cfg.Instance.Metadata["tags.env"] != "prod" {
		t.Errorf("Expected metadata tags.env=prod, got %v", cfg.Instance.Metadata)
	}
	if !cfg.Management.Separate() || cfg.Management.Port != 8082 {
		t.Errorf("Expected separate management port 8082, got %d", cfg.Management.Port)
	}
	if cfg.Management.BasePath != "/manage" {
		t.Errorf("Expected base path /manage, got %s", cfg.Management.BasePath)
	}
	if cfg.Monitor.Interval != 30*time.Second {
		t.Errorf("Expected 30s interval, got %s", cfg.Monitor.Interval)
	}
	// untouched sections keep defaults
	if cfg.Storage.Type != "memory" {
		t.Errorf("Expected default storage type, got %s", cfg.Storage.Type)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8090 {
		t.Errorf("Expected default port, got %d", cfg.Server.Port)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unterminated"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected parse error")
	}
}

func TestManagementConfig_EffectiveBasePath(t *testing.T) {
	tests := []struct {
		basePath string
		want     string
	}{
		{"", DefaultManagementBasePath},
		{"/", "/"},
		{"/ops", "/ops"},
	}
	for _, tt := range tests {
		cfg := ManagementConfig{BasePath: tt.basePath}
		if got := cfg.EffectiveBasePath(); got != tt.want {
			t.Errorf("EffectiveBasePath(%q) = %q, want %q", tt.basePath, got, tt.want)
		}
	}
}

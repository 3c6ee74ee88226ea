package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/sirosfoundation/go-service-admin/pkg/logging"
)

// EnvPrefix is the prefix for environment variable overrides (ADMIN_SERVER_PORT etc.)
const EnvPrefix = "ADMIN"

// Config represents the application configuration.
// The server sections configure the admin server, the client/instance/management
// sections configure a monitored instance that registers itself.
type Config struct {
	Server           ServerConfig           `yaml:"server" envconfig:"SERVER"`
	Storage          StorageConfig          `yaml:"storage" envconfig:"STORAGE"`
	Logging          logging.Config         `yaml:"logging" envconfig:"LOGGING"`
	Monitor          MonitorConfig          `yaml:"monitor" envconfig:"MONITOR"`
	Notify           NotifyConfig           `yaml:"notify" envconfig:"NOTIFY"`
	RegistrationAuth RegistrationAuthConfig `yaml:"registration_auth" envconfig:"REGISTRATION_AUTH"`
	RateLimit        RateLimitConfig        `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	CORS             CORSConfig             `yaml:"cors" envconfig:"CORS"`
	Client           ClientConfig           `yaml:"client" envconfig:"CLIENT"`
	Instance         InstanceConfig         `yaml:"instance" envconfig:"INSTANCE"`
	Management       ManagementConfig       `yaml:"management" envconfig:"MANAGEMENT"`
}

// ServerConfig contains admin server HTTP configuration
type ServerConfig struct {
	Host        string `yaml:"host" envconfig:"HOST"`
	Port        int    `yaml:"port" envconfig:"PORT"`
	ContextPath string `yaml:"context_path" envconfig:"CONTEXT_PATH"`
	AdminToken  string `yaml:"admin_token" envconfig:"ADMIN_TOKEN"` // Bearer token for admin-only routes (auto-generated if empty)
	// MetadataKeysToSanitize are regexps; matching registration metadata values are masked in responses
	MetadataKeysToSanitize []string `yaml:"metadata_keys_to_sanitize" envconfig:"METADATA_KEYS_TO_SANITIZE"`
}

// Address returns the server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig contains event store configuration
type StorageConfig struct {
	Type    string        `yaml:"type" envconfig:"TYPE"` // memory, mongodb
	Memory  MemoryConfig  `yaml:"memory" envconfig:"MEMORY"`
	MongoDB MongoDBConfig `yaml:"mongodb" envconfig:"MONGODB"`
}

// MemoryConfig contains in-memory event store configuration
type MemoryConfig struct {
	// MaxLogSizePerInstance bounds the event log kept per instance before compaction
	MaxLogSizePerInstance int `yaml:"max_log_size_per_instance" envconfig:"MAX_LOG_SIZE_PER_INSTANCE"`
}

// MongoDBConfig contains MongoDB-specific configuration
type MongoDBConfig struct {
	URI      string `yaml:"uri" envconfig:"URI"`
	Database string `yaml:"database" envconfig:"DATABASE"`
	Timeout  int    `yaml:"timeout" envconfig:"TIMEOUT"` // seconds
}

// MonitorConfig controls health polling of registered instances
type MonitorConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"ENABLED"`
	// Interval is how often the trigger looks for instances due for a check
	Interval time.Duration `yaml:"interval" envconfig:"INTERVAL"`
	// StatusLifetime is how long a status is considered fresh
	StatusLifetime time.Duration `yaml:"status_lifetime" envconfig:"STATUS_LIFETIME"`
	// Timeout for a single health request
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// NotifyConfig controls the notification pipeline
type NotifyConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"ENABLED"`
	// IgnoreChanges lists "FROM:TO" status transitions that do not notify ("*" matches any)
	IgnoreChanges []string `yaml:"ignore_changes" envconfig:"IGNORE_CHANGES"`
}

// RegistrationAuthConfig configures JWT authentication of instance registrations
type RegistrationAuthConfig struct {
	// Secret is the shared HMAC secret used by clients to sign and by the server to verify
	Secret string `yaml:"secret" envconfig:"SECRET"`
	// Issuer is the expected issuer claim
	Issuer string `yaml:"issuer" envconfig:"ISSUER"`
	// RequireAuth rejects unauthenticated registrations when true
	RequireAuth bool `yaml:"require_auth" envconfig:"REQUIRE_AUTH"`
}

// RateLimitConfig limits registration requests per client IP
type RateLimitConfig struct {
	Enabled                bool `yaml:"enabled" envconfig:"ENABLED"`
	RegistrationsPerMinute int  `yaml:"registrations_per_minute" envconfig:"REGISTRATIONS_PER_MINUTE"`
	BurstMultiplier        int  `yaml:"burst_multiplier" envconfig:"BURST_MULTIPLIER"`
}

// CORSConfig contains CORS settings for browser-based admin consoles
type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins" envconfig:"ALLOW_ORIGINS"`
}

// ClientConfig configures how an instance registers with the admin server(s)
type ClientConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"ENABLED"`
	// URLs of the admin servers
	URLs []string `yaml:"urls" envconfig:"URLS"`
	// APIPath is the registration resource below each admin URL
	APIPath string `yaml:"api_path" envconfig:"API_PATH"`
	// Period between registration attempts
	Period time.Duration `yaml:"period" envconfig:"PERIOD"`
	// Timeout for a single HTTP request to the admin server
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	// MaxRetries per admin URL within a single registration attempt
	MaxRetries uint `yaml:"max_retries" envconfig:"MAX_RETRIES"`
	// RegisterOnce stops after the first admin server accepted the registration
	RegisterOnce       bool `yaml:"register_once" envconfig:"REGISTER_ONCE"`
	AutoRegistration   bool `yaml:"auto_registration" envconfig:"AUTO_REGISTRATION"`
	AutoDeregistration bool `yaml:"auto_deregistration" envconfig:"AUTO_DEREGISTRATION"`
	// Secret signs a short-lived registration JWT (must match the server's registration_auth.secret)
	Secret string `yaml:"secret" envconfig:"SECRET"`
	Issuer string `yaml:"issuer" envconfig:"ISSUER"`
}

// InstanceConfig describes the monitored instance and its primary HTTP server
type InstanceConfig struct {
	Name string `yaml:"name" envconfig:"NAME"`
	// Host/Port the instance's primary server binds to (port 0 picks a free port)
	Host             string `yaml:"host" envconfig:"HOST"`
	Port             int    `yaml:"port" envconfig:"PORT"`
	TLS              bool   `yaml:"tls" envconfig:"TLS"`
	ContextPath      string `yaml:"context_path" envconfig:"CONTEXT_PATH"`
	DispatcherPrefix string `yaml:"dispatcher_prefix" envconfig:"DISPATCHER_PREFIX"`
	// ServiceHostType selects how the advertised host is derived: ip, hostname, canonical
	ServiceHostType string `yaml:"service_host_type" envconfig:"SERVICE_HOST_TYPE"`
	// Explicit overrides of the resolved URLs
	ServicePath       string            `yaml:"service_path" envconfig:"SERVICE_PATH"`
	ServiceURL        string            `yaml:"service_url" envconfig:"SERVICE_URL"`
	ServiceBaseURL    string            `yaml:"service_base_url" envconfig:"SERVICE_BASE_URL"`
	ManagementURL     string            `yaml:"management_url" envconfig:"MANAGEMENT_URL"`
	ManagementBaseURL string            `yaml:"management_base_url" envconfig:"MANAGEMENT_BASE_URL"`
	HealthURL         string            `yaml:"health_url" envconfig:"HEALTH_URL"`
	Metadata          map[string]string `yaml:"metadata" envconfig:"METADATA"`
}

// Address returns the instance server address
func (c *InstanceConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DefaultManagementBasePath is the base path of management endpoints when none is configured
const DefaultManagementBasePath = "/actuator"

// ManagementConfig describes the management (operational endpoints) server of an instance
type ManagementConfig struct {
	// Port of a separate management server; 0 serves management endpoints on the instance port
	Port int `yaml:"port" envconfig:"PORT"`
	// Address overrides the advertised management host when served separately
	Address     string `yaml:"address" envconfig:"ADDRESS"`
	TLS         bool   `yaml:"tls" envconfig:"TLS"`
	ContextPath string `yaml:"context_path" envconfig:"CONTEXT_PATH"`
	BasePath    string `yaml:"base_path" envconfig:"BASE_PATH"`
}

// Separate reports whether management endpoints run on their own server
func (c *ManagementConfig) Separate() bool {
	return c.Port > 0
}

// EffectiveBasePath returns the configured base path, DefaultManagementBasePath
// when unset. "/" mounts management endpoints at the root.
func (c *ManagementConfig) EffectiveBasePath() string {
	if c.BasePath == "" {
		return DefaultManagementBasePath
	}
	return c.BasePath
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, that's ok - we'll use defaults and env vars
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Environment variables have the highest priority
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8090,
			ContextPath: "/",
			MetadataKeysToSanitize: []string{
				".*password$", ".*secret$", ".*key$", ".*token$", ".*credentials.*", ".*vcap_services$",
			},
		},
		Storage: StorageConfig{
			Type: "memory",
			Memory: MemoryConfig{
				MaxLogSizePerInstance: 100,
			},
			MongoDB: MongoDBConfig{
				URI:      "mongodb://localhost:27017",
				Database: "service_admin",
				Timeout:  10,
			},
		},
		Logging: logging.DefaultConfig(),
		Monitor: MonitorConfig{
			Enabled:        true,
			Interval:       10 * time.Second,
			StatusLifetime: 10 * time.Second,
			Timeout:        10 * time.Second,
		},
		Notify: NotifyConfig{
			Enabled:       true,
			IgnoreChanges: []string{"UNKNOWN:UP"},
		},
		RegistrationAuth: RegistrationAuthConfig{
			Issuer: "service-admin",
		},
		RateLimit: RateLimitConfig{
			Enabled:                true,
			RegistrationsPerMinute: 120,
			BurstMultiplier:        3,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
		},
		Client: ClientConfig{
			Enabled:          true,
			URLs:             []string{"http://localhost:8090"},
			APIPath:          "instances",
			Period:           10 * time.Second,
			Timeout:          5 * time.Second,
			MaxRetries:       3,
			RegisterOnce:     true,
			AutoRegistration: true,
			Issuer:           "service-admin",
		},
		Instance: InstanceConfig{
			Name:            "application",
			Host:            "0.0.0.0",
			Port:            8080,
			ServiceHostType: "canonical",
		},
		Management: ManagementConfig{
			BasePath: DefaultManagementBasePath,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	for _, pattern := range c.Server.MetadataKeysToSanitize {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid metadata sanitize pattern %q: %w", pattern, err)
		}
	}

	if c.Storage.Type != "memory" && c.Storage.Type != "mongodb" {
		return fmt.Errorf("invalid storage type: %s (must be memory or mongodb)", c.Storage.Type)
	}

	if c.Storage.Type == "mongodb" && c.Storage.MongoDB.URI == "" {
		return fmt.Errorf("mongodb uri is required when using mongodb storage")
	}

	if c.Monitor.Enabled && c.Monitor.Interval < time.Second {
		return fmt.Errorf("monitor interval must be at least 1 second")
	}

	if c.RegistrationAuth.RequireAuth && c.RegistrationAuth.Secret == "" {
		return fmt.Errorf("registration auth secret is required when authentication is required")
	}

	if c.RateLimit.Enabled && c.RateLimit.RegistrationsPerMinute < 1 {
		return fmt.Errorf("registration rate limit must be positive")
	}

	if c.Instance.Port < 0 || c.Instance.Port > 65535 {
		return fmt.Errorf("invalid instance port: %d", c.Instance.Port)
	}

	if c.Management.Port < 0 || c.Management.Port > 65535 {
		return fmt.Errorf("invalid management port: %d", c.Management.Port)
	}

	switch c.Instance.ServiceHostType {
	case "", "ip", "hostname", "canonical":
	default:
		return fmt.Errorf("invalid service host type: %s (must be ip, hostname or canonical)", c.Instance.ServiceHostType)
	}

	if c.Client.Enabled && c.Client.AutoRegistration && c.Client.Period < time.Second {
		return fmt.Errorf("client registration period must be at least 1 second")
	}

	return nil
}

// Package config provides configuration management for the Kite MCP server.
// It handles loading and parsing YAML configuration files, and provides
// structured access to application settings including server port, brokerage
// credentials, callback listener behavior, order handling, and logging.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Host is the address the HTTP server binds to. Empty binds all interfaces.
	Host string `yaml:"host" json:"host"`

	// Port is the TCP port the HTTP server listens on.
	Port int `yaml:"port" json:"port"`

	// ProxyURL is the URL of an optional proxy server to use for outbound
	// brokerage requests (socks5://, http:// or https://).
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`

	// ManagementKey protects the /v0/management endpoints. Empty disables
	// management authentication (local use only).
	ManagementKey string `yaml:"management-key" json:"management-key"`

	// Debug enables debug-level logging and Gin debug mode.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile redirects application logs to rotating files instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// RequestLog enables detailed request logging of brokerage round trips.
	RequestLog bool `yaml:"request-log" json:"request-log"`

	// Kite holds the brokerage credentials and endpoint configuration.
	Kite KiteConfig `yaml:"kite" json:"kite"`

	// Callback configures the short-lived login callback listener.
	Callback CallbackConfig `yaml:"callback" json:"callback"`

	// Orders configures order confirmation and journaling behavior.
	Orders OrdersConfig `yaml:"orders" json:"orders"`
}

// KiteConfig holds Kite Connect credentials and endpoints.
type KiteConfig struct {
	// APIKey is the Kite Connect application key. The KITE_API_KEY
	// environment variable takes precedence.
	APIKey string `yaml:"api-key" json:"api-key"`

	// APISecret is the Kite Connect application secret. The KITE_API_SECRET
	// environment variable takes precedence.
	APISecret string `yaml:"api-secret" json:"api-secret"`

	// RedirectURL is the redirect registered with the Kite Connect app. The
	// KITE_REDIRECT_URL environment variable takes precedence. During fully
	// automated login it is rebound to the callback listener's actual port.
	RedirectURL string `yaml:"redirect-url" json:"redirect-url"`

	// BaseURL is the Kite Connect REST endpoint.
	BaseURL string `yaml:"base-url" json:"base-url"`

	// LoginBaseURL is the browser-facing authorization endpoint.
	LoginBaseURL string `yaml:"login-base-url" json:"login-base-url"`

	// TokenFile is the path of the persisted token record.
	TokenFile string `yaml:"token-file" json:"token-file"`

	// TokenValidityHours is the assumed lifetime of an access token from the
	// moment it is generated. Kite sessions expire at a fixed daily cutoff;
	// this window approximates it and is deliberately configurable.
	TokenValidityHours int `yaml:"token-validity-hours" json:"token-validity-hours"`

	// RateLimitPerSec caps outbound brokerage requests per second. Kite
	// enforces 3 req/s per app.
	RateLimitPerSec int `yaml:"rate-limit-per-sec" json:"rate-limit-per-sec"`
}

// CallbackConfig controls the login callback listener.
type CallbackConfig struct {
	// StartPort is the first port probed when binding the listener.
	StartPort int `yaml:"start-port" json:"start-port"`

	// PortAttempts is how many consecutive ports are probed before giving up.
	PortAttempts int `yaml:"port-attempts" json:"port-attempts"`

	// WaitTimeoutSeconds bounds how long an automated login waits for the
	// browser redirect before failing. <= 0 uses the default (300).
	WaitTimeoutSeconds int `yaml:"wait-timeout-seconds" json:"wait-timeout-seconds"`
}

// OrdersConfig controls order confirmation and journaling.
type OrdersConfig struct {
	// ConfirmationDelaySeconds is the pause between placing an order and
	// looking up its settled status, allowing exchange-side processing.
	ConfirmationDelaySeconds int `yaml:"confirmation-delay-seconds" json:"confirmation-delay-seconds"`

	// JournalFile is the append-only order outcome log.
	JournalFile string `yaml:"journal-file" json:"journal-file"`
}

// DefaultConfig returns a Config populated with working defaults for local use.
func DefaultConfig() *Config {
	return &Config{
		Port:          8385,
		LoggingToFile: true,
		Kite: KiteConfig{
			RedirectURL:        "http://localhost:8080/callback",
			BaseURL:            "https://api.kite.trade",
			LoginBaseURL:       "https://kite.trade/connect/login",
			TokenFile:          "data/kite_tokens.json",
			TokenValidityHours: 8,
			RateLimitPerSec:    3,
		},
		Callback: CallbackConfig{
			StartPort:          8080,
			PortAttempts:       10,
			WaitTimeoutSeconds: 300,
		},
		Orders: OrdersConfig{
			ConfirmationDelaySeconds: 1,
			JournalFile:              "logs/orders.log",
		},
	}
}

// LoadConfig reads the YAML file at path and returns the parsed configuration
// with defaults applied and credential environment overrides resolved. A
// missing file is not an error: defaults plus environment variables are often
// a complete configuration on their own.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
	} else if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Port <= 0 {
		c.Port = d.Port
	}
	if c.Kite.RedirectURL == "" {
		c.Kite.RedirectURL = d.Kite.RedirectURL
	}
	if c.Kite.BaseURL == "" {
		c.Kite.BaseURL = d.Kite.BaseURL
	}
	if c.Kite.LoginBaseURL == "" {
		c.Kite.LoginBaseURL = d.Kite.LoginBaseURL
	}
	if c.Kite.TokenFile == "" {
		c.Kite.TokenFile = d.Kite.TokenFile
	}
	if c.Kite.TokenValidityHours <= 0 {
		c.Kite.TokenValidityHours = d.Kite.TokenValidityHours
	}
	if c.Kite.RateLimitPerSec <= 0 {
		c.Kite.RateLimitPerSec = d.Kite.RateLimitPerSec
	}
	if c.Callback.StartPort <= 0 {
		c.Callback.StartPort = d.Callback.StartPort
	}
	if c.Callback.PortAttempts <= 0 {
		c.Callback.PortAttempts = d.Callback.PortAttempts
	}
	if c.Callback.WaitTimeoutSeconds <= 0 {
		c.Callback.WaitTimeoutSeconds = d.Callback.WaitTimeoutSeconds
	}
	if c.Orders.ConfirmationDelaySeconds <= 0 {
		c.Orders.ConfirmationDelaySeconds = d.Orders.ConfirmationDelaySeconds
	}
	if c.Orders.JournalFile == "" {
		c.Orders.JournalFile = d.Orders.JournalFile
	}
}

// applyEnvOverrides resolves credentials environment-first. Only the three
// credential fields are overridable this way; everything else lives in YAML.
func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv("KITE_API_KEY")); v != "" {
		c.Kite.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("KITE_API_SECRET")); v != "" {
		c.Kite.APISecret = v
	}
	if v := strings.TrimSpace(os.Getenv("KITE_REDIRECT_URL")); v != "" {
		c.Kite.RedirectURL = v
	}
}

// TokenValidity returns the configured token lifetime as a duration.
func (k *KiteConfig) TokenValidity() time.Duration {
	return time.Duration(k.TokenValidityHours) * time.Hour
}

// WaitTimeout returns the configured callback wait timeout as a duration.
func (cb *CallbackConfig) WaitTimeout() time.Duration {
	return time.Duration(cb.WaitTimeoutSeconds) * time.Second
}

// ConfirmationDelay returns the post-placement confirmation delay as a duration.
func (o *OrdersConfig) ConfirmationDelay() time.Duration {
	return time.Duration(o.ConfirmationDelaySeconds) * time.Second
}

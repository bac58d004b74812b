package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Gateway transport
	GatewayURL   string `envconfig:"SCC_GATEWAY_URL" default:"ws://localhost:18789/ws/gateway"`
	GatewayToken string `envconfig:"SCC_GATEWAY_TOKEN"`
	ClientID     string `envconfig:"SCC_CLIENT_ID" default:"scc-dashboard"`
	Scopes       string `envconfig:"SCC_SCOPES" default:"operator.admin"` // comma-separated
	Locale       string `envconfig:"SCC_LOCALE" default:"en-US"`

	// Handshake and reconnection
	ConnectDebounce time.Duration `envconfig:"SCC_CONNECT_DEBOUNCE" default:"250ms"`
	BackoffFloor    time.Duration `envconfig:"SCC_BACKOFF_FLOOR" default:"1s"`
	BackoffFactor   float64       `envconfig:"SCC_BACKOFF_FACTOR" default:"2.0"`
	BackoffCeiling  time.Duration `envconfig:"SCC_BACKOFF_CEILING" default:"30s"`

	// Memory side channel (HTTP, separate from the WebSocket)
	APIURL string `envconfig:"SCC_API_URL"`

	// Operational endpoints
	OpsListenAddr     string `envconfig:"SCC_OPS_LISTEN_ADDR" default:":8090"`
	MetricsListenAddr string `envconfig:"SCC_METRICS_LISTEN_ADDR" default:":8080"`
	CORSOrigins       string `envconfig:"SCC_CORS_ORIGINS"`
}

// ScopeList returns the parsed capability scopes.
func (c *Config) ScopeList() []string {
	parts := strings.Split(c.Scopes, ",")
	scopes := make([]string, 0, len(parts))
	for _, s := range parts {
		s = strings.TrimSpace(s)
		if s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

// MemoryEnabled returns true if the memory side channel is configured.
func (c *Config) MemoryEnabled() bool {
	return c.APIURL != ""
}

// Validate checks invariants envconfig cannot express.
func (c *Config) Validate() error {
	if c.GatewayURL == "" {
		return fmt.Errorf("SCC_GATEWAY_URL must be set")
	}
	if !strings.HasPrefix(c.GatewayURL, "ws://") && !strings.HasPrefix(c.GatewayURL, "wss://") {
		return fmt.Errorf("SCC_GATEWAY_URL must be a ws:// or wss:// URL, got %q", c.GatewayURL)
	}
	if c.BackoffFactor < 1.0 {
		return fmt.Errorf("SCC_BACKOFF_FACTOR must be >= 1.0, got %v", c.BackoffFactor)
	}
	if c.BackoffCeiling < c.BackoffFloor {
		return fmt.Errorf("SCC_BACKOFF_CEILING (%v) must be >= SCC_BACKOFF_FLOOR (%v)", c.BackoffCeiling, c.BackoffFloor)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

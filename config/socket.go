package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// SocketConfig holds WebSocket server configuration.
type SocketConfig struct {
	Listen          string `json:"listen" yaml:"listen"`
	MaxConnections  int    `json:"max_connections" yaml:"max_connections"`
	PingInterval    int    `json:"ping_interval_seconds" yaml:"ping_interval_seconds"`
	WriteTimeout    int    `json:"write_timeout_seconds" yaml:"write_timeout_seconds"`
	ReadBufferSize  int    `json:"read_buffer_size" yaml:"read_buffer_size"`
	WriteBufferSize int    `json:"write_buffer_size" yaml:"write_buffer_size"`
	MaxMessageSize  int64  `json:"max_message_size" yaml:"max_message_size"`
	SecretKey       string `json:"-" yaml:"secret_key"`
	TokenIssuer     string `json:"token_issuer" yaml:"token_issuer"`
	Telemetry       bool   `json:"telemetry" yaml:"telemetry"`
	Redis           bool   `json:"redis" yaml:"redis"`
}

// DefaultConfig returns the default WebSocket configuration.
func DefaultConfig() *SocketConfig {
	return &SocketConfig{
		Listen:          "localhost:8000",
		MaxConnections:  1000,
		PingInterval:    30,
		WriteTimeout:    10,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		MaxMessageSize:  64 * 1024,
		TokenIssuer:     "globetrotter",
		Redis:           true,
	}
}

// Load reads a YAML file on top of the defaults. ${VAR} references are
// expanded from the environment before parsing.
func Load(path string) (*SocketConfig, error) {
	// #nosec G304 -- path is from CLI args, controlled by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// ApplyEnv overrides fields from environment variables when set.
// Unparseable numeric values are ignored.
func (c *SocketConfig) ApplyEnv() {
	if v := os.Getenv("WS_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("SECRET_KEY"); v != "" {
		c.SecretKey = v
	}
	setInt(&c.MaxConnections, "WS_MAX_CONNECTIONS")
	setInt(&c.PingInterval, "WS_PING_INTERVAL")
	setInt(&c.WriteTimeout, "WS_WRITE_TIMEOUT")
	if v := os.Getenv("WS_MAX_MESSAGE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxMessageSize = n
		}
	}
	if v := os.Getenv("WS_REDIS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Redis = b
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate rejects negative limits.
func (c *SocketConfig) Validate() error {
	switch {
	case c.Listen == "":
		return fmt.Errorf("listen address is required")
	case c.MaxConnections < 0:
		return fmt.Errorf("max_connections must not be negative")
	case c.PingInterval < 0:
		return fmt.Errorf("ping_interval_seconds must not be negative")
	case c.WriteTimeout < 0:
		return fmt.Errorf("write_timeout_seconds must not be negative")
	case c.MaxMessageSize < 0:
		return fmt.Errorf("max_message_size must not be negative")
	}
	return nil
}

// PingEvery returns the keep-alive interval; zero disables pings.
func (c *SocketConfig) PingEvery() time.Duration {
	return time.Duration(c.PingInterval) * time.Second
}

// WriteWait returns the per-frame write deadline; zero disables it.
func (c *SocketConfig) WriteWait() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Second
}

package tradegate

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the client configuration. The zero value is not usable on its
// own; New fills defaults for everything except the gateway credentials.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Retry    RetryConfig    `yaml:"retry"`
	Stream   StreamConfig   `yaml:"stream"`
}

// GatewayConfig identifies the remote terminal gateway and the account to
// log in with.
type GatewayConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	UseTLS   bool   `yaml:"use_tls"`
	Account  string `yaml:"account"`
	Password string `yaml:"password"` // Usually ${TRADEGATE_PASSWORD} in the file
	Server   string `yaml:"server"`   // Trade server name, gateway-specific
}

// TimeoutsConfig holds the client's time bounds.
type TimeoutsConfig struct {
	CallTimeout  time.Duration `yaml:"call_timeout"` // Default budget when the caller sets no deadline
	AttemptCap   time.Duration `yaml:"attempt_cap"`  // Per-attempt cap (0 = remaining budget only)
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
	PingTimeout  time.Duration `yaml:"ping_timeout"`
}

// RetryConfig holds the unary retry policy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
}

// StreamConfig holds subscription settings.
type StreamConfig struct {
	BufferSize int `yaml:"buffer_size"` // Per-subscription event buffer
}

// Default values for optional configuration fields.
const (
	DefaultPort         = 443
	DefaultCallTimeout  = 30 * time.Second
	DefaultDialTimeout  = 10 * time.Second
	DefaultWriteTimeout = 5 * time.Second
	DefaultPingInterval = 15 * time.Second
	DefaultPingTimeout  = 60 * time.Second
	DefaultMaxAttempts  = 3
	DefaultBaseBackoff  = 1 * time.Second
	DefaultMaxBackoff   = 30 * time.Second
	DefaultStreamBuffer = 1000
)

func (c *Config) applyDefaults() {
	if c.Gateway.Port == 0 {
		c.Gateway.Port = DefaultPort
	}

	if c.Timeouts.CallTimeout == 0 {
		c.Timeouts.CallTimeout = DefaultCallTimeout
	}
	if c.Timeouts.DialTimeout == 0 {
		c.Timeouts.DialTimeout = DefaultDialTimeout
	}
	if c.Timeouts.WriteTimeout == 0 {
		c.Timeouts.WriteTimeout = DefaultWriteTimeout
	}
	if c.Timeouts.PingInterval == 0 {
		c.Timeouts.PingInterval = DefaultPingInterval
	}
	if c.Timeouts.PingTimeout == 0 {
		c.Timeouts.PingTimeout = DefaultPingTimeout
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Retry.BaseBackoff == 0 {
		c.Retry.BaseBackoff = DefaultBaseBackoff
	}
	if c.Retry.MaxBackoff == 0 {
		c.Retry.MaxBackoff = DefaultMaxBackoff
	}

	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultStreamBuffer
	}
}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Gateway.Host == "" {
		return errors.New("gateway.host is required")
	}
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port must be between 1 and 65535, got %d", c.Gateway.Port)
	}
	if c.Gateway.Account == "" {
		return errors.New("gateway.account is required")
	}
	if c.Gateway.Password == "" {
		return errors.New("gateway.password is required")
	}

	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be >= 1")
	}
	if c.Retry.BaseBackoff <= 0 {
		return errors.New("retry.base_backoff must be positive")
	}
	if c.Retry.MaxBackoff < c.Retry.BaseBackoff {
		return fmt.Errorf("retry.max_backoff (%v) cannot be less than base_backoff (%v)",
			c.Retry.MaxBackoff, c.Retry.BaseBackoff)
	}

	if c.Timeouts.CallTimeout <= 0 {
		return errors.New("timeouts.call_timeout must be positive")
	}
	if c.Timeouts.AttemptCap < 0 {
		return errors.New("timeouts.attempt_cap cannot be negative")
	}
	if c.Timeouts.DialTimeout <= 0 {
		return errors.New("timeouts.dial_timeout must be positive")
	}
	if c.Timeouts.WriteTimeout <= 0 {
		return errors.New("timeouts.write_timeout must be positive")
	}
	if c.Timeouts.PingInterval <= 0 {
		return errors.New("timeouts.ping_interval must be positive")
	}
	if c.Timeouts.PingTimeout <= 0 {
		return errors.New("timeouts.ping_timeout must be positive")
	}

	if c.Stream.BufferSize < 1 {
		return errors.New("stream.buffer_size must be >= 1")
	}

	return nil
}

// LoadConfig reads a YAML config file, expands ${VAR} environment variable
// references, fills defaults, and validates the result. Keeping secrets out
// of the file and in the environment is the expected setup.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

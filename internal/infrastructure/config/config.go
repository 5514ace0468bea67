package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Terminal  TerminalConfig
	Agent     AgentConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string   `envconfig:"PORT" default:"8000"`
	Host         string   `envconfig:"HOST" default:"0.0.0.0"`
	AllowOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// TerminalConfig holds defaults for new terminal sessions.
type TerminalConfig struct {
	Shell        string `envconfig:"TERMINAL_SHELL" default:"sh"`
	Rows         int    `envconfig:"TERMINAL_ROWS" default:"24"`
	Cols         int    `envconfig:"TERMINAL_COLS" default:"80"`
	DisplayLines int    `envconfig:"TERMINAL_DISPLAY_LINES" default:"100"`
	Scrollback   int    `envconfig:"TERMINAL_SCROLLBACK" default:"1000"`
}

// AgentConfig holds agent supervision settings.
type AgentConfig struct {
	Manifest      string        `envconfig:"AGENT_MANIFEST"`
	AutoStart     bool          `envconfig:"AGENT_AUTO_START" default:"false"`
	MaxConcurrent int           `envconfig:"AGENT_MAX_CONCURRENT" default:"5"`
	ReapInterval  time.Duration `envconfig:"AGENT_REAP_INTERVAL" default:"1s"`
	OutputLines   int           `envconfig:"AGENT_OUTPUT_LINES" default:"1000"`
}

// TelemetryConfig holds host telemetry settings.
type TelemetryConfig struct {
	ProcPath string        `envconfig:"TELEMETRY_PROC_PATH" default:"/proc"`
	Interval time.Duration `envconfig:"TELEMETRY_INTERVAL" default:"5s"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Terminal.Rows <= 0 || c.Terminal.Cols <= 0:
		return fmt.Errorf("invalid terminal size %dx%d", c.Terminal.Rows, c.Terminal.Cols)
	case c.Terminal.Scrollback <= 0:
		return fmt.Errorf("TERMINAL_SCROLLBACK must be positive, got %d", c.Terminal.Scrollback)
	case c.Agent.MaxConcurrent < 0:
		return fmt.Errorf("AGENT_MAX_CONCURRENT must not be negative, got %d", c.Agent.MaxConcurrent)
	case c.Agent.ReapInterval <= 0:
		return fmt.Errorf("AGENT_REAP_INTERVAL must be positive, got %s", c.Agent.ReapInterval)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8000",
			Host:         "0.0.0.0",
			AllowOrigins: []string{"*"},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Terminal: TerminalConfig{
			Shell:        "sh",
			Rows:         24,
			Cols:         80,
			DisplayLines: 100,
			Scrollback:   1000,
		},
		Agent: AgentConfig{
			AutoStart:     false,
			MaxConcurrent: 5,
			ReapInterval:  time.Second,
			OutputLines:   1000,
		},
		Telemetry: TelemetryConfig{
			ProcPath: "/proc",
			Interval: 5 * time.Second,
		},
	}
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFilename is the bridge configuration file looked up in the working directory.
const DefaultFilename = "peb-bridge.yml"

const (
	// DefaultTimeout bounds a single peb invocation
	DefaultTimeout = 30 * time.Second

	// DefaultMaxOutputBytes caps stdout and stderr of a peb invocation (10MB each)
	DefaultMaxOutputBytes = 10 * 1024 * 1024
)

// Environment variables overriding file values.
const (
	EnvCommand   = "PEB_BRIDGE_COMMAND"
	EnvTimeout   = "PEB_BRIDGE_TIMEOUT"
	EnvLogLevel  = "PEB_BRIDGE_LOG_LEVEL"
	EnvLogFormat = "PEB_BRIDGE_LOG_FORMAT"
)

// ErrEmptyCommand is returned when the peb command array has no elements.
var ErrEmptyCommand = errors.New("command must be a non-empty array")

// BridgeConfig represents the peb-bridge.yml configuration
type BridgeConfig struct {
	// Command is the peb invocation prefix, e.g. ["peb"] or ["/opt/bin/peb"]
	Command []string `yaml:"command"`

	// Timeout is a Go duration string ("30s", "2m")
	Timeout string `yaml:"timeout,omitempty"`

	MaxOutputBytes int `yaml:"max_output_bytes,omitempty"`

	LogLevel  string `yaml:"log_level,omitempty"`
	LogFormat string `yaml:"log_format,omitempty"` // "console" or "json"

	timeout time.Duration
}

// Default returns the configuration used when no file is present.
func Default() *BridgeConfig {
	return &BridgeConfig{
		Command:        []string{"peb"},
		Timeout:        DefaultTimeout.String(),
		MaxOutputBytes: DefaultMaxOutputBytes,
		LogLevel:       "info",
		LogFormat:      "console",
		timeout:        DefaultTimeout,
	}
}

// TimeoutDuration returns the parsed timeout. Only valid after Validate.
func (c *BridgeConfig) TimeoutDuration() time.Duration {
	return c.timeout
}

// Validate performs strict validation on the configuration and fills defaults
// for optional fields left empty.
func (c *BridgeConfig) Validate() error {
	if len(c.Command) == 0 || c.Command[0] == "" {
		return fmt.Errorf("invalid command: %w", ErrEmptyCommand)
	}

	if c.Timeout == "" {
		c.Timeout = DefaultTimeout.String()
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	if d <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	c.timeout = d

	if c.MaxOutputBytes == 0 {
		c.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if c.MaxOutputBytes < 0 {
		return fmt.Errorf("max_output_bytes must be >= 0, got %d", c.MaxOutputBytes)
	}

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	switch c.LogLevel {
	case "":
		c.LogLevel = "info"
	case "trace", "debug", "info", "warn", "warning", "error", "off", "disabled":
	default:
		return fmt.Errorf("invalid log_level: %s (must be 'debug', 'info', 'warn', 'error' or 'off')", c.LogLevel)
	}

	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	switch c.LogFormat {
	case "":
		c.LogFormat = "console"
	case "console", "json":
	default:
		return fmt.Errorf("invalid log_format: %s (must be 'console' or 'json')", c.LogFormat)
	}

	return nil
}

// Load reads path (when non-empty), falls back to peb-bridge.yml in dir when it
// exists, applies environment overrides and validates the result.
func Load(path, dir string) (*BridgeConfig, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(dir, DefaultFilename)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case explicit || !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv overlays PEB_BRIDGE_* variables onto cfg
func applyEnv(cfg *BridgeConfig) error {
	if raw := os.Getenv(EnvCommand); raw != "" {
		var command []string
		if err := json.Unmarshal([]byte(raw), &command); err != nil {
			return fmt.Errorf("failed to parse %s as JSON array: %w", EnvCommand, err)
		}
		cfg.Command = command
	}

	if raw := os.Getenv(EnvTimeout); raw != "" {
		// Bare integers are seconds.
		if secs, err := strconv.Atoi(raw); err == nil {
			raw = (time.Duration(secs) * time.Second).String()
		}
		cfg.Timeout = raw
	}

	if raw := os.Getenv(EnvLogLevel); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv(EnvLogFormat); raw != "" {
		cfg.LogFormat = raw
	}

	return nil
}

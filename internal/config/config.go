// Package config provides configuration parsing and validation for torchat.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete torchat configuration.
type Config struct {
	SOCKS    SOCKSConfig    `yaml:"socks"`
	Listen   ListenConfig   `yaml:"listen"`
	Remote   RemoteConfig   `yaml:"remote"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Log      LogConfig      `yaml:"log"`
}

// SOCKSConfig points at the local Tor SOCKS5 proxy used to dial outbound
// connector connections.
type SOCKSConfig struct {
	ProxyHost string `yaml:"proxy_host"`
	ProxyPort int    `yaml:"proxy_port"`
}

// ListenConfig configures the loopback port torchat binds when run as the
// hidden-service (listener) side of a chat.
type ListenConfig struct {
	Port int `yaml:"port"`
}

// RemoteConfig names the peer torchat dials when run as the connector side.
// Address is empty for a listener-only run.
type RemoteConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// TimeoutsConfig bounds the SOCKS5 dial/IO and the handshake.
type TimeoutsConfig struct {
	SocksIO   time.Duration `yaml:"socks_io"`
	Handshake time.Duration `yaml:"handshake"`
}

// LogConfig selects the structured logger's level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with the same defaults used when no config file
// is supplied.
func Default() *Config {
	return &Config{
		SOCKS: SOCKSConfig{
			ProxyHost: "127.0.0.1",
			ProxyPort: 9050,
		},
		Listen: ListenConfig{
			Port: 7777,
		},
		Remote: RemoteConfig{
			Port: 9999,
		},
		Timeouts: TimeoutsConfig{
			SocksIO:   120 * time.Second,
			Handshake: 60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, expanding environment
// variable references and applying defaults for unset fields.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envVarRegex matches ${VAR}, ${VAR:-default}, or $VAR patterns.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		if idx := strings.Index(name, ":-"); idx != -1 {
			varName := name[:idx]
			defaultVal := name[idx+2:]
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

const maxOnionAddressLen = 255

// Validate checks the configuration for errors, accumulating every problem
// found rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []string

	if !isValidPort(c.SOCKS.ProxyPort) {
		errs = append(errs, fmt.Sprintf("socks.proxy_port out of range: %d", c.SOCKS.ProxyPort))
	}
	if !isValidPort(c.Listen.Port) {
		errs = append(errs, fmt.Sprintf("listen.port out of range: %d", c.Listen.Port))
	}
	if len(c.Remote.Address) > maxOnionAddressLen {
		errs = append(errs, fmt.Sprintf("remote.address exceeds %d bytes", maxOnionAddressLen))
	}
	if c.Remote.Address != "" && !isValidPort(c.Remote.Port) {
		errs = append(errs, fmt.Sprintf("remote.port out of range: %d", c.Remote.Port))
	}
	if !isValidLogLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	if !isValidLogFormat(c.Log.Format) {
		errs = append(errs, fmt.Sprintf("invalid log.format: %s (must be text or json)", c.Log.Format))
	}
	if c.Timeouts.SocksIO <= 0 {
		errs = append(errs, "timeouts.socks_io must be positive")
	}
	if c.Timeouts.Handshake <= 0 {
		errs = append(errs, "timeouts.handshake must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isValidPort(p int) bool {
	return p >= 1 && p <= 65535
}

func isValidLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

func isValidLogFormat(format string) bool {
	switch strings.ToLower(format) {
	case "text", "json":
		return true
	}
	return false
}

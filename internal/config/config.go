// Package config provides configuration management for tplinker.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Never disables the discovery listen window
const Never = "never"

// Config represents the application configuration structure
type Config struct {
	Timeout     string        `mapstructure:"timeout"`     // Discovery listen window in seconds, or "never"
	Delay       string        `mapstructure:"delay"`       // Reboot delay in seconds
	Port        int           `mapstructure:"port"`        // Device port used for discovery broadcasts
	Broadcast   string        `mapstructure:"broadcast"`   // Discovery broadcast address
	IOTimeout   time.Duration `mapstructure:"io-timeout"`  // Per-request socket deadline (0 disables)
	Concurrency string        `mapstructure:"concurrency"` // Concurrency limit ("auto" or number)
	JSON        bool          `mapstructure:"json"`        // Render results as JSON
	Long        bool          `mapstructure:"long"`        // Render the long table
	Inventory   string        `mapstructure:"inventory"`   // Path to a device inventory file
	Group       string        `mapstructure:"group"`       // Inventory group to target
	LogLevel    string        `mapstructure:"log-level"`   // Log level (debug, info, warn, error)
	LogFormat   string        `mapstructure:"log-format"`  // Log format (json, text)
}

// Manager defines the interface for configuration management
type Manager interface {
	// Load reads configuration from all sources (files, env vars)
	Load() (*Config, error)

	// SetDefaults establishes default configuration values
	SetDefaults()

	// Validate ensures configuration values are valid and consistent
	Validate(config *Config) error
}

// ViperManager implements the Manager interface using Viper
type ViperManager struct {
	v          *viper.Viper
	configFile string
}

// NewManager creates a new configuration manager. A non-empty configFile is read
// instead of searching the default locations.
func NewManager(configFile string) *ViperManager {
	return &ViperManager{
		v:          viper.New(),
		configFile: configFile,
	}
}

// SetDefaults establishes default configuration values
func (m *ViperManager) SetDefaults() {
	m.v.SetDefault("timeout", "3")
	m.v.SetDefault("delay", "1")
	m.v.SetDefault("port", 9999)
	m.v.SetDefault("broadcast", "255.255.255.255")
	m.v.SetDefault("io-timeout", 10*time.Second)
	m.v.SetDefault("concurrency", "auto")
	m.v.SetDefault("json", false)
	m.v.SetDefault("long", false)
	m.v.SetDefault("inventory", "")
	m.v.SetDefault("group", "")
	m.v.SetDefault("log-level", "error")
	m.v.SetDefault("log-format", "text")
}

// Load reads configuration from all sources with proper precedence
func (m *ViperManager) Load() (*Config, error) {
	m.SetDefaults()

	m.v.SetEnvPrefix("TPLINKER")
	m.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	m.v.AutomaticEnv()

	if m.configFile != "" {
		m.v.SetConfigFile(m.configFile)
		if err := m.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", m.configFile, err)
		}
	} else if err := m.readDefaultConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := m.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := m.Validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// readDefaultConfig searches the current directory, then the user's and the system's
// config directories. A missing file is not an error.
func (m *ViperManager) readDefaultConfig() error {
	m.v.SetConfigName("config")
	m.v.AddConfigPath(".")
	if homeDir, err := os.UserHomeDir(); err == nil {
		m.v.AddConfigPath(filepath.Join(homeDir, ".config", "tplinker"))
	}
	m.v.AddConfigPath("/etc/tplinker/")

	formats := []string{"yaml", "yml", "json", "toml"}
	for _, format := range formats {
		m.v.SetConfigType(format)
		if err := m.v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("error reading %s config file: %w", format, err)
			}
		} else {
			return nil
		}
	}
	return nil
}

// ConfigFileUsed returns the path of the config file that was read, if any
func (m *ViperManager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// Validate ensures configuration values are valid and consistent
func (m *ViperManager) Validate(config *Config) error {
	if config.Concurrency != "auto" {
		if concurrency, err := strconv.Atoi(config.Concurrency); err != nil {
			return fmt.Errorf("invalid concurrency value '%s': must be 'auto' or a positive integer", config.Concurrency)
		} else if concurrency <= 0 || concurrency > 1000 {
			return fmt.Errorf("concurrency must be between 1 and 1000, got %d", concurrency)
		}
	}

	if _, _, err := ParseDiscoverTimeout(config.Timeout); err != nil {
		return err
	}
	if _, err := ParseSeconds(config.Delay); err != nil {
		return fmt.Errorf("invalid delay: %w", err)
	}

	if config.Port < 1 || config.Port > 65535 {
		return fmt.Errorf("port number %d out of valid range (1-65535)", config.Port)
	}
	if config.Broadcast == "" {
		return fmt.Errorf("broadcast address cannot be empty")
	}
	if config.IOTimeout < 0 {
		return fmt.Errorf("io-timeout must be non-negative, got %v", config.IOTimeout)
	}
	if config.Group != "" && config.Inventory == "" {
		return fmt.Errorf("group %q given without an inventory file", config.Group)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[config.LogLevel] {
		return fmt.Errorf("invalid log level '%s': must be one of 'debug', 'info', 'warn' or 'error'", config.LogLevel)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[config.LogFormat] {
		return fmt.Errorf("invalid log format '%s': must be one of 'json' or 'text'", config.LogFormat)
	}

	return nil
}

// ParseSeconds parses a whole, non-negative number of seconds
func ParseSeconds(value string) (time.Duration, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%q is not a whole number of seconds", value)
	}
	return time.Duration(n) * time.Second, nil
}

// ParseDiscoverTimeout parses the discovery window. "never" returns unbounded; a
// bounded window lasts at least one second.
func ParseDiscoverTimeout(value string) (window time.Duration, unbounded bool, err error) {
	if strings.TrimSpace(value) == Never {
		return 0, true, nil
	}
	window, err = ParseSeconds(value)
	if err != nil {
		return 0, false, fmt.Errorf("invalid timeout: %w (or %q)", err, Never)
	}
	if window == 0 {
		return 0, false, fmt.Errorf("invalid timeout: the listen window must be at least 1 second (or %q)", Never)
	}
	return window, false, nil
}

// GetEnvVarNames returns a list of all supported environment variable names
func GetEnvVarNames() []string {
	return []string{
		"TPLINKER_TIMEOUT",
		"TPLINKER_DELAY",
		"TPLINKER_PORT",
		"TPLINKER_BROADCAST",
		"TPLINKER_IO_TIMEOUT",
		"TPLINKER_CONCURRENCY",
		"TPLINKER_JSON",
		"TPLINKER_LONG",
		"TPLINKER_INVENTORY",
		"TPLINKER_GROUP",
		"TPLINKER_LOG_LEVEL",
		"TPLINKER_LOG_FORMAT",
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for NaviBridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Cloud     CloudConfig     `yaml:"cloud"`
	Polling   PollingConfig   `yaml:"polling"`
	Transport TransportConfig `yaml:"transport"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// CloudConfig contains Navien cloud account credentials.
type CloudConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// PollingConfig controls how often the coordinator triggers device requests.
type PollingConfig struct {
	// ScanIntervalSeconds is the coordinator refresh interval.
	// Clamped to [10, 300] during validation to avoid overloading the
	// vendor service.
	ScanIntervalSeconds int `yaml:"scan_interval_seconds"`

	// StatusIntervalSeconds is the transport-owned periodic status request
	// interval per device.
	StatusIntervalSeconds int `yaml:"status_interval_seconds"`

	// InfoIntervalSeconds is the transport-owned periodic device info
	// request interval per device.
	InfoIntervalSeconds int `yaml:"info_interval_seconds"`
}

// TransportConfig contains vendor MQTT broker connection settings.
type TransportConfig struct {
	Broker    BrokerConfig    `yaml:"broker"`
	QoS       int             `yaml:"qos"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// BrokerConfig contains broker connection details.
// The NWP500 cloud service terminates MQTT over TLS, so TLS defaults to on.
type BrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// ReconnectConfig contains transport reconnection settings.
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`

	// AccessToken is an optional static bearer token. When empty the API is
	// unauthenticated, which is only appropriate on trusted networks.
	AccessToken string `yaml:"access_token"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Scan interval bounds, matching the vendor service limits.
const (
	MinScanIntervalSeconds = 10
	MaxScanIntervalSeconds = 300
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: NAVIBRIDGE_SECTION_KEY
// For example: NAVIBRIDGE_CLOUD_EMAIL, NAVIBRIDGE_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Polling: PollingConfig{
			ScanIntervalSeconds:   30,
			StatusIntervalSeconds: 300,
			InfoIntervalSeconds:   1800,
		},
		Transport: TransportConfig{
			Broker: BrokerConfig{
				Host:     "mqtt.naviensmartcontrol.com",
				Port:     8883,
				TLS:      true,
				ClientID: "navibridge",
			},
			QoS: 1,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/navibridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: NAVIBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Cloud credentials (preferred over storing them in the file)
	if v := os.Getenv("NAVIBRIDGE_CLOUD_EMAIL"); v != "" {
		cfg.Cloud.Email = v
	}
	if v := os.Getenv("NAVIBRIDGE_CLOUD_PASSWORD"); v != "" {
		cfg.Cloud.Password = v
	}

	// Polling
	if v := os.Getenv("NAVIBRIDGE_SCAN_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Polling.ScanIntervalSeconds = n
		}
	}

	// Database
	if v := os.Getenv("NAVIBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("NAVIBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("NAVIBRIDGE_API_TOKEN"); v != "" {
		cfg.API.AccessToken = v
	}

	// InfluxDB
	if v := os.Getenv("NAVIBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Scan intervals outside the supported bounds are clamped rather than
// rejected, matching the vendor app's behaviour.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Cloud credentials are required: without them neither discovery nor
	// the push session can be established.
	if c.Cloud.Email == "" {
		errs = append(errs, "cloud.email is required (set NAVIBRIDGE_CLOUD_EMAIL environment variable)")
	}
	if c.Cloud.Password == "" {
		errs = append(errs, "cloud.password is required (set NAVIBRIDGE_CLOUD_PASSWORD environment variable)")
	}

	// Clamp scan interval to supported bounds
	if c.Polling.ScanIntervalSeconds < MinScanIntervalSeconds {
		c.Polling.ScanIntervalSeconds = MinScanIntervalSeconds
	}
	if c.Polling.ScanIntervalSeconds > MaxScanIntervalSeconds {
		c.Polling.ScanIntervalSeconds = MaxScanIntervalSeconds
	}
	if c.Polling.StatusIntervalSeconds <= 0 {
		errs = append(errs, "polling.status_interval_seconds must be positive")
	}
	if c.Polling.InfoIntervalSeconds <= 0 {
		errs = append(errs, "polling.info_interval_seconds must be positive")
	}

	// Transport validation
	if c.Transport.Broker.Host == "" {
		errs = append(errs, "transport.broker.host is required")
	}
	if c.Transport.QoS < 0 || c.Transport.QoS > 2 {
		errs = append(errs, "transport.qos must be 0, 1, or 2")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ScanInterval returns the coordinator refresh interval as a Duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Polling.ScanIntervalSeconds) * time.Second
}

// StatusInterval returns the periodic status request interval as a Duration.
func (c *Config) StatusInterval() time.Duration {
	return time.Duration(c.Polling.StatusIntervalSeconds) * time.Second
}

// InfoInterval returns the periodic device info request interval as a Duration.
func (c *Config) InfoInterval() time.Duration {
	return time.Duration(c.Polling.InfoIntervalSeconds) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

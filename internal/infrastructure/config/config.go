package config

import (
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for chardevd.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Devices  DevicesConfig  `yaml:"devices"`
	Nodes    NodesConfig    `yaml:"nodes"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Database DatabaseConfig `yaml:"database"`
	Audit    AuditConfig    `yaml:"audit"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Console  ConsoleConfig  `yaml:"console"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DevicesConfig controls the device registry.
type DevicesConfig struct {
	Count     int    `yaml:"count"`
	Capacity  int    `yaml:"capacity"`
	ClassName string `yaml:"class_name"`

	// Mode is the octal access mode advertised for every node, e.g. "0666".
	Mode string `yaml:"mode"`
}

// FileMode parses Mode as an octal permission value.
func (d DevicesConfig) FileMode() (fs.FileMode, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(d.Mode), 8, 32)
	if err != nil {
		return 0, fmt.Errorf("devices.mode %q: %w", d.Mode, err)
	}
	if v > 0o777 {
		return 0, fmt.Errorf("devices.mode %q: only permission bits are allowed", d.Mode)
	}
	return fs.FileMode(v), nil
}

// NodesConfig selects the visibility backend for device nodes.
type NodesConfig struct {
	// Backend is "memory" or "mqtt".
	Backend     string `yaml:"backend"`
	TopicPrefix string `yaml:"topic_prefix"`

	// Encoding of announced records: "json" or "cbor".
	Encoding string `yaml:"encoding"`
}

// Node backends.
const (
	NodesBackendMemory = "memory"
	NodesBackendMQTT   = "mqtt"
)

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// DatabaseConfig contains SQLite database settings for the audit store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// AuditConfig controls the lifecycle audit trail.
type AuditConfig struct {
	Enabled   bool `yaml:"enabled"`
	QueueSize int  `yaml:"queue_size"`
}

// InfluxDBConfig contains InfluxDB connection settings for IO metrics.
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
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// ConsoleConfig controls the interactive console.
type ConsoleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Prompt  string `yaml:"prompt"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CHARDEV_SECTION_KEY
// For example: CHARDEV_DATABASE_PATH, CHARDEV_DEVICES_COUNT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with the reference device layout: two
// 256-byte devices named mychardev-0 and mychardev-1, published in memory.
func defaultConfig() *Config {
	return &Config{
		Devices: DevicesConfig{
			Count:     2,
			Capacity:  256,
			ClassName: "mychardev",
			Mode:      "0666",
		},
		Nodes: NodesConfig{
			Backend:     NodesBackendMemory,
			TopicPrefix: "chardev",
			Encoding:    "json",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "chardevd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/chardev.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Audit: AuditConfig{
			Enabled:   false,
			QueueSize: 256,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Console: ConsoleConfig{
			Prompt: "chardev> ",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CHARDEV_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Devices
	if v := os.Getenv("CHARDEV_DEVICES_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHARDEV_DEVICES_COUNT: %w", err)
		}
		cfg.Devices.Count = n
	}

	// Database
	if v := os.Getenv("CHARDEV_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("CHARDEV_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CHARDEV_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CHARDEV_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("CHARDEV_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("CHARDEV_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	// Devices
	if c.Devices.Count < 1 {
		errs = append(errs, "devices.count must be at least 1")
	}
	if c.Devices.Capacity < 2 {
		errs = append(errs, "devices.capacity must be at least 2")
	}
	if c.Devices.ClassName == "" {
		errs = append(errs, "devices.class_name is required")
	} else if strings.ContainsAny(c.Devices.ClassName, "/+#") {
		errs = append(errs, "devices.class_name must not contain '/', '+' or '#'")
	}
	if _, err := c.Devices.FileMode(); err != nil {
		errs = append(errs, err.Error())
	}

	// Nodes
	switch c.Nodes.Backend {
	case NodesBackendMemory, NodesBackendMQTT:
	default:
		errs = append(errs, fmt.Sprintf("nodes.backend must be %q or %q", NodesBackendMemory, NodesBackendMQTT))
	}
	switch strings.ToLower(c.Nodes.Encoding) {
	case "", "json", "cbor":
	default:
		errs = append(errs, "nodes.encoding must be json or cbor")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Audit
	if c.Audit.Enabled {
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required when audit is enabled")
		}
		if c.Audit.QueueSize < 1 {
			errs = append(errs, "audit.queue_size must be at least 1")
		}
	}

	// InfluxDB
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// API
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

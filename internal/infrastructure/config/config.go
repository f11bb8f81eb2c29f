package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for NexoWatt VIS.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	SSE       SSEConfig       `yaml:"sse"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	TSDB      TSDBConfig      `yaml:"tsdb"`
	History   HistoryConfig   `yaml:"history"`
	Logging   LoggingConfig   `yaml:"logging"`
	Installer InstallerConfig `yaml:"installer"`
	Points    PointsConfig    `yaml:"points"`
	UI        UIConfig        `yaml:"ui"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
// The database only holds the audit trail; the value cache is never persisted.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// StatePrefix is prepended to the topic derived from an external id.
	// Example: "iobroker/" turns "inv.0.power" into "iobroker/inv/0/power".
	StatePrefix string `yaml:"state_prefix"`

	// CommandSuffix is appended to a state topic to form its write topic.
	// Default: "set"
	CommandSuffix string `yaml:"command_suffix"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
// Write is applied per request, except on streaming endpoints.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket channel settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
	SendBuffer     int    `yaml:"send_buffer"`
}

// SSEConfig contains Server-Sent Events channel settings.
type SSEConfig struct {
	Path string `yaml:"path"`

	// KeepAlive is the interval between comment heartbeats (seconds).
	KeepAlive int `yaml:"keep_alive"`

	// WriteTimeout bounds a single event write (seconds).
	WriteTimeout int `yaml:"write_timeout"`

	SendBuffer int `yaml:"send_buffer"`
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

// TSDBConfig contains VictoriaMetrics connection settings.
type TSDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// HistoryConfig selects the history backend and the named series it serves.
type HistoryConfig struct {
	// Backend is "influxdb" or "tsdb". Empty picks whichever is enabled.
	Backend string `yaml:"backend"`

	// Series maps a chart series name (pv, load, buy, ...) to a logical key.
	Series map[string]string `yaml:"series"`

	// MaxPoints caps the number of buckets a single query may return.
	MaxPoints int `yaml:"max_points"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// InstallerConfig configures the privileged installer login.
type InstallerConfig struct {
	// Secret is the plaintext installer secret. Prefer SecretHash.
	Secret string `yaml:"secret"`

	// SecretHash is an argon2id PHC string (see "nexowatt hash-secret").
	SecretHash string `yaml:"secret_hash"`

	// SessionTTL is the absolute lifetime of an installer session.
	// Default: 2h
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// PointsConfig locates the logical-key mapping tables.
type PointsConfig struct {
	File string `yaml:"file"`

	// SeedDefaults writes configured defaults for points the store has no value for.
	SeedDefaults bool `yaml:"seed_defaults"`

	// ReadTimeout bounds each initial read at startup.
	// Default: 3s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// ReadConcurrency bounds parallel initial reads.
	// Default: 8
	ReadConcurrency int `yaml:"read_concurrency"`
}

// UIConfig contains settings passed through to the dashboard.
type UIConfig struct {
	Units     map[string]string `yaml:"units"`
	AssetsDir string            `yaml:"assets_dir"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: NEXOWATT_SECTION_KEY
// For example: NEXOWATT_MQTT_HOST, NEXOWATT_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "NexoWatt",
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/nexowatt.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "nexowatt-vis",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			CommandSuffix: "set",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8188,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
			SendBuffer:     256,
		},
		SSE: SSEConfig{
			Path:         "/events",
			KeepAlive:    25,
			WriteTimeout: 5,
			SendBuffer:   256,
		},
		History: HistoryConfig{
			MaxPoints: 11000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Installer: InstallerConfig{
			SessionTTL: 2 * time.Hour,
		},
		Points: PointsConfig{
			File:            "configs/points.yaml",
			ReadTimeout:     3 * time.Second,
			ReadConcurrency: 8,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: NEXOWATT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("NEXOWATT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("NEXOWATT_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("NEXOWATT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("NEXOWATT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("NEXOWATT_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("NEXOWATT_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Database
	if v := os.Getenv("NEXOWATT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("NEXOWATT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Installer secret (never commit it to the YAML file)
	if v := os.Getenv("NEXOWATT_INSTALLER_SECRET"); v != "" {
		cfg.Installer.Secret = v
	}
	if v := os.Getenv("NEXOWATT_INSTALLER_SECRET_HASH"); v != "" {
		cfg.Installer.SecretHash = v
	}

	// Points
	if v := os.Getenv("NEXOWATT_POINTS_FILE"); v != "" {
		cfg.Points.File = v
	}
}

// Validate checks the configuration for errors that prevent startup.
//
// Non-fatal issues (such as a missing installer secret) are reported by
// Warnings instead, so the dashboard can still serve read-only data.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Points.File == "" {
		errs = append(errs, "points.file is required")
	}

	if c.Installer.SessionTTL <= 0 {
		errs = append(errs, "installer.session_ttl must be positive")
	}

	switch c.History.Backend {
	case "":
	case "influxdb":
		if !c.InfluxDB.Enabled {
			errs = append(errs, "history.backend is influxdb but influxdb is disabled")
		}
	case "tsdb":
		if !c.TSDB.Enabled {
			errs = append(errs, "history.backend is tsdb but tsdb is disabled")
		}
	default:
		errs = append(errs, "history.backend must be influxdb or tsdb")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Warnings returns configuration issues that do not prevent startup.
func (c *Config) Warnings() []string {
	var warns []string

	if c.Installer.Secret == "" && c.Installer.SecretHash == "" {
		warns = append(warns, "installer secret is not configured: privileged writes are disabled")
	}
	if c.Installer.Secret != "" && c.Installer.SecretHash != "" {
		warns = append(warns, "both installer.secret and installer.secret_hash are set: secret_hash wins")
	}
	if (c.InfluxDB.Enabled || c.TSDB.Enabled) && len(c.History.Series) == 0 {
		warns = append(warns, "a history backend is enabled but history.series is empty")
	}
	if c.MQTT.Auth.Username == "" {
		warns = append(warns, "mqtt.auth.username is empty: connecting anonymously")
	}

	return warns
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}

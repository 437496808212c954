package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Annunciator Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
	Registry  RegistryConfig  `yaml:"registry"`
	Database  DatabaseConfig  `yaml:"database"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Events    EventsConfig    `yaml:"events"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Security  SecurityConfig  `yaml:"security"`
	Web       WebConfig       `yaml:"web"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	Name string `yaml:"name"`
}

// APIConfig contains HTTP API server settings.
//
// Port 0 means "use the port stored in the registry snapshot", which keeps
// installations that only ever edited config.json working unchanged.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
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

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// Rotation values are passed straight to lumberjack.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// RegistryConfig selects where devices and groups are persisted.
type RegistryConfig struct {
	// Backend is "json" (a single config.json file) or "sqlite".
	Backend string `yaml:"backend"`

	// Path is the JSON file location. Ignored for the sqlite backend.
	Path string `yaml:"path"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// DispatchConfig controls outbound device exchanges.
type DispatchConfig struct {
	// RequestTimeout bounds one device exchange, digest retry included (seconds).
	RequestTimeout int `yaml:"request_timeout"`
}

// EventsConfig sizes the event bus buffers.
type EventsConfig struct {
	BufferSize       int `yaml:"buffer_size"`
	SubscriberBuffer int `yaml:"subscriber_buffer"`
	ForwardQueue     int `yaml:"forward_queue"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// SecurityConfig contains security settings for the management API.
type SecurityConfig struct {
	AuthEnabled bool        `yaml:"auth_enabled"`
	JWT         JWTConfig   `yaml:"jwt"`
	Admin       AdminConfig `yaml:"admin"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// AdminConfig holds the single management account.
// PasswordHash is an argon2id PHC string (see "annunciator hash-password").
type AdminConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// WebConfig controls the embedded management UI.
type WebConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir serves the UI from disk instead of the embedded copy when set and
	// present. Useful while editing the UI.
	Dir string `yaml:"dir"`
}

// Registry backend names.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults); a missing file keeps the defaults
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ANNUNCIATOR_SECTION_KEY
// For example: ANNUNCIATOR_REGISTRY_PATH, ANNUNCIATOR_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Run on defaults; the registry file carries the device list.
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			Name: "Annunciator",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 0,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  120,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/annunciator.log",
				MaxSize:    50,
				MaxBackups: 5,
				MaxAge:     30,
			},
		},
		Registry: RegistryConfig{
			Backend: BackendJSON,
			Path:    "./data/config.json",
		},
		Database: DatabaseConfig{
			Path:        "./data/annunciator.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Dispatch: DispatchConfig{
			RequestTimeout: 10,
		},
		Events: EventsConfig{
			BufferSize:       500,
			SubscriberBuffer: 64,
			ForwardQueue:     1024,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "annunciator-core",
			},
			QoS:         1,
			TopicPrefix: "annunciator",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
			Admin: AdminConfig{
				Username: "admin",
			},
		},
		Web: WebConfig{
			Enabled: true,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ANNUNCIATOR_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// API
	if v := os.Getenv("ANNUNCIATOR_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("ANNUNCIATOR_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ANNUNCIATOR_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	// Logging
	if v := os.Getenv("ANNUNCIATOR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Registry
	if v := os.Getenv("ANNUNCIATOR_REGISTRY_BACKEND"); v != "" {
		cfg.Registry.Backend = v
	}
	if v := os.Getenv("ANNUNCIATOR_REGISTRY_PATH"); v != "" {
		cfg.Registry.Path = v
	}

	// Database
	if v := os.Getenv("ANNUNCIATOR_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Dispatch
	if v := os.Getenv("ANNUNCIATOR_DISPATCH_REQUEST_TIMEOUT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ANNUNCIATOR_DISPATCH_REQUEST_TIMEOUT: %w", err)
		}
		cfg.Dispatch.RequestTimeout = secs
	}

	// MQTT
	if v := os.Getenv("ANNUNCIATOR_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ANNUNCIATOR_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ANNUNCIATOR_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("ANNUNCIATOR_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("ANNUNCIATOR_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("ANNUNCIATOR_ADMIN_PASSWORD_HASH"); v != "" {
		cfg.Security.Admin.PasswordHash = v
	}

	return nil
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// API validation (0 defers to the registry snapshot)
	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 0 and 65535")
	}

	switch c.Logging.Output {
	case "stdout", "stderr":
	case "file":
		if c.Logging.File.Path == "" {
			errs = append(errs, "logging.file.path is required when logging.output is file")
		}
	default:
		errs = append(errs, "logging.output must be stdout, stderr, or file")
	}

	// Registry validation
	switch c.Registry.Backend {
	case BackendJSON:
		if c.Registry.Path == "" {
			errs = append(errs, "registry.path is required for the json backend")
		}
	case BackendSQLite:
	default:
		errs = append(errs, "registry.backend must be json or sqlite")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Dispatch.RequestTimeout <= 0 {
		errs = append(errs, "dispatch.request_timeout must be greater than 0")
	}

	if c.Events.BufferSize <= 0 || c.Events.SubscriberBuffer <= 0 || c.Events.ForwardQueue <= 0 {
		errs = append(errs, "events buffer sizes must be greater than 0")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	// Security validation. The devices behind this service drive public
	// address speakers, so a forgeable token is not acceptable.
	if c.Security.AuthEnabled {
		const minJWTSecretLength = 32
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required (set ANNUNCIATOR_JWT_SECRET environment variable)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
		}
		if c.Security.Admin.Username == "" || c.Security.Admin.PasswordHash == "" {
			errs = append(errs, "security.admin.username and security.admin.password_hash are required when auth is enabled")
		}
		if c.Security.JWT.AccessTokenTTL <= 0 {
			errs = append(errs, "security.jwt.access_token_ttl must be greater than 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// GetRequestTimeout returns the per-device exchange bound as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Dispatch.RequestTimeout) * time.Second
}

// GetAccessTokenTTL returns the JWT lifetime as a Duration.
func (c JWTConfig) GetAccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTL) * time.Minute
}

// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Neo4j   Neo4jConfig   `yaml:"neo4j"`
	Schema  SchemaConfig  `yaml:"schema"`
	Cache   CacheConfig   `yaml:"cache"`
	UUID    RemoteConfig  `yaml:"uuid_service"`
	Globus  GlobusConfig  `yaml:"globus"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Neo4jConfig configures the graph database connection.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database,omitempty"`
}

// SchemaConfig configures the provenance schema document.
type SchemaConfig struct {
	Path string `yaml:"path"`

	// HotReload re-parses the schema when the file changes; a schema that
	// fails validation keeps the previous one active.
	HotReload bool `yaml:"hot_reload"`
}

// CacheConfig configures the completed-document cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// RemoteConfig configures a collaborator service endpoint.
type RemoteConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// GlobusConfig configures the identity collaborator.
type GlobusConfig struct {
	Remote RemoteConfig `yaml:",inline"`

	// AdminGroupUUID names the group whose members hold the protected
	// access level.
	AdminGroupUUID string `yaml:"admin_group_uuid"`

	// TokenTTL bounds how long a token resolution is cached.
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// This is useful for Docker deployments where no config file is needed.
//
// Environment variables:
//
//	ENTITY_API_NEO4J_URI        - Neo4j bolt URI (required)
//	ENTITY_API_NEO4J_USERNAME   - Neo4j username
//	ENTITY_API_NEO4J_PASSWORD   - Neo4j password
//	ENTITY_API_SCHEMA_PATH      - Provenance schema file (default: schemas/provenance.yaml)
//	ENTITY_API_SERVER_HOST      - Server host (default: 0.0.0.0)
//	ENTITY_API_SERVER_PORT      - Server port (default: 8080)
//	ENTITY_API_UUID_URL         - uuid collaborator base URL (required)
//	ENTITY_API_UUID_TOKEN       - service account token for the uuid collaborator
//	ENTITY_API_GLOBUS_URL       - identity collaborator base URL (required)
//	ENTITY_API_ADMIN_GROUP_UUID - admin group uuid
//	ENTITY_API_CACHE_TTL        - document cache TTL (default: 5m)
//	ENTITY_API_LOG_LEVEL        - Log level: debug, info, warn, error (default: info)
//	ENTITY_API_LOG_FORMAT       - Log format: json or console (default: json)
//	ENTITY_API_METRICS_ENABLED  - Enable /metrics endpoint (default: true)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment variables.
// This is the recommended method for Docker deployments.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	if os.Getenv("ENTITY_API_NEO4J_URI") != "" {
		return LoadFromEnv()
	}

	return nil, fmt.Errorf("no configuration found: provide config file or set ENTITY_API_NEO4J_URI")
}

// HasEnvConfig returns true if essential environment variables are set.
func HasEnvConfig() bool {
	return os.Getenv("ENTITY_API_NEO4J_URI") != ""
}

// applyEnvOverrides applies ENTITY_API_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("ENTITY_API_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("ENTITY_API_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ENTITY_API_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("ENTITY_API_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Graph database configuration
	if v := os.Getenv("ENTITY_API_NEO4J_URI"); v != "" {
		cfg.Neo4j.URI = v
	}
	if v := os.Getenv("ENTITY_API_NEO4J_USERNAME"); v != "" {
		cfg.Neo4j.Username = v
	}
	if v := os.Getenv("ENTITY_API_NEO4J_PASSWORD"); v != "" {
		cfg.Neo4j.Password = v
	}
	if v := os.Getenv("ENTITY_API_NEO4J_DATABASE"); v != "" {
		cfg.Neo4j.Database = v
	}

	// Schema configuration
	if v := os.Getenv("ENTITY_API_SCHEMA_PATH"); v != "" {
		cfg.Schema.Path = v
	}
	if v := os.Getenv("ENTITY_API_SCHEMA_HOT_RELOAD"); v != "" {
		cfg.Schema.HotReload = parseBool(v)
	}

	// Cache configuration
	if v := os.Getenv("ENTITY_API_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}

	// Collaborator configuration
	if v := os.Getenv("ENTITY_API_UUID_URL"); v != "" {
		cfg.UUID.URL = v
	}
	if v := os.Getenv("ENTITY_API_UUID_TOKEN"); v != "" {
		cfg.UUID.Token = v
	}
	if v := os.Getenv("ENTITY_API_GLOBUS_URL"); v != "" {
		cfg.Globus.Remote.URL = v
	}
	if v := os.Getenv("ENTITY_API_ADMIN_GROUP_UUID"); v != "" {
		cfg.Globus.AdminGroupUUID = v
	}
	if v := os.Getenv("ENTITY_API_GLOBUS_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Globus.TokenTTL = d
		}
	}

	// Logging configuration
	if v := os.Getenv("ENTITY_API_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ENTITY_API_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("ENTITY_API_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("ENTITY_API_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Neo4j.Username == "" {
		cfg.Neo4j.Username = "neo4j"
	}

	if cfg.Schema.Path == "" {
		cfg.Schema.Path = "schemas/provenance.yaml"
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 5 * time.Minute
	}

	if cfg.Globus.TokenTTL == 0 {
		cfg.Globus.TokenTTL = time.Minute
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Neo4j.URI == "" {
		return fmt.Errorf("neo4j.uri is required")
	}
	if cfg.UUID.URL == "" {
		return fmt.Errorf("uuid_service.url is required")
	}
	if cfg.Globus.Remote.URL == "" {
		return fmt.Errorf("globus.url is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, got %q", cfg.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	return nil
}

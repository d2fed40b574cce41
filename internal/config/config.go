// Package config provides configuration management for the workflow engine.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, SERVER_PORT)
// 3. Default values
//
// Import Path: dbaas.io/workflow/internal/config
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Credential source kinds.
const (
	CredentialSourceFile     = "file"
	CredentialSourceDatabase = "database"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Provider ProviderConfig `mapstructure:"provider"`
}

// ServerConfig contains HTTP server settings for the operation status API.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// CORS. A "*" origin is dropped unless UnsafeAllowAllOrigins is set.
	AllowedOrigins        []string `mapstructure:"allowed_origins"`
	AllowCredentials      bool     `mapstructure:"allow_credentials"`
	UnsafeAllowAllOrigins bool     `mapstructure:"unsafe_allow_all_origins"`
}

// DatabaseConfig contains PostgreSQL connection settings for the read-only store.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	// AutoMigrate creates the store tables on startup. Development only.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize  int `mapstructure:"general_pool_size"`
	PipelinePoolSize int `mapstructure:"pipeline_pool_size"`

	// MetricsInterval is how often pool usage is logged. 0 disables it.
	MetricsInterval time.Duration `mapstructure:"metrics_interval"`
}

// ProviderConfig contains settings shared by the provider HTTP clients.
type ProviderConfig struct {
	// HTTPTimeout bounds every single provider call.
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`

	// CredentialSource is "file" or "database".
	CredentialSource string `mapstructure:"credential_source"`
	CredentialsFile  string `mapstructure:"credentials_file"`
}

// Load reads configuration from file and environment variables.
// Environment variables carry no prefix (DATABASE_URL, PROVIDER_HTTP_TIMEOUT, ...).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/dbaas-workflow")

	// database.max_conns → DATABASE_MAX_CONNS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	if c.Provider.HTTPTimeout <= 0 {
		return fmt.Errorf("provider.http_timeout must be positive")
	}
	switch c.Provider.CredentialSource {
	case CredentialSourceDatabase:
	case CredentialSourceFile:
		if c.Provider.CredentialsFile == "" {
			return fmt.Errorf("provider.credentials_file is required when provider.credential_source is %q", CredentialSourceFile)
		}
	default:
		return fmt.Errorf("provider.credential_source must be %q or %q, got %q",
			CredentialSourceFile, CredentialSourceDatabase, c.Provider.CredentialSource)
	}
	if c.Worker.PipelinePoolSize <= 0 {
		return fmt.Errorf("worker.pipeline_pool_size must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.allow_credentials", false)
	v.SetDefault("server.unsafe_allow_all_origins", false)

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "dbaas")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "dbaas")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", false)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Worker pools
	v.SetDefault("worker.general_pool_size", 50)
	v.SetDefault("worker.pipeline_pool_size", 20)
	v.SetDefault("worker.metrics_interval", "1m")

	// Provider clients
	v.SetDefault("provider.http_timeout", "30s")
	v.SetDefault("provider.credential_source", CredentialSourceDatabase)
	v.SetDefault("provider.credentials_file", "")
}

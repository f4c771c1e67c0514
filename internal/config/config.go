// Package config loads the emissary configuration from config.toml, an
// optional config.<EMISSARY_ENV>.toml overlay, and environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/emissary/internal/checkpoint"
	"github.com/JaimeStill/emissary/internal/providers"
	"github.com/JaimeStill/emissary/pkg/database"
	"github.com/JaimeStill/emissary/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvEmissaryEnv             = "EMISSARY_ENV"
	EnvEmissaryShutdownTimeout = "EMISSARY_SHUTDOWN_TIMEOUT"
	EnvEmissaryVersion         = "EMISSARY_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "EMISSARY_DB_HOST",
	Port:            "EMISSARY_DB_PORT",
	Name:            "EMISSARY_DB_NAME",
	User:            "EMISSARY_DB_USER",
	Password:        "EMISSARY_DB_PASSWORD",
	SSLMode:         "EMISSARY_DB_SSL_MODE",
	MaxOpenConns:    "EMISSARY_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "EMISSARY_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "EMISSARY_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "EMISSARY_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	ContainerName:    "EMISSARY_STORAGE_CONTAINER_NAME",
	ConnectionString: "EMISSARY_STORAGE_CONNECTION_STRING",
	AccountURL:       "EMISSARY_STORAGE_ACCOUNT_URL",
}

var checkpointEnv = &checkpoint.Env{
	Backend:       "EMISSARY_CHECKPOINT_BACKEND",
	Dir:           "EMISSARY_CHECKPOINT_DIR",
	RedisAddr:     "EMISSARY_REDIS_ADDR",
	RedisPassword: "EMISSARY_REDIS_PASSWORD",
	RedisDB:       "EMISSARY_REDIS_DB",
}

var providersEnv = &providers.Env{
	Preferred:      "LLM_PROVIDER",
	EnableFallback: "ENABLE_FALLBACK",
	InteractionLog: "EMISSARY_INTERACTION_LOG",
	APIKeys: map[string]string{
		providers.Groq:   "GROQ_API_KEY",
		providers.Gemini: "GEMINI_API_KEY",
		providers.OpenAI: "OPENAI_API_KEY",
	},
}

// Config is the root configuration for the emissary service and CLI.
type Config struct {
	Server          ServerConfig      `toml:"server"`
	Database        database.Config   `toml:"database"`
	Storage         storage.Config    `toml:"storage"`
	API             APIConfig         `toml:"api"`
	Audit           AuditConfig       `toml:"audit"`
	Providers       providers.Config  `toml:"providers"`
	Checkpoint      checkpoint.Config `toml:"checkpoint"`
	ShutdownTimeout string            `toml:"shutdown_timeout"`
	Version         string            `toml:"version"`
}

// Env returns the EMISSARY_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvEmissaryEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.API.Merge(&overlay.API)
	c.Audit.Merge(&overlay.Audit)
	c.Providers.Merge(&overlay.Providers)
	c.Checkpoint.Merge(&overlay.Checkpoint)
}

// finalize runs every section. The database section is only required by
// the postgres checkpoint backend.
func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Checkpoint.Finalize(checkpointEnv); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if c.Checkpoint.Backend == checkpoint.BackendPostgres {
		if err := c.Database.Finalize(databaseEnv); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Audit.Finalize(); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if err := c.Providers.Finalize(providersEnv); err != nil {
		return fmt.Errorf("providers: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvEmissaryShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvEmissaryVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvEmissaryEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

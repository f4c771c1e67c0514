package checkpoint

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config selects and configures the checkpoint backend.
type Config struct {
	Backend string      `toml:"backend"`
	Dir     string      `toml:"dir"`
	Redis   RedisConfig `toml:"redis"`
}

// RedisConfig holds connection and keying settings for the Redis backend.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
	LockTTL  string `toml:"lock_ttl"`
}

// Env maps config fields to environment variable names.
type Env struct {
	Backend       string
	Dir           string
	RedisAddr     string
	RedisPassword string
	RedisDB       string
}

// LockTTLDuration returns Redis.LockTTL as a time.Duration. The file store
// uses the same lease bound.
func (c *Config) LockTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.Redis.LockTTL)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Backend != "" {
		c.Backend = overlay.Backend
	}
	if overlay.Dir != "" {
		c.Dir = overlay.Dir
	}
	if overlay.Redis.Addr != "" {
		c.Redis.Addr = overlay.Redis.Addr
	}
	if overlay.Redis.Password != "" {
		c.Redis.Password = overlay.Redis.Password
	}
	if overlay.Redis.DB != 0 {
		c.Redis.DB = overlay.Redis.DB
	}
	if overlay.Redis.Prefix != "" {
		c.Redis.Prefix = overlay.Redis.Prefix
	}
	if overlay.Redis.LockTTL != "" {
		c.Redis.LockTTL = overlay.Redis.LockTTL
	}
}

func (c *Config) loadDefaults() {
	if c.Backend == "" {
		c.Backend = BackendFile
	}
	if c.Dir == "" {
		c.Dir = "checkpoints"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "emissary:"
	}
	if c.Redis.LockTTL == "" {
		c.Redis.LockTTL = "5m"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Backend != "" {
		if v := os.Getenv(env.Backend); v != "" {
			c.Backend = v
		}
	}
	if env.Dir != "" {
		if v := os.Getenv(env.Dir); v != "" {
			c.Dir = v
		}
	}
	if env.RedisAddr != "" {
		if v := os.Getenv(env.RedisAddr); v != "" {
			c.Redis.Addr = v
		}
	}
	if env.RedisPassword != "" {
		if v := os.Getenv(env.RedisPassword); v != "" {
			c.Redis.Password = v
		}
	}
	if env.RedisDB != "" {
		if v := os.Getenv(env.RedisDB); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.Redis.DB = n
			}
		}
	}
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendMemory, BackendFile, BackendPostgres, BackendRedis:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	if _, err := time.ParseDuration(c.Redis.LockTTL); err != nil {
		return fmt.Errorf("invalid redis.lock_ttl: %w", err)
	}
	return nil
}

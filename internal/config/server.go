package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvServerHost            = "EMISSARY_SERVER_HOST"
	EnvServerPort            = "EMISSARY_SERVER_PORT"
	EnvServerReadTimeout     = "EMISSARY_SERVER_READ_TIMEOUT"
	EnvServerWriteTimeout    = "EMISSARY_SERVER_WRITE_TIMEOUT"
	EnvServerShutdownTimeout = "EMISSARY_SERVER_SHUTDOWN_TIMEOUT"
)

// ServerConfig holds HTTP listener parameters. WriteTimeout must cover a
// synchronous audit, including model calls and their retries.
type ServerConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	ReadTimeout     string `toml:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ReadTimeoutDuration returns ReadTimeout as a time.Duration.
func (c *ServerConfig) ReadTimeoutDuration() time.Duration {
	return duration(c.ReadTimeout)
}

// WriteTimeoutDuration returns WriteTimeout as a time.Duration.
func (c *ServerConfig) WriteTimeoutDuration() time.Duration {
	return duration(c.WriteTimeout)
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return duration(c.ShutdownTimeout)
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ServerConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *ServerConfig) Merge(overlay *ServerConfig) {
	overwrite(&c.Host, overlay.Host)
	overwrite(&c.ReadTimeout, overlay.ReadTimeout)
	overwrite(&c.WriteTimeout, overlay.WriteTimeout)
	overwrite(&c.ShutdownTimeout, overlay.ShutdownTimeout)
	if overlay.Port != 0 {
		c.Port = overlay.Port
	}
}

func (c *ServerConfig) loadDefaults() {
	fill(&c.Host, "0.0.0.0")
	fill(&c.ReadTimeout, "1m")
	fill(&c.WriteTimeout, "10m")
	fill(&c.ShutdownTimeout, "30s")
	if c.Port == 0 {
		c.Port = 8080
	}
}

func (c *ServerConfig) loadEnv() {
	overwrite(&c.Host, os.Getenv(EnvServerHost))
	overwrite(&c.ReadTimeout, os.Getenv(EnvServerReadTimeout))
	overwrite(&c.WriteTimeout, os.Getenv(EnvServerWriteTimeout))
	overwrite(&c.ShutdownTimeout, os.Getenv(EnvServerShutdownTimeout))
	if v := os.Getenv(EnvServerPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
}

func (c *ServerConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	for name, v := range map[string]string{
		"read_timeout":     c.ReadTimeout,
		"write_timeout":    c.WriteTimeout,
		"shutdown_timeout": c.ShutdownTimeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func overwrite(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func fill(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

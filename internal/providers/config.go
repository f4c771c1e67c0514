package providers

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	Groq   = "groq"
	Gemini = "gemini"
	OpenAI = "openai"
)

var defaultBackends = map[string]BackendConfig{
	Groq: {
		BaseURL: "https://api.groq.com/openai/v1",
		Model:   "llama-3.3-70b-versatile",
	},
	Gemini: {
		BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai/",
		Model:   "gemini-2.0-flash-exp",
	},
	OpenAI: {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o",
	},
}

// BackendConfig describes one OpenAI-compatible chat completion endpoint.
type BackendConfig struct {
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
}

// Credentialed reports whether the backend can be initialized.
func (b BackendConfig) Credentialed() bool {
	return b.APIKey != ""
}

// Config holds backend selection and call resilience settings.
type Config struct {
	Preferred       string                   `toml:"preferred"`
	EnableFallback  *bool                    `toml:"enable_fallback"`
	Order           []string                 `toml:"order"`
	Timeout         string                   `toml:"timeout"`
	Attempts        int                      `toml:"attempts"`
	RatePerSecond   float64                  `toml:"rate_per_second"`
	Burst           int                      `toml:"burst"`
	BreakerFailures int                      `toml:"breaker_failures"`
	BreakerTimeout  string                   `toml:"breaker_timeout"`
	InteractionLog  string                   `toml:"interaction_log"`
	Backends        map[string]BackendConfig `toml:"backends"`
}

// Env maps config fields to environment variable names. APIKeys is keyed by
// backend name.
type Env struct {
	Preferred      string
	EnableFallback string
	InteractionLog string
	APIKeys        map[string]string
}

// FallbackEnabled reports whether resolution may walk past the first candidate.
func (c *Config) FallbackEnabled() bool {
	return c.EnableFallback == nil || *c.EnableFallback
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// BreakerTimeoutDuration returns BreakerTimeout as a time.Duration.
func (c *Config) BreakerTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.BreakerTimeout)
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

// Merge overwrites non-zero fields from overlay. Backend entries merge per field.
func (c *Config) Merge(overlay *Config) {
	if overlay.Preferred != "" {
		c.Preferred = overlay.Preferred
	}
	if overlay.EnableFallback != nil {
		v := *overlay.EnableFallback
		c.EnableFallback = &v
	}
	if len(overlay.Order) > 0 {
		c.Order = slices.Clone(overlay.Order)
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if overlay.Attempts != 0 {
		c.Attempts = overlay.Attempts
	}
	if overlay.RatePerSecond != 0 {
		c.RatePerSecond = overlay.RatePerSecond
	}
	if overlay.Burst != 0 {
		c.Burst = overlay.Burst
	}
	if overlay.BreakerFailures != 0 {
		c.BreakerFailures = overlay.BreakerFailures
	}
	if overlay.BreakerTimeout != "" {
		c.BreakerTimeout = overlay.BreakerTimeout
	}
	if overlay.InteractionLog != "" {
		c.InteractionLog = overlay.InteractionLog
	}
	for name, b := range overlay.Backends {
		if c.Backends == nil {
			c.Backends = make(map[string]BackendConfig)
		}
		base := c.Backends[name]
		if b.BaseURL != "" {
			base.BaseURL = b.BaseURL
		}
		if b.Model != "" {
			base.Model = b.Model
		}
		if b.APIKey != "" {
			base.APIKey = b.APIKey
		}
		c.Backends[name] = base
	}
}

func (c *Config) loadDefaults() {
	if c.Preferred == "" {
		c.Preferred = Groq
	}
	if len(c.Order) == 0 {
		c.Order = []string{Groq, Gemini, OpenAI}
	}
	if c.Timeout == "" {
		c.Timeout = "30s"
	}
	if c.Attempts == 0 {
		c.Attempts = 2
	}
	if c.RatePerSecond == 0 {
		c.RatePerSecond = 5
	}
	if c.Burst == 0 {
		c.Burst = 5
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerTimeout == "" {
		c.BreakerTimeout = "30s"
	}
	if c.Backends == nil {
		c.Backends = make(map[string]BackendConfig)
	}
	for name, def := range defaultBackends {
		b := c.Backends[name]
		if b.BaseURL == "" {
			b.BaseURL = def.BaseURL
		}
		if b.Model == "" {
			b.Model = def.Model
		}
		c.Backends[name] = b
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Preferred != "" {
		if v := os.Getenv(env.Preferred); v != "" {
			c.Preferred = strings.ToLower(v)
		}
	}
	if env.EnableFallback != "" {
		if v := os.Getenv(env.EnableFallback); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				c.EnableFallback = &b
			}
		}
	}
	if env.InteractionLog != "" {
		if v := os.Getenv(env.InteractionLog); v != "" {
			c.InteractionLog = v
		}
	}
	for name, key := range env.APIKeys {
		if v := os.Getenv(key); v != "" {
			b := c.Backends[name]
			b.APIKey = v
			c.Backends[name] = b
		}
	}
}

func (c *Config) validate() error {
	if _, ok := c.Backends[c.Preferred]; !ok {
		return fmt.Errorf("%w: preferred %q", ErrUnknownBackend, c.Preferred)
	}
	for _, name := range c.Order {
		if _, ok := c.Backends[name]; !ok {
			return fmt.Errorf("%w: order entry %q", ErrUnknownBackend, name)
		}
	}
	if c.Attempts < 1 {
		return fmt.Errorf("attempts must be at least 1")
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.BreakerTimeout); err != nil {
		return fmt.Errorf("invalid breaker_timeout: %w", err)
	}
	return nil
}

package config

import (
	"fmt"
	"os"

	"github.com/JaimeStill/emissary/pkg/formatting"
	"github.com/JaimeStill/emissary/pkg/middleware"
)

var corsEnv = &middleware.CORSEnv{
	Enabled:          "EMISSARY_CORS_ENABLED",
	Origins:          "EMISSARY_CORS_ORIGINS",
	AllowedMethods:   "EMISSARY_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "EMISSARY_CORS_ALLOWED_HEADERS",
	AllowCredentials: "EMISSARY_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "EMISSARY_CORS_MAX_AGE",
}

var authEnv = &middleware.AuthEnv{
	Issuer:   "EMISSARY_OIDC_ISSUER",
	ClientID: "EMISSARY_OIDC_CLIENT_ID",
}

// APIConfig holds upload limits, CORS, and bearer authentication settings.
type APIConfig struct {
	MaxUploadSize string                `toml:"max_upload_size"`
	CORS          middleware.CORSConfig `toml:"cors"`
	Auth          middleware.AuthConfig `toml:"auth"`
}

// MaxUploadSizeBytes returns MaxUploadSize as a byte count.
func (c *APIConfig) MaxUploadSizeBytes() int64 {
	size, err := formatting.ParseBytes(c.MaxUploadSize)
	if err != nil {
		return 32 * 1024 * 1024
	}
	return size
}

// Finalize applies defaults, environment variable overrides, and validation
// for the API config and its nested CORS and auth configs.
func (c *APIConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if _, err := formatting.ParseBytes(c.MaxUploadSize); err != nil {
		return fmt.Errorf("invalid max_upload_size: %w", err)
	}
	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	if err := c.Auth.Finalize(authEnv); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay across nested configs.
func (c *APIConfig) Merge(overlay *APIConfig) {
	if overlay.MaxUploadSize != "" {
		c.MaxUploadSize = overlay.MaxUploadSize
	}

	c.CORS.Merge(&overlay.CORS)
	c.Auth.Merge(&overlay.Auth)
}

func (c *APIConfig) loadDefaults() {
	if c.MaxUploadSize == "" {
		c.MaxUploadSize = "32MB"
	}
}

func (c *APIConfig) loadEnv() {
	if v := os.Getenv("EMISSARY_API_MAX_UPLOAD_SIZE"); v != "" {
		c.MaxUploadSize = v
	}
}

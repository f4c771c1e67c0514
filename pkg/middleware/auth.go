package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/JaimeStill/emissary/pkg/handlers"
)

var (
	// ErrMissingToken indicates the request carried no bearer token.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken indicates the bearer token failed verification.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// AuthConfig holds OIDC bearer verification settings. Verification is
// disabled when Issuer is empty.
type AuthConfig struct {
	Issuer   string `toml:"issuer"`
	ClientID string `toml:"client_id"`
}

// AuthEnv maps auth config fields to environment variable names.
type AuthEnv struct {
	Issuer   string
	ClientID string
}

// Enabled reports whether an issuer is configured.
func (c *AuthConfig) Enabled() bool {
	return c.Issuer != ""
}

// Finalize applies environment overrides and validation.
func (c *AuthConfig) Finalize(env *AuthEnv) error {
	if env != nil {
		if env.Issuer != "" {
			if v := os.Getenv(env.Issuer); v != "" {
				c.Issuer = v
			}
		}
		if env.ClientID != "" {
			if v := os.Getenv(env.ClientID); v != "" {
				c.ClientID = v
			}
		}
	}
	if c.Enabled() && c.ClientID == "" {
		return fmt.Errorf("client_id required when issuer is set")
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *AuthConfig) Merge(overlay *AuthConfig) {
	if overlay.Issuer != "" {
		c.Issuer = overlay.Issuer
	}
	if overlay.ClientID != "" {
		c.ClientID = overlay.ClientID
	}
}

// TokenVerifier verifies a raw ID token. *oidc.IDTokenVerifier satisfies it.
type TokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// NewVerifier discovers the issuer and returns a verifier bound to the
// configured client id.
func NewVerifier(ctx context.Context, cfg *AuthConfig) (*oidc.IDTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery %s: %w", cfg.Issuer, err)
	}
	return provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}), nil
}

type subjectKey struct{}

// Subject returns the verified token subject placed on ctx by OIDC.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}

// OIDC returns middleware that requires a verified bearer token and stores
// its subject on the request context.
func OIDC(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				handlers.RespondError(w, logger, http.StatusUnauthorized, ErrMissingToken)
				return
			}

			token, err := verifier.Verify(r.Context(), strings.TrimSpace(raw))
			if err != nil {
				handlers.RespondError(w, logger, http.StatusUnauthorized, fmt.Errorf("%w: %w", ErrInvalidToken, err))
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey{}, token.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/JaimeStill/emissary/pkg/middleware"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := middleware.Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/audits", nil))

	out := buf.String()
	for _, want := range []string{"status=202", "method=POST", "uri=/api/audits"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}

func TestCORS(t *testing.T) {
	cfg := &middleware.CORSConfig{Enabled: true, Origins: []string{"https://console.example"}}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatal(err)
	}

	h := middleware.CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantAllow  string
	}{
		{"allowed origin", "GET", "https://console.example", false, http.StatusTeapot, "https://console.example"},
		{"foreign origin", "GET", "https://evil.example", false, http.StatusTeapot, ""},
		{"preflight", "OPTIONS", "https://console.example", true, http.StatusNoContent, "https://console.example"},
		{"plain options", "OPTIONS", "https://console.example", false, http.StatusTeapot, "https://console.example"},
		{"foreign preflight", "OPTIONS", "https://evil.example", true, http.StatusTeapot, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/audits", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", "POST")
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("allow-origin = %q, want %q", got, tt.wantAllow)
			}
			if tt.preflight && tt.wantAllow != "" {
				if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
					t.Errorf("allow-methods = %q", got)
				}
			}
		})
	}
}

func TestCORSConfigFinalize(t *testing.T) {
	t.Setenv("TEST_CORS_ENABLED", "true")
	t.Setenv("TEST_CORS_ORIGINS", " https://a.example, ,https://b.example ")

	cfg := middleware.CORSConfig{}
	env := &middleware.CORSEnv{Enabled: "TEST_CORS_ENABLED", Origins: "TEST_CORS_ORIGINS"}
	if err := cfg.Finalize(env); err != nil {
		t.Fatal(err)
	}

	if !cfg.Enabled {
		t.Error("enabled not applied")
	}
	if len(cfg.Origins) != 2 || cfg.Origins[0] != "https://a.example" || cfg.Origins[1] != "https://b.example" {
		t.Errorf("origins = %q", cfg.Origins)
	}
	if cfg.MaxAge != 3600 {
		t.Errorf("max age = %d", cfg.MaxAge)
	}

	base := middleware.CORSConfig{Enabled: true, MaxAge: 600}
	base.Merge(&middleware.CORSConfig{Origins: []string{"https://c.example"}})
	if !base.Enabled || base.MaxAge != 600 || len(base.Origins) != 1 {
		t.Errorf("merge = %+v", base)
	}
}

type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, raw string) (*oidc.IDToken, error) {
	if raw != "good-token" {
		return nil, errors.New("signature mismatch")
	}
	return &oidc.IDToken{Subject: "auditor-7"}, nil
}

func TestOIDC(t *testing.T) {
	h := middleware.OIDC(fakeVerifier{}, discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Subject", middleware.Subject(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name        string
		header      string
		wantStatus  int
		wantSubject string
	}{
		{"missing", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, ""},
		{"bad token", "Bearer forged", http.StatusUnauthorized, ""},
		{"good token", "Bearer good-token", http.StatusOK, "auditor-7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/reviews", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("X-Subject"); got != tt.wantSubject {
				t.Errorf("subject = %q, want %q", got, tt.wantSubject)
			}
		})
	}
}

func TestAuthConfigFinalize(t *testing.T) {
	t.Setenv("TEST_OIDC_ISSUER", "https://login.example/")

	cfg := middleware.AuthConfig{}
	err := cfg.Finalize(&middleware.AuthEnv{Issuer: "TEST_OIDC_ISSUER"})
	if err == nil {
		t.Fatal("issuer without client id should fail")
	}

	cfg = middleware.AuthConfig{}
	if err := cfg.Finalize(nil); err != nil || cfg.Enabled() {
		t.Errorf("empty config: err=%v enabled=%v", err, cfg.Enabled())
	}
}

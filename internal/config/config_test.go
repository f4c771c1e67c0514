package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JaimeStill/emissary/audit"
	"github.com/JaimeStill/emissary/internal/checkpoint"
	"github.com/JaimeStill/emissary/internal/config"
	"github.com/JaimeStill/emissary/internal/providers"
)

const baseConfig = `
shutdown_timeout = "30s"
version = "0.1.0"

[server]
port = 8080

[audit]
max_deviation_percent = 15.0
min_trust_score = 60.0
mode = "quantitative"
report_dir = "reports"

[providers]
preferred = "gemini"
order = ["gemini", "openai"]

[checkpoint]
backend = "memory"

[storage]
container_name = "audits"
`

const overlayConfig = `
[server]
port = 9090

[audit]
min_trust_score = 70.0
risk_escalation = true

[checkpoint]
backend = "postgres"

[database]
name = "emissary"
user = "emissary"
host = "prodhost"
`

func writeConfig(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", filename, err)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(orig) })
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)
	chdir(t, dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Audit.ExecutionMode() != audit.ModeQuantitative {
		t.Errorf("mode: got %s", cfg.Audit.Mode)
	}
	if cfg.Audit.ReportDir != "reports" {
		t.Errorf("report_dir: got %s", cfg.Audit.ReportDir)
	}
	if cfg.Audit.MaxPages != 50 || cfg.Audit.BatchWorkers != 4 {
		t.Errorf("audit defaults: pages %d workers %d", cfg.Audit.MaxPages, cfg.Audit.BatchWorkers)
	}
	if cfg.Providers.Preferred != providers.Gemini {
		t.Errorf("preferred: got %s", cfg.Providers.Preferred)
	}
	if cfg.Checkpoint.Backend != checkpoint.BackendMemory {
		t.Errorf("checkpoint backend: got %s", cfg.Checkpoint.Backend)
	}
	if cfg.Storage.ContainerName != "audits" || cfg.Storage.Enabled() {
		t.Errorf("storage: %+v", cfg.Storage)
	}
	if cfg.API.Auth.Enabled() {
		t.Error("auth should be disabled without an issuer")
	}
}

func TestLoadWithOverlay(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)
	writeConfig(t, dir, "config.prod.toml", overlayConfig)
	chdir(t, dir)
	t.Setenv(config.EnvEmissaryEnv, "prod")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server port: got %d, want 9090", cfg.Server.Port)
	}
	if cfg.Audit.MinTrustScore != 70 || !cfg.Audit.RiskEscalation {
		t.Errorf("audit overlay: %+v", cfg.Audit)
	}
	if cfg.Audit.MaxDeviationPercent != 15 {
		t.Errorf("base value lost: %v", cfg.Audit.MaxDeviationPercent)
	}
	if cfg.Database.Host != "prodhost" || cfg.Database.Port != 5432 {
		t.Errorf("database: %s:%d", cfg.Database.Host, cfg.Database.Port)
	}
}

func TestLoadNoConfigFile(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Audit.ExecutionMode() != audit.ModeAssisted {
		t.Errorf("mode default: got %s", cfg.Audit.Mode)
	}
	if cfg.Checkpoint.Backend != checkpoint.BackendFile {
		t.Errorf("checkpoint default: got %s", cfg.Checkpoint.Backend)
	}
	if cfg.ShutdownTimeoutDuration() != 30*time.Second {
		t.Errorf("shutdown timeout: %v", cfg.ShutdownTimeoutDuration())
	}
	if cfg.API.MaxUploadSizeBytes() != 32*1024*1024 {
		t.Errorf("max upload: %d", cfg.API.MaxUploadSizeBytes())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("LLM_PROVIDER", "OpenAI")
	t.Setenv("ENABLE_FALLBACK", "false")
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv(config.EnvAuditMode, "quantitative")
	t.Setenv(config.EnvAuditMaxDeviation, "20")
	t.Setenv("EMISSARY_SERVER_PORT", "7070")
	t.Setenv("EMISSARY_CHECKPOINT_BACKEND", "redis")
	t.Setenv("EMISSARY_REDIS_ADDR", "cache:6379")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Providers.Preferred != providers.OpenAI {
		t.Errorf("preferred: got %s", cfg.Providers.Preferred)
	}
	if cfg.Providers.FallbackEnabled() {
		t.Error("fallback should be disabled")
	}
	if cfg.Providers.Backends[providers.Groq].APIKey != "gsk-test" {
		t.Error("groq api key not applied")
	}
	if cfg.Audit.ExecutionMode() != audit.ModeQuantitative || cfg.Audit.MaxDeviationPercent != 20 {
		t.Errorf("audit env: %+v", cfg.Audit)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port: %d", cfg.Server.Port)
	}
	if cfg.Checkpoint.Backend != checkpoint.BackendRedis || cfg.Checkpoint.Redis.Addr != "cache:6379" {
		t.Errorf("checkpoint: %+v", cfg.Checkpoint)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
		wantErr string
	}{
		{"malformed toml", "[server\nport = 1", nil, "parse config"},
		{"bad mode", "[audit]\nmode = \"oracle\"", nil, "invalid execution mode"},
		{"bad port", "[server]\nport = 70000", nil, "invalid port"},
		{"unknown backend", "[checkpoint]\nbackend = \"etcd\"", nil, "checkpoint"},
		{"postgres without database", "[checkpoint]\nbackend = \"postgres\"", nil, "database"},
		{"unknown provider", "", map[string]string{"LLM_PROVIDER": "claude"}, "providers"},
		{"trust out of range", "[audit]\nmin_trust_score = 140.0", nil, "min_trust_score"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, "config.toml", tt.content)
			chdir(t, dir)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.Load()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestServerAddr(t *testing.T) {
	cfg := config.ServerConfig{Host: "127.0.0.1", Port: 8080}
	if got := cfg.Addr(); got != "127.0.0.1:8080" {
		t.Errorf("Addr() = %s", got)
	}
}

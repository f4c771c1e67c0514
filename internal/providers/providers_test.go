package providers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sony/gobreaker"

	"github.com/JaimeStill/emissary/internal/metrics"
	"github.com/JaimeStill/emissary/internal/providers"
)

type fakeCompleter struct {
	name    string
	content string
	errs    []error
	calls   atomic.Int32
}

func (f *fakeCompleter) Name() string { return f.name }

func (f *fakeCompleter) Complete(_ context.Context, _ providers.Request) (string, error) {
	n := int(f.calls.Add(1)) - 1
	if n < len(f.errs) && f.errs[n] != nil {
		return "", f.errs[n]
	}
	return f.content, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, keys map[string]string, fallback bool) *providers.Config {
	t.Helper()
	cfg := &providers.Config{EnableFallback: &fallback}
	for name, key := range keys {
		if cfg.Backends == nil {
			cfg.Backends = map[string]providers.BackendConfig{}
		}
		cfg.Backends[name] = providers.BackendConfig{APIKey: key}
	}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	return cfg
}

func recordingFactory(tried *[]string, failing ...string) providers.Factory {
	return func(name string, b providers.BackendConfig) (providers.Completer, error) {
		*tried = append(*tried, name)
		for _, f := range failing {
			if f == name {
				return nil, errors.New("init failed")
			}
		}
		return &fakeCompleter{name: name}, nil
	}
}

func TestResolveOrder(t *testing.T) {
	tests := []struct {
		name      string
		keys      map[string]string
		fallback  bool
		preferred string
		failing   []string
		want      string
		wantTried []string
		wantErr   bool
	}{
		{
			name:      "preferred credentialed",
			keys:      map[string]string{"groq": "k", "openai": "k"},
			fallback:  true,
			preferred: "openai",
			want:      "openai",
			wantTried: []string{"openai"},
		},
		{
			name:      "skips uncredentialed",
			keys:      map[string]string{"openai": "k"},
			fallback:  true,
			want:      "openai",
			wantTried: []string{"openai"},
		},
		{
			name:      "walks past init failure",
			keys:      map[string]string{"groq": "k", "gemini": "k"},
			fallback:  true,
			failing:   []string{"groq"},
			want:      "gemini",
			wantTried: []string{"groq", "gemini"},
		},
		{
			name:      "fallback disabled tries one",
			keys:      map[string]string{"openai": "k"},
			fallback:  false,
			wantTried: nil,
			wantErr:   true,
		},
		{
			name:      "all fail",
			keys:      map[string]string{"groq": "k", "gemini": "k", "openai": "k"},
			fallback:  true,
			failing:   []string{"groq", "gemini", "openai"},
			wantTried: []string{"groq", "gemini", "openai"},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tried []string
			cfg := testConfig(t, tt.keys, tt.fallback)
			r := providers.NewResolver(cfg, recordingFactory(&tried, tt.failing...), discard())

			c, err := r.Resolve(context.Background(), tt.preferred)
			if tt.wantErr {
				if !errors.Is(err, providers.ErrProvidersExhausted) {
					t.Fatalf("got %v, want ErrProvidersExhausted", err)
				}
			} else {
				if err != nil {
					t.Fatalf("resolve failed: %v", err)
				}
				if c.Name() != tt.want {
					t.Errorf("backend: got %s, want %s", c.Name(), tt.want)
				}
			}

			if strings.Join(tried, ",") != strings.Join(tt.wantTried, ",") {
				t.Errorf("tried: got %v, want %v", tried, tt.wantTried)
			}
		})
	}
}

func TestCandidates(t *testing.T) {
	cfg := testConfig(t, nil, true)
	r := providers.NewResolver(cfg, nil, discard())

	got := strings.Join(r.Candidates("openai"), ",")
	if got != "openai,groq,gemini" {
		t.Errorf("candidates: got %s", got)
	}

	got = strings.Join(r.Candidates(""), ",")
	if got != "groq,gemini,openai" {
		t.Errorf("default candidates: got %s", got)
	}
}

type extraction struct {
	Mode string `json:"transport_mode"`
}

func TestCompleteJSON(t *testing.T) {
	t.Run("decodes fenced output", func(t *testing.T) {
		c := &fakeCompleter{name: "groq", content: "```json\n{\"transport_mode\":\"sea\"}\n```"}
		got, err := providers.CompleteJSON[extraction](context.Background(), c, providers.Request{Schema: "extraction"})
		if err != nil {
			t.Fatalf("complete failed: %v", err)
		}
		if got.Mode != "sea" {
			t.Errorf("mode: got %s, want sea", got.Mode)
		}
	})

	t.Run("schema mismatch", func(t *testing.T) {
		c := &fakeCompleter{name: "groq", content: "I cannot help with that"}
		_, err := providers.CompleteJSON[extraction](context.Background(), c, providers.Request{Schema: "extraction"})
		if !errors.Is(err, providers.ErrSchemaMismatch) {
			t.Fatalf("got %v, want ErrSchemaMismatch", err)
		}
	})

	t.Run("transport error", func(t *testing.T) {
		boom := errors.New("connection reset")
		c := &fakeCompleter{name: "groq", errs: []error{boom}}
		_, err := providers.CompleteJSON[extraction](context.Background(), c, providers.Request{})
		if !errors.Is(err, boom) {
			t.Fatalf("got %v, want wrapped transport error", err)
		}
	})
}

func reliableConfig(t *testing.T, attempts, failures int) *providers.Config {
	t.Helper()
	cfg := &providers.Config{
		Attempts:        attempts,
		BreakerFailures: failures,
		RatePerSecond:   1000,
		Burst:           100,
	}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	return cfg
}

func TestReliableRetriesTransientFailure(t *testing.T) {
	next := &fakeCompleter{name: "groq", content: "{}", errs: []error{errors.New("503")}}
	r := providers.NewReliable(next, reliableConfig(t, 2, 5), metrics.New(nil))

	got, err := r.Complete(context.Background(), providers.Request{})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if got != "{}" {
		t.Errorf("content: got %q", got)
	}
	if n := next.calls.Load(); n != 2 {
		t.Errorf("calls: got %d, want 2", n)
	}
}

func TestReliableOpensBreaker(t *testing.T) {
	boom := errors.New("down")
	next := &fakeCompleter{name: "groq", errs: []error{boom, boom, boom, boom}}
	r := providers.NewReliable(next, reliableConfig(t, 1, 2), metrics.New(nil))

	for range 2 {
		if _, err := r.Complete(context.Background(), providers.Request{}); err == nil {
			t.Fatal("expected failure")
		}
	}

	_, err := r.Complete(context.Background(), providers.Request{})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("got %v, want ErrOpenState", err)
	}
	if n := next.calls.Load(); n != 2 {
		t.Errorf("calls: got %d, want 2 (breaker should short-circuit)", n)
	}
}

func TestInteractionLog(t *testing.T) {
	var buf bytes.Buffer
	log := providers.NewInteractionLog(&buf)

	next := &fakeCompleter{name: "gemini", content: `{"ok":true}`}
	c := providers.WithInteractionLog(next, log)

	if _, err := c.Complete(context.Background(), providers.Request{System: "sys", Prompt: "prompt", Schema: "compliance"}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	var entry providers.Interaction
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if entry.Backend != "gemini" || entry.Schema != "compliance" {
		t.Errorf("entry: got %+v", entry)
	}
	if entry.PromptChars != 9 || entry.ResponseChars != 11 {
		t.Errorf("sizes: got prompt=%d response=%d", entry.PromptChars, entry.ResponseChars)
	}
	if strings.Contains(buf.String(), "sys") {
		t.Error("log should not contain prompt text")
	}
}

func TestConfigFinalizeEnv(t *testing.T) {
	t.Setenv("TEST_LLM_PROVIDER", "OpenAI")
	t.Setenv("TEST_ENABLE_FALLBACK", "false")
	t.Setenv("TEST_OPENAI_KEY", "sk-test")

	cfg := &providers.Config{}
	env := &providers.Env{
		Preferred:      "TEST_LLM_PROVIDER",
		EnableFallback: "TEST_ENABLE_FALLBACK",
		APIKeys:        map[string]string{"openai": "TEST_OPENAI_KEY"},
	}
	if err := cfg.Finalize(env); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	if cfg.Preferred != "openai" {
		t.Errorf("preferred: got %s, want openai", cfg.Preferred)
	}
	if cfg.FallbackEnabled() {
		t.Error("fallback should be disabled")
	}
	if cfg.Backends["openai"].APIKey != "sk-test" {
		t.Error("openai api key not loaded")
	}
	if cfg.Backends["groq"].Model != "llama-3.3-70b-versatile" {
		t.Errorf("groq model default: got %s", cfg.Backends["groq"].Model)
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := &providers.Config{Preferred: "anthropic-local"}
	if err := cfg.Finalize(nil); !errors.Is(err, providers.ErrUnknownBackend) {
		t.Fatalf("got %v, want ErrUnknownBackend", err)
	}
}

package providers

import (
	"sync"

	"github.com/JaimeStill/emissary/internal/metrics"
)

// NewFactory builds OpenAI-compatible backends wrapped with the resilience
// settings in cfg. Backends are built once per name so breaker and limiter
// state persists across resolutions. A nil log disables interaction logging.
func NewFactory(cfg *Config, m *metrics.Metrics, log *InteractionLog) Factory {
	var mu sync.Mutex
	built := make(map[string]Completer)

	return func(name string, b BackendConfig) (Completer, error) {
		mu.Lock()
		defer mu.Unlock()

		if c, ok := built[name]; ok {
			return c, nil
		}

		c, err := NewChat(name, b, cfg.TimeoutDuration())
		if err != nil {
			return nil, err
		}

		var out Completer = NewReliable(c, cfg, m)
		if log != nil {
			out = WithInteractionLog(out, log)
		}

		built[name] = out
		return out, nil
	}
}

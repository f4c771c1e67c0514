package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JaimeStill/emissary/pkg/handlers"
	"github.com/JaimeStill/emissary/pkg/routes"
)

func probeRoutes(rt *Runtime) routes.Group {
	gatherer := rt.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	metrics := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})

	return routes.Group{
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/healthz", Handler: func(w http.ResponseWriter, r *http.Request) {
				handlers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			}},
			{Method: "GET", Pattern: "/readyz", Handler: readyz(rt)},
			{Method: "GET", Pattern: "/metrics", Handler: metrics.ServeHTTP},
		},
	}
}

func readyz(rt *Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rt.Lifecycle == nil {
			handlers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
			return
		}
		if !rt.Lifecycle.Ready() {
			handlers.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
			return
		}

		failed := rt.Lifecycle.Probe(r.Context())
		if len(failed) == 0 {
			handlers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
			return
		}

		checks := make(map[string]string, len(failed))
		for name, err := range failed {
			checks[name] = err.Error()
		}
		handlers.RespondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded",
			"checks": checks,
		})
	}
}

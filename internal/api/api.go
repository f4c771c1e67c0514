// Package api exposes the audit workflow over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JaimeStill/emissary/pkg/middleware"
)

// NewHandler builds the chi router serving the audit API, health probes,
// and metrics.
func NewHandler(rt *Runtime) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(rt.Logger))
	r.Use(chimw.Recoverer)
	if rt.CORS != nil {
		r.Use(middleware.CORS(rt.CORS))
	}

	var guard []func(http.Handler) http.Handler
	if rt.Verifier != nil {
		guard = append(guard, middleware.OIDC(rt.Verifier, rt.Logger))
	}

	audits := newAuditHandler(rt)
	registerRoutes(r, rt, audits, guard)

	return r
}

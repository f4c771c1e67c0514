package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JaimeStill/emissary/pkg/routes"
)

func registerRoutes(r chi.Router, rt *Runtime, audits *auditHandler, guard []func(http.Handler) http.Handler) {
	routes.Register(
		r,
		probeRoutes(rt),
		routes.Group{
			Prefix:     "/api",
			Middleware: guard,
			Children:   audits.routes(),
		},
	)
}

// Package routes declares route tables and mounts them on a chi router.
package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Group organizes routes under a common prefix with shared middleware.
type Group struct {
	Prefix     string
	Middleware []func(http.Handler) http.Handler
	Routes     []Route
	Children   []Group
}

// Register adds all routes from the given groups to the router.
func Register(r chi.Router, groups ...Group) {
	for _, group := range groups {
		registerGroup(r, group)
	}
}

// registerGroup mounts a prefixed group as a sub-router. An empty prefix
// registers inline so middleware still scopes to the group.
func registerGroup(r chi.Router, group Group) {
	build := func(sub chi.Router) {
		sub.Use(group.Middleware...)
		for _, route := range group.Routes {
			sub.MethodFunc(route.Method, route.Pattern, route.Handler)
		}
		for _, child := range group.Children {
			registerGroup(sub, child)
		}
	}

	if group.Prefix == "" {
		r.Group(build)
		return
	}
	r.Route(group.Prefix, build)
}

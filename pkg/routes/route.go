package routes

import "net/http"

// Route binds an HTTP method and a chi pattern to a handler. Patterns may
// carry {name} segments, read back with chi.URLParam.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}

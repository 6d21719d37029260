package routes

import "net/http"

// Route binds an HTTP method and pattern to a handler. Pattern is relative to
// the enclosing Group prefix; "/{$}" matches the prefix root exactly.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}

// Package middleware provides the HTTP middleware stack plus CORS and request
// logging middleware.
package middleware

import "net/http"

// Func wraps an http.Handler with additional behavior.
type Func func(http.Handler) http.Handler

// System manages an ordered stack of HTTP middleware. The first middleware
// added is the outermost wrapper.
type System interface {
	Use(mw func(http.Handler) http.Handler)
	Apply(handler http.Handler) http.Handler
}

type stack struct {
	items []Func
}

// New creates an empty middleware System.
func New() System {
	return &stack{}
}

func (s *stack) Use(fn func(http.Handler) http.Handler) {
	s.items = append(s.items, fn)
}

func (s *stack) Apply(handler http.Handler) http.Handler {
	for i := len(s.items) - 1; i >= 0; i-- {
		handler = s.items[i](handler)
	}
	return handler
}

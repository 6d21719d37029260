// Package routes declares route groups and registers them on a ServeMux.
package routes

import (
	"net/http"
	"slices"
)

// Group organizes routes under a common prefix.
type Group struct {
	Prefix   string
	Routes   []Route
	Children []Group
}

// Fallback builds the handler registered for a path whose method-qualified
// patterns did not match. It receives the methods that are registered.
type Fallback func(methods []string) http.HandlerFunc

// Register adds all routes from the given groups to the mux.
func Register(mux *http.ServeMux, groups ...Group) {
	RegisterWithFallback(mux, nil, groups...)
}

// RegisterWithFallback adds all routes and, when fallback is non-nil, also
// registers a method-less pattern per path so requests with an unregistered
// method reach fallback instead of the mux's plain-text 405.
func RegisterWithFallback(mux *http.ServeMux, fallback Fallback, groups ...Group) {
	paths := make(map[string][]string)
	var order []string

	for _, group := range groups {
		collect(group, "", func(path string, route Route) {
			mux.HandleFunc(route.Method+" "+path, route.Handler)
			if _, seen := paths[path]; !seen {
				order = append(order, path)
			}
			if !slices.Contains(paths[path], route.Method) {
				paths[path] = append(paths[path], route.Method)
			}
		})
	}

	if fallback == nil {
		return
	}

	for _, path := range order {
		mux.HandleFunc(path, fallback(paths[path]))
	}
}

func collect(group Group, parentPrefix string, fn func(path string, route Route)) {
	fullPrefix := parentPrefix + group.Prefix
	for _, route := range group.Routes {
		fn(fullPrefix+route.Pattern, route)
	}
	for _, child := range group.Children {
		collect(child, fullPrefix, fn)
	}
}

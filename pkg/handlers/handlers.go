// Package handlers provides JSON response helpers shared by HTTP handlers.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

var (
	// ErrRouteNotFound indicates no route matches the request path.
	ErrRouteNotFound = errors.New("route not found")
	// ErrMethodNotAllowed indicates the path exists but not for the request method.
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// RespondJSON writes data as a JSON body with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError logs err and writes it as a JSON {"error": "..."} body.
// Server errors log at error level; client errors log at warn.
func RespondError(w http.ResponseWriter, logger *slog.Logger, status int, err error) {
	if status >= http.StatusInternalServerError {
		logger.Error("handler error", "status", status, "error", err)
	} else {
		logger.Warn("request rejected", "status", status, "error", err)
	}
	RespondJSON(w, status, map[string]string{"error": err.Error()})
}

// NotFound returns a handler that responds 404 with a JSON error body.
func NotFound(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		RespondError(w, logger, http.StatusNotFound, ErrRouteNotFound)
	}
}

// MethodNotAllowed returns a handler that responds 405 with an Allow header
// listing methods and a JSON error body.
func MethodNotAllowed(logger *slog.Logger, methods ...string) http.HandlerFunc {
	allow := strings.Join(methods, ", ")
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allow)
		RespondError(w, logger, http.StatusMethodNotAllowed, ErrMethodNotAllowed)
	}
}

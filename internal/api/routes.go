package api

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/tagger/pkg/handlers"
	"github.com/JaimeStill/tagger/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	maxUploadSize int64,
	logger *slog.Logger,
) {
	routes.RegisterWithFallback(
		mux,
		func(methods []string) http.HandlerFunc {
			return handlers.MethodNotAllowed(logger, methods...)
		},
		domain.Submissions.Handler(domain.Workflows, maxUploadSize).Routes(),
		domain.Prompts.Handler().Routes(),
	)

	mux.HandleFunc("/", handlers.NotFound(logger))
}

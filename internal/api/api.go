// Package api assembles the API module with all domain systems and route registration.
package api

import (
	"net/http"

	"github.com/JaimeStill/tagger/internal/config"
	"github.com/JaimeStill/tagger/internal/infrastructure"
	"github.com/JaimeStill/tagger/pkg/lifecycle"
	"github.com/JaimeStill/tagger/pkg/middleware"
	"github.com/JaimeStill/tagger/pkg/module"
)

// API is the mounted HTTP module together with the domain systems behind it.
type API struct {
	Module *module.Module
	Domain *Domain
}

// New creates the API module with all domain handlers and middleware.
func New(cfg *config.Config, infra *infrastructure.Infrastructure) (*API, error) {
	runtime := NewRuntime(cfg, infra)
	domain := NewDomain(runtime)

	return NewWithDomain(cfg, runtime, domain), nil
}

// NewWithDomain builds the module around an existing domain.
func NewWithDomain(cfg *config.Config, runtime *Runtime, domain *Domain) *API {
	mux := http.NewServeMux()
	registerRoutes(mux, domain, cfg.Workflow.MaxUploadSizeBytes(), runtime.Logger)

	m := module.New(cfg.API.BasePath, mux)
	m.Use(middleware.CORS(&cfg.API.CORS))
	m.Use(middleware.Logger(runtime.Logger))

	return &API{Module: m, Domain: domain}
}

// Start registers the workflow engine with the lifecycle coordinator so
// pending instances resume at startup and runs stop on shutdown.
func (a *API) Start(lc *lifecycle.Coordinator) error {
	return a.Domain.Workflows.Start(lc)
}

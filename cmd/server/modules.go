package main

import (
	"net/http"

	"github.com/JaimeStill/tagger/internal/api"
	"github.com/JaimeStill/tagger/internal/config"
	"github.com/JaimeStill/tagger/internal/infrastructure"
	"github.com/JaimeStill/tagger/pkg/handlers"
	"github.com/JaimeStill/tagger/pkg/module"
)

// Modules are the prefixed handler trees mounted on the root router.
type Modules struct {
	API *api.API
}

func NewModules(infra *infrastructure.Infrastructure, cfg *config.Config) (*Modules, error) {
	a, err := api.New(cfg, infra)
	if err != nil {
		return nil, err
	}
	return &Modules{API: a}, nil
}

func (m *Modules) Mount(router *module.Router) {
	router.Mount(m.API.Module)
}

type healthStatus struct {
	Status string `json:"status"`
}

func buildRouter(infra *infrastructure.Infrastructure) *module.Router {
	router := module.NewRouter()

	router.HandleNative("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		handlers.RespondJSON(w, http.StatusOK, healthStatus{Status: "ok"})
	})

	// Ready once every startup hook has run and the database answers pings.
	router.HandleNative("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !infra.Lifecycle.Ready() || !infra.Database.Ready() {
			handlers.RespondJSON(w, http.StatusServiceUnavailable, healthStatus{Status: "not ready"})
			return
		}
		handlers.RespondJSON(w, http.StatusOK, healthStatus{Status: "ready"})
	})

	router.NotFound(handlers.NotFound(infra.Logger))
	return router
}

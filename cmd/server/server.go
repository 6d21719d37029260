package main

import (
	"context"
	"time"

	"github.com/JaimeStill/tagger/internal/config"
	"github.com/JaimeStill/tagger/internal/infrastructure"
)

// Server wires infrastructure, the API module and the HTTP listener under one
// lifecycle coordinator.
type Server struct {
	infra   *infrastructure.Infrastructure
	modules *Modules
	http    *httpServer
}

func NewServer(cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	modules, err := NewModules(infra, cfg)
	if err != nil {
		return nil, err
	}

	router := buildRouter(infra)
	modules.Mount(router)

	infra.Logger.Info("initialized",
		"version", cfg.Version,
		"env", cfg.Env(),
		"storage", cfg.Storage.Provider,
		"events", cfg.Events.Provider,
		"inference", cfg.Inference.Provider,
		"model", cfg.Inference.Model,
	)

	return &Server{
		infra:   infra,
		modules: modules,
		http:    newHTTPServer(&cfg.Server, router, infra.Logger),
	}, nil
}

// Start registers startup hooks in dependency order: stores first, then the
// workflow engine that resumes pending instances, then the listener.
func (s *Server) Start() error {
	starters := []func() error{
		s.infra.Start,
		func() error { return s.modules.API.Start(s.infra.Lifecycle) },
		func() error { return s.http.Start(s.infra.Lifecycle) },
	}
	for _, start := range starters {
		if err := start(); err != nil {
			return err
		}
	}

	go func() {
		s.infra.Lifecycle.WaitForStartup()
		s.infra.Logger.Info("ready")
	}()
	return nil
}

func (s *Server) Shutdown(timeout time.Duration) error {
	return s.infra.Lifecycle.Shutdown(timeout)
}

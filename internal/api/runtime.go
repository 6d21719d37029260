package api

import (
	"github.com/JaimeStill/tagger/internal/config"
	"github.com/JaimeStill/tagger/internal/infrastructure"
	"github.com/JaimeStill/tagger/pkg/durable"
)

// Runtime extends Infrastructure with API-specific configuration and the
// workflow journal.
type Runtime struct {
	*infrastructure.Infrastructure
	Journal  durable.Journal
	Workflow config.WorkflowConfig
	Model    string
}

// NewRuntime creates an API runtime with a module-scoped logger and a
// PostgreSQL-backed workflow journal.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	return &Runtime{
		Infrastructure: &infrastructure.Infrastructure{
			Lifecycle: infra.Lifecycle,
			Logger:    infra.Logger.With("module", "api"),
			Database:  infra.Database,
			Storage:   infra.Storage,
			Events:    infra.Events,
			Inference: infra.Inference,
		},
		Journal:  durable.NewPostgresJournal(infra.Database.Connection()),
		Workflow: cfg.Workflow,
		Model:    cfg.Inference.Model,
	}
}

package api

import (
	"github.com/JaimeStill/tagger/internal/prompts"
	"github.com/JaimeStill/tagger/internal/submissions"
	"github.com/JaimeStill/tagger/internal/workflow"
	"github.com/JaimeStill/tagger/pkg/durable"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Prompts     prompts.System
	Submissions submissions.System
	Workflows   *durable.Engine
}

// NewDomain creates all domain systems from the API runtime and binds the
// tagging workflow to the durable engine.
func NewDomain(runtime *Runtime) *Domain {
	promptsSystem := prompts.New(
		runtime.Database.Connection(),
		runtime.Logger,
	)

	submissionsSystem := submissions.New(
		runtime.Database.Connection(),
		runtime.Storage,
		runtime.Logger,
	)

	wf := &workflow.Runtime{
		Submissions:     submissionsSystem,
		Prompts:         promptsSystem,
		Inference:       runtime.Inference,
		Model:           runtime.Model,
		ApprovalTimeout: runtime.Workflow.ApprovalTimeoutDuration(),
		MaxTokens: map[prompts.Stage]int{
			prompts.StageTags:    runtime.Workflow.TagsMaxTokens,
			prompts.StageAltText: runtime.Workflow.AltTextMaxTokens,
		},
	}

	engine := durable.New(
		workflow.Name,
		workflow.New(wf),
		runtime.Journal,
		runtime.Events,
		runtime.Workflow.Engine,
		runtime.Logger,
	)

	return &Domain{
		Prompts:     promptsSystem,
		Submissions: submissionsSystem,
		Workflows:   engine,
	}
}

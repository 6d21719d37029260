package workflow

import (
	"time"

	"github.com/JaimeStill/tagger/internal/prompts"
	"github.com/JaimeStill/tagger/internal/submissions"
	"github.com/JaimeStill/tagger/pkg/inference"
)

// Runtime bundles the dependencies that workflow steps require. Steps log
// through the run's instance-scoped logger.
type Runtime struct {
	Submissions     submissions.System
	Prompts         prompts.System
	Inference       inference.Runner
	Model           string
	ApprovalTimeout time.Duration
	MaxTokens       map[prompts.Stage]int
}

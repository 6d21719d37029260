package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/JaimeStill/tagger/internal/prompts"
)

// ComposePrompt builds the model prompt for a stage by combining its
// effective instructions with the stage's fixed output specification.
func ComposePrompt(ctx context.Context, ps prompts.System, stage prompts.Stage) (string, error) {
	instructions, _, err := ps.Instructions(ctx, stage)
	if err != nil {
		return "", fmt.Errorf("load instructions for %s: %w", stage, err)
	}

	spec, err := ps.Spec(ctx, stage)
	if err != nil {
		return "", fmt.Errorf("load spec for %s: %w", stage, err)
	}

	var sb strings.Builder
	sb.WriteString(instructions)
	sb.WriteString("\n\n")
	sb.WriteString(spec)

	return sb.String(), nil
}

package prompts

import "context"

// System defines the public contract for prompt domain operations.
type System interface {
	Handler() *Handler

	// Instructions returns the effective instructions for stage and whether
	// they come from a stored override.
	Instructions(ctx context.Context, stage Stage) (string, bool, error)
	// Spec returns the fixed output specification for stage.
	Spec(ctx context.Context, stage Stage) (string, error)
	List(ctx context.Context) ([]Override, error)
	Set(ctx context.Context, stage Stage, cmd SetCommand) (*Override, error)
	Reset(ctx context.Context, stage Stage) error
}

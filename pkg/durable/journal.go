package durable

import (
	"context"
	"encoding/json"
	"time"
)

// Journal persists instances, step outputs, wait deadlines, and events.
type Journal interface {
	// CreateInstance stores a new instance. Returns ErrExists on duplicate id.
	CreateInstance(ctx context.Context, inst *Instance) error
	// UpdateInstance writes status, stage, output, and error for inst.ID.
	UpdateInstance(ctx context.Context, inst *Instance) error
	// FindInstance returns the instance or ErrNotFound.
	FindInstance(ctx context.Context, id string) (*Instance, error)
	// PendingInstances lists non-terminal instances of workflow, oldest first.
	PendingInstances(ctx context.Context, workflow string) ([]Instance, error)

	// LoadStep returns the recorded output of a completed step.
	LoadStep(ctx context.Context, id, name string) (json.RawMessage, bool, error)
	// SaveStep records a completed step. Saving an existing step keeps the
	// first recorded output.
	SaveStep(ctx context.Context, id, name string, output json.RawMessage) error

	// WaitDeadline stores deadline for the named wait if none is recorded and
	// returns the recorded deadline.
	WaitDeadline(ctx context.Context, id, name string, deadline time.Time) (time.Time, error)

	// AppendEvent buffers an event for id until a matching wait consumes it.
	AppendEvent(ctx context.Context, id string, ev Event) error
	// ConsumeEvent removes the oldest buffered event of kind and records it
	// as the output of step in the same atomic operation, so a consumed event
	// is never lost between the two. Returns nil when none is buffered.
	ConsumeEvent(ctx context.Context, id, kind, step string) (*Event, error)
}

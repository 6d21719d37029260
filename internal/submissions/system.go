package submissions

import (
	"context"

	"github.com/JaimeStill/tagger/pkg/durable"
)

// System defines the public contract for submission domain operations.
type System interface {
	Handler(workflows Workflows, maxUploadSize int64) *Handler

	// StoreImage writes the image to blob storage and returns the workflow
	// parameters that describe it.
	StoreImage(ctx context.Context, cmd StoreCommand) (*Params, error)
	// DeleteImage removes a stored image. Missing images are not an error.
	DeleteImage(ctx context.Context, key string) error
	// Image reads a stored image.
	Image(ctx context.Context, key string) ([]byte, error)

	// Insert persists the submission record. Inserting an existing
	// instance is a no-op.
	Insert(ctx context.Context, sub Submission) error
	Find(ctx context.Context, instanceID string) (*Submission, error)

	// UpdateTags and UpdateAltText write a derived field once and return the
	// persisted value, which is the earlier value when one already exists.
	UpdateTags(ctx context.Context, instanceID, tags string) (string, error)
	UpdateAltText(ctx context.Context, instanceID, altText string) (string, error)

	// Tags and AltText return the persisted derived fields, empty when unset.
	Tags(ctx context.Context, instanceID string) (string, error)
	AltText(ctx context.Context, instanceID string) (string, error)
}

// Workflows is the durable workflow surface used by the handler.
// *durable.Engine satisfies it.
type Workflows interface {
	Create(ctx context.Context, id string, params any) (*durable.Instance, error)
	Status(ctx context.Context, id string) (*durable.Instance, error)
	SendEvent(ctx context.Context, id, kind string, payload any) error
}

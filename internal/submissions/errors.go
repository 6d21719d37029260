package submissions

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/tagger/pkg/durable"
	"github.com/JaimeStill/tagger/pkg/storage"
)

// Domain errors for submission operations.
var (
	ErrNotFound          = errors.New("submission not found")
	ErrMissingInstanceID = errors.New("instanceId is required")
	ErrMissingApproval   = errors.New("approved must be a boolean")
	ErrMissingImage      = errors.New("multipart field image is required")
	ErrInvalidImage      = errors.New("image must be a jpeg, png, gif, or webp file")
	ErrFileTooLarge      = errors.New("image exceeds maximum upload size")
)

// MapHTTPStatus maps submission, workflow, and storage errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, durable.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrMissingInstanceID),
		errors.Is(err, ErrMissingApproval),
		errors.Is(err, ErrMissingImage),
		errors.Is(err, ErrInvalidImage),
		errors.Is(err, durable.ErrFinished):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

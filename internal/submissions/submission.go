// Package submissions implements the image submission domain: upload
// validation, blob storage of the image, the persisted submission record,
// and the HTTP boundary that drives the approval workflow.
package submissions

import (
	"time"

	"github.com/JaimeStill/tagger/pkg/durable"
)

// Submission is the persisted record of one uploaded image. Tags and AltText
// are set at most once, after their approval gate passes and inference succeeds.
type Submission struct {
	InstanceID  string    `json:"instanceId"`
	ImageKey    string    `json:"imageKey"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Tags        *string   `json:"tags,omitempty"`
	AltText     *string   `json:"altText,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Params are the workflow parameters that describe a stored image.
type Params struct {
	InstanceID  string `json:"instanceId"`
	ImageKey    string `json:"imageKey"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// Submission converts the parameters into an unsaved submission record.
func (p Params) Submission() Submission {
	return Submission{
		InstanceID:  p.InstanceID,
		ImageKey:    p.ImageKey,
		FileName:    p.FileName,
		ContentType: p.ContentType,
		SizeBytes:   p.SizeBytes,
		Width:       p.Width,
		Height:      p.Height,
	}
}

// StoreCommand carries a validated image to be written to blob storage.
type StoreCommand struct {
	InstanceID  string
	FileName    string
	ContentType string
	Data        []byte
	Width       int
	Height      int
}

// Decision is the event payload carried by an approval.
type Decision struct {
	Approved bool `json:"approved"`
}

// ApprovalRequest is the body accepted by the approval endpoints.
// Approved is a pointer so a missing field can be rejected.
type ApprovalRequest struct {
	InstanceID string `json:"instanceId"`
	Approved   *bool  `json:"approved"`
}

// UploadResponse is returned after an image is accepted.
type UploadResponse struct {
	ID      string            `json:"id"`
	Details *durable.Instance `json:"details"`
	Success bool              `json:"success"`
	Message string            `json:"message"`
}

// TagsResponse carries the persisted tags for a submission.
type TagsResponse struct {
	InstanceID string `json:"instanceId"`
	Tags       string `json:"tags"`
}

// AltTextResponse carries the persisted alt text for a submission.
type AltTextResponse struct {
	InstanceID string `json:"instanceId"`
	AltText    string `json:"altText"`
}

// ApprovalResponse acknowledges a delivered decision.
type ApprovalResponse struct {
	Success bool `json:"success"`
}

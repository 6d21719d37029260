// Package durable runs workflow functions whose progress survives process
// restarts. Completed steps and wait deadlines are journaled; on restart a
// run replays from the top and journaled steps return their recorded output
// without executing again.
package durable

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

var (
	// ErrNotFound indicates no instance exists with the given identifier.
	ErrNotFound = errors.New("instance not found")
	// ErrExists indicates an instance with the given identifier already exists.
	ErrExists = errors.New("instance already exists")
	// ErrFinished indicates the instance has reached a terminal status.
	ErrFinished = errors.New("instance already finished")
	// ErrEventTimeout is returned by WaitForEvent when the deadline passes
	// before a matching event arrives.
	ErrEventTimeout = errors.New("timed out waiting for event")
	// ErrNotStarted indicates Create was called before Start.
	ErrNotStarted = errors.New("engine not started")
)

// Status is the lifecycle state of an instance.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusRunning  Status = "running"
	StatusWaiting  Status = "waiting"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Terminal reports whether no further transitions can occur.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Instance is one execution of a workflow bound to its parameters.
type Instance struct {
	ID        string          `json:"id"`
	Workflow  string          `json:"-"`
	Status    Status          `json:"status"`
	Stage     string          `json:"stage,omitempty"`
	Params    json.RawMessage `json:"-"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Event is an externally delivered signal addressed to one instance.
type Event struct {
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// MapHTTPStatus maps engine errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrExists):
		return http.StatusConflict
	case errors.Is(err, ErrFinished):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

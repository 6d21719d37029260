// Package prompts manages the instructions sent to the vision model for each
// generation stage. Each stage has built-in default instructions that an
// operator can replace with a stored override, plus a fixed output
// specification that is always appended.
package prompts

import "time"

// Override is a stored replacement for a stage's default instructions.
type Override struct {
	Stage        Stage     `json:"stage"`
	Instructions string    `json:"instructions"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// StageContent is the response type for stage-scoped content endpoints.
type StageContent struct {
	Stage      Stage  `json:"stage"`
	Content    string `json:"content"`
	Overridden bool   `json:"overridden,omitempty"`
}

// SetCommand carries replacement instructions for a stage.
type SetCommand struct {
	Instructions string `json:"instructions"`
}

package prompts

import (
	"encoding/json"
	"slices"
)

// Stage identifies an approval-gated generation stage of the workflow.
type Stage string

// Valid workflow stages.
const (
	StageTags    Stage = "tags"
	StageAltText Stage = "alttext"
)

var stages = []Stage{
	StageTags,
	StageAltText,
}

// Stages returns the list of valid workflow stages.
func Stages() []Stage {
	return stages
}

// EventKind returns the event kind that carries the approval decision for s.
func (s Stage) EventKind() string {
	switch s {
	case StageTags:
		return "tag-approval"
	case StageAltText:
		return "alttext-approval"
	default:
		return ""
	}
}

// UnmarshalJSON validates that the decoded string is a known stage value.
func (s *Stage) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := ParseStage(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseStage validates a string as a known workflow stage.
// Returns ErrInvalidStage if the value is not recognized.
func ParseStage(s string) (Stage, error) {
	v := Stage(s)
	if !slices.Contains(stages, v) {
		return "", ErrInvalidStage
	}
	return v, nil
}

package prompts

const tagsSpec = `Respond with exactly five comma-separated keyword tags on a single line.

Constraints:
- Lowercase words, one or two words per tag
- No numbering, bullets, quotes, or trailing punctuation
- No explanation before or after the list`

const altTextSpec = `Respond with one sentence of plain text, at most 125 characters.

Constraints:
- No markdown, quotes, or labels such as "Alt text:"
- End the sentence with a period`

var specs = map[Stage]string{
	StageTags:    tagsSpec,
	StageAltText: altTextSpec,
}

// Spec returns the fixed output specification for a stage. Specifications
// constrain the response format and cannot be overridden.
// Returns ErrInvalidStage if the stage is not recognized.
func Spec(stage Stage) (string, error) {
	text, ok := specs[stage]
	if !ok {
		return "", ErrInvalidStage
	}
	return text, nil
}

package prompts

const tagsInstructions = `You are cataloguing images for a searchable media library.

Look at the whole image and identify the most prominent subjects, setting, colors, and mood. Prefer concrete nouns over abstract concepts, and general terms over brand names. Generate five keyword tags that would help someone find this image with a search box.`

const altTextInstructions = `You are writing alternative text for an image that will appear on a public web page.

Describe what the image shows to someone who cannot see it. Lead with the main subject, then add the context that matters for understanding the image. Do not start with "Image of" or "Picture of", and do not speculate about things that are not visible.`

var instructions = map[Stage]string{
	StageTags:    tagsInstructions,
	StageAltText: altTextInstructions,
}

// Instructions returns the built-in default instructions for a stage.
// Returns ErrInvalidStage if the stage is not recognized.
func Instructions(stage Stage) (string, error) {
	text, ok := instructions[stage]
	if !ok {
		return "", ErrInvalidStage
	}
	return text, nil
}

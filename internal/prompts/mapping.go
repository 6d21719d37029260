package prompts

import "github.com/JaimeStill/tagger/pkg/repository"

const overrideColumns = `stage, instructions, updated_at`

func scanOverride(s repository.Scanner) (Override, error) {
	var o Override
	err := s.Scan(
		&o.Stage,
		&o.Instructions,
		&o.UpdatedAt,
	)
	return o, err
}

package submissions

import "github.com/JaimeStill/tagger/pkg/repository"

const columns = `instance_id, image_key, file_name, content_type, size_bytes, width, height, tags, alt_text, created_at, updated_at`

func scanSubmission(s repository.Scanner) (Submission, error) {
	var sub Submission
	err := s.Scan(
		&sub.InstanceID,
		&sub.ImageKey,
		&sub.FileName,
		&sub.ContentType,
		&sub.SizeBytes,
		&sub.Width,
		&sub.Height,
		&sub.Tags,
		&sub.AltText,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	return sub, err
}

func scanText(s repository.Scanner) (string, error) {
	var text *string
	if err := s.Scan(&text); err != nil {
		return "", err
	}
	if text == nil {
		return "", nil
	}
	return *text, nil
}

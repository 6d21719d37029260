package formatting

import (
	"regexp"
	"strings"
)

var (
	fencePattern  = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n?(.*?)\\n?```$")
	prefixPattern = regexp.MustCompile(`(?i)^(tags|keywords|alt text|alt-text|description)\s*:\s*`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

// CleanText normalizes free text returned by a vision model: it strips a
// surrounding markdown code fence, a leading label such as "Tags:", matching
// surrounding quotes, and collapses runs of whitespace.
func CleanText(s string) string {
	return spacePattern.ReplaceAllString(unwrap(s), " ")
}

// NormalizeTags cleans a comma or newline separated tag list, lowercases
// each entry, drops empties and duplicates, and rejoins with ", ".
func NormalizeTags(s string) string {
	s = unwrap(s)

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	})

	seen := make(map[string]bool, len(fields))
	tags := make([]string, 0, len(fields))
	for _, f := range fields {
		tag := strings.ToLower(strings.Trim(strings.TrimSpace(f), `"'.#-*`))
		tag = spacePattern.ReplaceAllString(strings.TrimSpace(tag), " ")
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}

	return strings.Join(tags, ", ")
}

func unwrap(s string) string {
	s = strings.TrimSpace(s)

	if m := fencePattern.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}

	s = prefixPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(trimQuotes(s))
}

func trimQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	first, last := s[0], s[len(s)-1]
	if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
		return strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

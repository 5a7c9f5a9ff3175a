package ingestion

import (
	"regexp"
	"strings"
)

var (
	blankRunPattern = regexp.MustCompile(`\n\n\n+`)
	spaceRunPattern = regexp.MustCompile(`\s+`)
)

// CleanText normalizes description text while preserving headings and bullet lists
func CleanText(content string) string {
	if content == "" {
		return ""
	}

	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	content = strings.ReplaceAll(content, "\u00a0", " ")

	lines := strings.Split(content, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		cleaned = append(cleaned, cleanLine(line))
	}

	result := strings.Join(cleaned, "\n")
	result = blankRunPattern.ReplaceAllString(result, "\n\n")
	return strings.TrimSpace(result)
}

// cleanLine normalizes one line. Headings and bullets keep their markers.
func cleanLine(line string) string {
	line = strings.TrimRight(line, " \t")
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" {
		return ""
	}

	if strings.HasPrefix(trimmed, "#") {
		return trimmed
	}

	if bullet, rest, ok := splitBullet(trimmed); ok {
		indent := len(line) - len(trimmed)
		return strings.Repeat(" ", indent) + bullet + spaceRunPattern.ReplaceAllString(rest, " ")
	}

	indent := len(line) - len(trimmed)
	content := spaceRunPattern.ReplaceAllString(trimmed, " ")
	if indent > 0 {
		return strings.Repeat(" ", indent) + content
	}
	return content
}

// splitBullet recognises "- ", "* " and unicode bullets, normalising the latter to "- "
func splitBullet(line string) (marker, rest string, ok bool) {
	for _, prefix := range []string{"- ", "* "} {
		if strings.HasPrefix(line, prefix) {
			return prefix, strings.TrimPrefix(line, prefix), true
		}
	}
	for _, prefix := range []string{"• ", "· "} {
		if strings.HasPrefix(line, prefix) {
			return "- ", strings.TrimPrefix(line, prefix), true
		}
	}
	return "", "", false
}

package orchestrator

import "strings"

const defaultTitleMaxLength = 60

// GenerateTitleFromMessage derives a session title from the first user
// message of a turn: the first line, truncated to maxLength at a word
// boundary when possible. Grounded on
// _examples/original_source/parachute/core/orchestrator.py's
// generate_title_from_message.
func GenerateTitleFromMessage(message string) string {
	return generateTitleFromMessage(message, defaultTitleMaxLength)
}

func generateTitleFromMessage(message string, maxLength int) string {
	firstLine := strings.TrimSpace(strings.SplitN(message, "\n", 2)[0])
	if len(firstLine) <= maxLength {
		return firstLine
	}

	truncated := firstLine[:maxLength]
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > maxLength/2 {
		truncated = truncated[:lastSpace]
	}
	return truncated + "..."
}

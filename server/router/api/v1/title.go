package v1

import "strings"

// maxTitleLen bounds auto-generated session titles.
const maxTitleLen = 40

// AutoTitle derives a session title from the opening message. It truncates
// on a word boundary so titles never cut a word in half.
func AutoTitle(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	if title == "" {
		return "New chat"
	}
	runes := []rune(title)
	if len(runes) <= maxTitleLen {
		return title
	}

	truncated := string(runes[:maxTitleLen])
	if cut := strings.LastIndex(truncated, " "); cut > 0 {
		truncated = truncated[:cut]
	}
	return strings.TrimSpace(truncated) + "…"
}

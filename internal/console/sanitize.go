package console

import (
	"regexp"
	"strings"
)

var (
	// CSI sequences (7-bit ESC [ or the C1 byte) and charset selection.
	escapePattern = regexp.MustCompile(`(\x9B|\x1B\[)[0-?]*[ -/]*[@-~]|\x1B[()][AB012]`)

	// Rich-text color tags some commands emit instead of ANSI codes.
	colorTagPattern = regexp.MustCompile(`<color=#[0-9a-fA-F]{6}>`)
)

const (
	colorReset = "<color=#ffffff>"
	colorClose = "</color>"
)

// StripEscapes removes terminal escape sequences and color tags from text.
// Removal repeats until nothing matches, so the result never contains a
// sequence that was assembled from the pieces around a removed one.
func StripEscapes(text string) string {
	for {
		next := escapePattern.ReplaceAllString(text, "")
		next = colorTagPattern.ReplaceAllString(next, "")
		next = strings.ReplaceAll(next, colorReset, "")
		next = strings.ReplaceAll(next, colorClose, "")
		if next == text {
			return next
		}
		text = next
	}
}

// Sanitize strips escapes, normalizes \r\n to \n and returns the trimmed,
// non-empty lines of text in order.
func Sanitize(text string) []string {
	clean := StripEscapes(text)
	clean = strings.ReplaceAll(clean, "\r\n", "\n")

	parts := strings.Split(clean, "\n")
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			lines = append(lines, p)
		}
	}
	return lines
}

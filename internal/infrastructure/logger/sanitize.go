package logger

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// SanitizeForLog escapes control characters in user supplied values (filenames, model ids,
// request headers) so they cannot forge log lines or drive the terminal.
func SanitizeForLog(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for _, r := range s {
		switch r {
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 32 || r == 127 {
				fmt.Fprintf(&b, `\x%02x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// Snippet sanitizes s and cuts it to at most n runes, for logging engine output.
func Snippet(s string, n int) string {
	clean := SanitizeForLog(strings.TrimSpace(s))
	if utf8.RuneCountInString(clean) <= n {
		return clean
	}
	runes := []rune(clean)
	return string(runes[:n]) + "…"
}

package validation

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "talk.mp3", "talk.mp3"},
		{"unicode kept", "réunion été 会議.m4a", "réunion été 会議.m4a"},
		{"unix path", "/home/me/talk.mp3", "talk.mp3"},
		{"windows path", `C:\Users\me\talk.mp3`, "talk.mp3"},
		{"traversal", "../../etc/passwd", "passwd"},
		{"dot dot only", "..", "audio"},
		{"hidden file", ".env", "env"},
		{"quotes", `my "best" talk.mp3`, "my _best_ talk.mp3"},
		{"header injection", "a\r\nSet-Cookie: x.mp3", "a__Set-Cookie_ x.mp3"},
		{"control chars", "a\x00b\x7f.wav", "a_b_.wav"},
		{"empty", "", "audio"},
		{"whitespace", "   ", "audio"},
		{"only unsafe", `"?*`, "audio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.input))
		})
	}
}

func TestSanitizeFilename_Truncates(t *testing.T) {
	long := strings.Repeat("é", 200) + ".flac"
	got := SanitizeFilename(long)

	assert.LessOrEqual(t, len(got), maxFilenameLength)
	assert.True(t, strings.HasSuffix(got, ".flac"))
	assert.True(t, utf8.ValidString(got))
}

func TestContentDisposition(t *testing.T) {
	assert.Equal(t, `attachment; filename="talk.mp3"`, ContentDisposition("talk.mp3", false))
	assert.Equal(t, `inline; filename="a_b.mp3"`, ContentDisposition("a\"b.mp3", true))
}

func TestAudioContentType(t *testing.T) {
	assert.Equal(t, "audio/mpeg", AudioContentType("x.MP3"))
	assert.Equal(t, "audio/wav", AudioContentType("x.wav"))
	assert.Equal(t, "application/octet-stream", AudioContentType("x.bin"))
	assert.Equal(t, "application/octet-stream", AudioContentType("noext"))
}

package validation

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const maxFilenameLength = 255

// replaced with '_' so a name can neither escape the upload directory nor break a header.
var unsafeChars = map[rune]bool{
	'"':  true,
	'\\': true,
	'/':  true,
	':':  true,
	'*':  true,
	'?':  true,
	'<':  true,
	'>':  true,
	'|':  true,
}

// SanitizeFilename turns a client-supplied upload name into a single safe path
// element. Unicode is preserved; control characters and separators become '_',
// leading dots are dropped and long names are cut to 255 bytes keeping the
// extension. Empty results become "audio".
func SanitizeFilename(name string) string {
	// browsers on Windows may send the full client path
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range name {
		if r < 32 || r == 127 || unsafeChars[r] || r == utf8.RuneError {
			sb.WriteRune('_')
			continue
		}
		sb.WriteRune(r)
	}

	result := strings.TrimSpace(sb.String())
	result = strings.TrimLeft(result, ". ")
	if result == "" || strings.Trim(result, "_") == "" {
		return "audio"
	}

	if len(result) > maxFilenameLength {
		result = truncatePreservingExtension(result)
	}
	return result
}

func truncatePreservingExtension(name string) string {
	ext := filepath.Ext(name)
	if ext == "" || len(ext) >= maxFilenameLength/2 {
		return truncateToBytes(name, maxFilenameLength)
	}
	base := strings.TrimSuffix(name, ext)
	return truncateToBytes(base, maxFilenameLength-len(ext)) + ext
}

// truncateToBytes never splits a multi-byte rune.
func truncateToBytes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

func ContentDisposition(filename string, inline bool) string {
	disposition := "attachment"
	if inline {
		disposition = "inline"
	}
	return fmt.Sprintf("%s; filename=%q", disposition, SanitizeFilename(filename))
}

var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".oga":  "audio/ogg",
	".flac": "audio/flac",
	".aac":  "audio/aac",
	".m4a":  "audio/mp4",
	".mp4":  "video/mp4",
	".webm": "audio/webm",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
}

// AudioContentType guesses a media type from the file extension.
func AudioContentType(name string) string {
	if ct, ok := audioTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

package domain

import (
	"fmt"
	"strings"
)

const (
	NoSummary       = "No summary available"
	NoQuestions     = "No questions generated"
	FailedSummary   = "No summary available due to processing error"
	FailedQuestions = "No questions generated due to processing error"
)

var tagPrefixes = []string{"[Error:", "[No speech detected"}

// IsTagged reports whether text is a bracketed failure marker rather than a transcript.
func IsTagged(text string) bool {
	trimmed := strings.TrimSpace(text)
	for _, p := range tagPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

func FileNotFoundTag(name string) string {
	return fmt.Sprintf("[Error: File not found - %s]", name)
}

func EmptyFileTag(name string) string {
	return fmt.Sprintf("[Error: Empty file - %s]", name)
}

func NoSpeechTag(name string) string {
	return fmt.Sprintf("[No speech detected in %s]", name)
}

func TranscriptionFailedTag(msg string) string {
	return fmt.Sprintf("[Error: Transcription failed - %s]", msg)
}

func EngineUnavailableTag(name string) string {
	return fmt.Sprintf("[Error: Speech-to-text engine not available - %s]", name)
}

func ProcessingFailedTag(msg string) string {
	return fmt.Sprintf("[Error: Processing failed - %s]", msg)
}

package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/bnema/orator/internal/domain"
	"github.com/bnema/orator/internal/infrastructure/logger"
	"github.com/bnema/orator/internal/infrastructure/metrics"
	"github.com/bnema/orator/internal/port"
	"github.com/sirupsen/logrus"
)

const (
	promptExcerptRunes = 1000
	answerExcerptRunes = 2000
)

const summaryPrompt = `Provide a concise summary of the following text in %d sentences. Do not include anything else, only the summary.

Text: %s

Summary:`

const questionsPrompt = `Based on the following text, write %d thoughtful questions that would help someone understand the key concepts and ideas discussed. Put each question on its own line. No other text, only the questions.

Text: %s

Questions:`

const answerPrompt = `Answer the question using only the transcript below. If the transcript does not contain the answer, say so in one sentence.

Transcript: %s

Question: %s

Answer:`

const NoAnswer = "I cannot find the answer to your question."

var (
	listMarker    = regexp.MustCompile(`^(?:\d+[.)]|[-*•])\s*`)
	questionLabel = regexp.MustCompile(`(?i)^(?:q|question)\s*\d*\s*:\s*`)
)

// Analyzer turns a transcript into a summary and comprehension questions. Each
// operation calls the text engine at most once and never retries.
type Analyzer struct {
	engine port.TextGenerator
	logger *logger.Logger
}

func NewAnalyzer(engine port.TextGenerator, log *logger.Logger) *Analyzer {
	return &Analyzer{engine: engine, logger: log.Component("analysis")}
}

func (a *Analyzer) Summarize(ctx context.Context, model, text string, sentences int) string {
	if strings.TrimSpace(text) == "" || domain.IsTagged(text) {
		return domain.NoSummary
	}
	if sentences < 1 {
		sentences = 1
	}

	out, err := a.generate(ctx, "summarize", model, fmt.Sprintf(summaryPrompt, sentences, excerpt(text, promptExcerptRunes)))
	if err != nil || out == "" {
		return domain.NoSummary
	}
	return out
}

func (a *Analyzer) GenerateQuestions(ctx context.Context, model, text string, count int) []string {
	if strings.TrimSpace(text) == "" || domain.IsTagged(text) {
		return []string{}
	}
	if count < 1 {
		count = 1
	}

	out, err := a.generate(ctx, "questions", model, fmt.Sprintf(questionsPrompt, count, excerpt(text, promptExcerptRunes)))
	if err != nil || out == "" {
		return []string{domain.NoQuestions}
	}

	questions := ParseQuestions(out, count)
	if len(questions) == 0 {
		a.logger.WithField("output", logger.Snippet(out, 200)).Warn("no questions parsed from model output")
		return []string{domain.NoQuestions}
	}
	return questions
}

// Answer responds to a free-form question about a transcript, falling back to
// keyword matching when the engine gives nothing usable.
func (a *Analyzer) Answer(ctx context.Context, model, transcript, question string) string {
	out, err := a.generate(ctx, "answer", model, fmt.Sprintf(answerPrompt, excerpt(transcript, answerExcerptRunes), question))
	if err == nil && out != "" {
		return out
	}
	return keywordAnswer(transcript, question)
}

func (a *Analyzer) generate(ctx context.Context, op, model, prompt string) (string, error) {
	start := time.Now()
	out, err := a.engine.Generate(ctx, model, prompt)
	metrics.ObserveEngine("text", op, port.Outcome(err), time.Since(start))
	if err != nil {
		a.logger.WithError(err).WithFields(logrus.Fields{
			"op":      op,
			"model":   logger.SanitizeForLog(model),
			"outcome": port.Outcome(err),
		}).Warn("text engine call failed, using fallback")
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// ParseQuestions extracts up to count questions from model output, one per line.
func ParseQuestions(output string, count int) []string {
	questions := make([]string, 0, count)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		line = strings.TrimSpace(questionLabel.ReplaceAllString(line, ""))
		line = strings.Trim(line, "*_ ")

		if line == "" || !strings.HasSuffix(line, "?") {
			continue
		}
		questions = append(questions, line)
		if len(questions) >= count {
			break
		}
	}
	return questions
}

// FormatQuestions numbers questions one per line for storage.
func FormatQuestions(questions []string) string {
	if len(questions) == 0 {
		return domain.NoQuestions
	}
	var b strings.Builder
	for i, q := range questions {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(q)
	}
	return b.String()
}

func excerpt(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

func keywordAnswer(transcript, question string) string {
	lower := strings.ToLower(transcript)
	seen := make(map[string]bool)
	var found []string
	for _, word := range strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(word)) < 4 || seen[word] {
			continue
		}
		seen[word] = true
		if strings.Contains(lower, word) {
			found = append(found, word)
		}
	}
	if len(found) == 0 {
		return NoAnswer
	}
	return "The transcript mentions: " + strings.Join(found, ", ") + "."
}

package service

import (
	"context"
	"strings"
	"testing"

	"github.com/bnema/orator/internal/domain"
	"github.com/bnema/orator/internal/infrastructure/logger"
	"github.com/bnema/orator/internal/port"
	"github.com/bnema/orator/internal/port/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestParseQuestions(t *testing.T) {
	tests := []struct {
		name   string
		output string
		count  int
		want   []string
	}{
		{
			name:   "numbered list keeps only questions",
			output: "1. What is X?\n2. Not a question\n3. How does Y work?",
			count:  3,
			want:   []string{"What is X?", "How does Y work?"},
		},
		{
			name:   "bullets and labels",
			output: "- Q: Why now?\n* Question 2: Who decided?\n• What next?",
			count:  5,
			want:   []string{"Why now?", "Who decided?", "What next?"},
		},
		{
			name:   "stops at count",
			output: "A?\nB?\nC?\nD?",
			count:  2,
			want:   []string{"A?", "B?"},
		},
		{
			name:   "markdown emphasis",
			output: "1) **What changed?**",
			count:  3,
			want:   []string{"What changed?"},
		},
		{
			name:   "nothing usable",
			output: "Here are some thoughts.\n\n",
			count:  3,
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseQuestions(tt.output, tt.count))
		})
	}
}

func TestFormatQuestions(t *testing.T) {
	assert.Equal(t, "1. A?\n2. B?", FormatQuestions([]string{"A?", "B?"}))
	assert.Equal(t, domain.NoQuestions, FormatQuestions(nil))
}

func TestAnalyzer_Summarize(t *testing.T) {
	ctx := context.Background()

	t.Run("empty and tagged text skip the engine", func(t *testing.T) {
		engine := mocks.NewTextGeneratorMock(t)
		a := NewAnalyzer(engine, logger.Discard())

		assert.Equal(t, domain.NoSummary, a.Summarize(ctx, "m", "", 2))
		assert.Equal(t, domain.NoSummary, a.Summarize(ctx, "m", "   ", 2))
		assert.Equal(t, domain.NoSummary, a.Summarize(ctx, "m", domain.FileNotFoundTag("a.mp3"), 2))
		engine.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("returns trimmed output", func(t *testing.T) {
		engine := mocks.NewTextGeneratorMock(t)
		engine.On("Generate", mock.Anything, "m", mock.MatchedBy(func(p string) bool {
			return strings.Contains(p, "in 2 sentences") && strings.Contains(p, "the talk text")
		})).Return("  A short summary.  \n", nil).Once()

		a := NewAnalyzer(engine, logger.Discard())
		assert.Equal(t, "A short summary.", a.Summarize(ctx, "m", "the talk text", 2))
	})

	t.Run("prompt embeds at most 1000 runes", func(t *testing.T) {
		engine := mocks.NewTextGeneratorMock(t)
		long := strings.Repeat("é", 1500)
		engine.On("Generate", mock.Anything, "m", mock.MatchedBy(func(p string) bool {
			return strings.Contains(p, strings.Repeat("é", 1000)) && !strings.Contains(p, strings.Repeat("é", 1001))
		})).Return("ok", nil).Once()

		NewAnalyzer(engine, logger.Discard()).Summarize(ctx, "m", long, 2)
	})

	t.Run("engine failure falls back", func(t *testing.T) {
		engine := mocks.NewTextGeneratorMock(t)
		engine.On("Generate", mock.Anything, "m", mock.Anything).Return("", port.ErrEngineTimeout).Once()

		a := NewAnalyzer(engine, logger.Discard())
		assert.Equal(t, domain.NoSummary, a.Summarize(ctx, "m", "text", 2))
	})

	t.Run("blank output falls back", func(t *testing.T) {
		engine := mocks.NewTextGeneratorMock(t)
		engine.On("Generate", mock.Anything, "m", mock.Anything).Return(" \n", nil).Once()

		a := NewAnalyzer(engine, logger.Discard())
		assert.Equal(t, domain.NoSummary, a.Summarize(ctx, "m", "text", 2))
	})
}

func TestAnalyzer_GenerateQuestions(t *testing.T) {
	ctx := context.Background()

	t.Run("empty text yields no questions without engine call", func(t *testing.T) {
		engine := mocks.NewTextGeneratorMock(t)
		a := NewAnalyzer(engine, logger.Discard())

		assert.Empty(t, a.GenerateQuestions(ctx, "m", "", 3))
		assert.Empty(t, a.GenerateQuestions(ctx, "m", domain.NoSpeechTag("a.wav"), 3))
		engine.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("parses model output", func(t *testing.T) {
		engine := mocks.NewTextGeneratorMock(t)
		engine.On("Generate", mock.Anything, "m", mock.Anything).
			Return("1. What is X?\n2. Not a question\n3. How does Y work?", nil).Once()

		a := NewAnalyzer(engine, logger.Discard())
		assert.Equal(t, []string{"What is X?", "How does Y work?"}, a.GenerateQuestions(ctx, "m", "text", 3))
	})

	t.Run("unparseable output", func(t *testing.T) {
		engine := mocks.NewTextGeneratorMock(t)
		engine.On("Generate", mock.Anything, "m", mock.Anything).Return("no questions here", nil).Once()

		a := NewAnalyzer(engine, logger.Discard())
		assert.Equal(t, []string{domain.NoQuestions}, a.GenerateQuestions(ctx, "m", "text", 3))
	})

	t.Run("engine failure", func(t *testing.T) {
		engine := mocks.NewTextGeneratorMock(t)
		engine.On("Generate", mock.Anything, "m", mock.Anything).Return("", port.ErrEngineUnavailable).Once()

		a := NewAnalyzer(engine, logger.Discard())
		assert.Equal(t, []string{domain.NoQuestions}, a.GenerateQuestions(ctx, "m", "text", 3))
	})
}

func TestAnalyzer_Answer(t *testing.T) {
	ctx := context.Background()
	transcript := "Kubernetes schedules containers across a cluster of machines."

	t.Run("engine answer", func(t *testing.T) {
		engine := mocks.NewTextGeneratorMock(t)
		engine.On("Generate", mock.Anything, "m", mock.MatchedBy(func(p string) bool {
			return strings.Contains(p, "What does it schedule?")
		})).Return("Containers.", nil).Once()

		a := NewAnalyzer(engine, logger.Discard())
		assert.Equal(t, "Containers.", a.Answer(ctx, "m", transcript, "What does it schedule?"))
	})

	t.Run("keyword fallback", func(t *testing.T) {
		engine := mocks.NewTextGeneratorMock(t)
		engine.On("Generate", mock.Anything, "m", mock.Anything).Return("", port.ErrEngineUnavailable).Twice()

		a := NewAnalyzer(engine, logger.Discard())
		assert.Equal(t, "The transcript mentions: containers, cluster.",
			a.Answer(ctx, "m", transcript, "How are containers placed in the cluster?"))
		assert.Equal(t, NoAnswer, a.Answer(ctx, "m", transcript, "Who won the match?"))
	})
}

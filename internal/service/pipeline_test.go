package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bnema/orator/internal/adapter/storage/jsonfile"
	"github.com/bnema/orator/internal/domain"
	"github.com/bnema/orator/internal/infrastructure/logger"
	"github.com/bnema/orator/internal/port"
	"github.com/bnema/orator/internal/port/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingPublisher) Publish(_ int64, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingPublisher) percentages() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Progress.ProgressPercentage)
	}
	return out
}

type pipelineHarness struct {
	store     port.JobStore
	prober    *mocks.DurationProberMock
	stt       *mocks.TranscriberMock
	engine    *mocks.TextGeneratorMock
	events    *recordingPublisher
	uploadDir string
	pipeline  *Pipeline
}

func newPipelineHarness(t *testing.T, store port.JobStore) *pipelineHarness {
	t.Helper()
	if store == nil {
		s, err := jsonfile.NewStore(t.TempDir())
		require.NoError(t, err)
		store = s
	}

	h := &pipelineHarness{
		store:     store,
		prober:    mocks.NewDurationProberMock(t),
		stt:       mocks.NewTranscriberMock(t),
		engine:    mocks.NewTextGeneratorMock(t),
		events:    &recordingPublisher{},
		uploadDir: t.TempDir(),
	}
	h.engine.On("Endpoint").Return("http://engine.test").Maybe()

	log := logger.Discard()
	h.pipeline = NewPipeline(
		h.store,
		h.prober,
		h.stt,
		NewAnalyzer(h.engine, log),
		NewReadinessCoordinator(h.engine, fastReadiness(), log),
		h.events,
		PipelineConfig{UploadDir: h.uploadDir, DefaultModel: "m"},
		log,
	)
	return h
}

func (h *pipelineHarness) newJob(t *testing.T, name, content string) *domain.Job {
	t.Helper()
	if content != "-" {
		require.NoError(t, os.WriteFile(filepath.Join(h.uploadDir, name), []byte(content), 0644))
	}
	size := int64(len(content))
	job, err := h.store.Create(context.Background(), name, &size, nil)
	require.NoError(t, err)
	return job
}

func (h *pipelineHarness) engineDown() {
	h.engine.On("Available", mock.Anything).Return(false)
}

func (h *pipelineHarness) get(t *testing.T, id int64) *domain.Job {
	t.Helper()
	job, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return job
}

func prompt(prefix string) any {
	return mock.MatchedBy(func(p string) bool { return strings.HasPrefix(p, prefix) })
}

func assertMonotonic(t *testing.T, pcts []int) {
	t.Helper()
	for i := 1; i < len(pcts); i++ {
		assert.GreaterOrEqual(t, pcts[i], pcts[i-1], "progress went backwards: %v", pcts)
	}
}

func TestPipeline_Run_Complete(t *testing.T) {
	h := newPipelineHarness(t, nil)
	job := h.newJob(t, "talk.mp3", "audio-bytes")
	audio := filepath.Join(h.uploadDir, "talk.mp3")

	h.prober.On("Duration", mock.Anything, audio).Return(12.5, nil).Once()
	h.engine.On("Available", mock.Anything).Return(true).Once()
	h.engine.On("ListModels", mock.Anything).Return([]string{"m:latest"}, nil).Once()
	h.engine.On("Generate", mock.Anything, "m", warmupPrompt).Return("hi", nil).Once()
	h.stt.On("Transcribe", mock.Anything, audio).Return("hello world this is talk", nil).Once()
	h.engine.On("Generate", mock.Anything, "m", prompt("Provide a concise summary")).Return("A greeting.", nil).Once()
	h.engine.On("Generate", mock.Anything, "m", prompt("Based on the following text")).
		Return("1. What is X?\n2. Not a question\n3. How does Y work?", nil).Once()

	h.pipeline.Run(context.Background(), job)

	got := h.get(t, job.ID)
	assert.Equal(t, domain.StageComplete, got.ProcessingStage)
	assert.Equal(t, 100, got.ProgressPercentage)
	require.NotNil(t, got.AudioDuration)
	assert.InDelta(t, 12.5, *got.AudioDuration, 0.001)
	assert.Equal(t, "hello world this is talk", *got.Transcription)
	assert.Equal(t, 5, got.WordCount)
	assert.Equal(t, "A greeting.", *got.Summary)
	assert.Equal(t, "1. What is X?\n2. How does Y work?", *got.Questions)

	pcts := h.events.percentages()
	assertMonotonic(t, pcts)
	assert.Equal(t, []int{5, 10, 20, 20, 25, 50, 75, 80, 90, 100}, pcts)
}

func TestPipeline_Run_PreconditionTags(t *testing.T) {
	tests := []struct {
		name    string
		content string
		setup   func(h *pipelineHarness, audio string)
		wantTag string
	}{
		{
			name:    "missing file",
			content: "-",
			wantTag: domain.FileNotFoundTag("talk.mp3"),
		},
		{
			name:    "empty file",
			content: "",
			wantTag: domain.EmptyFileTag("talk.mp3"),
		},
		{
			name:    "speech engine unavailable",
			content: "audio",
			setup: func(h *pipelineHarness, audio string) {
				h.stt.On("Transcribe", mock.Anything, audio).Return("", port.ErrEngineUnavailable).Once()
			},
			wantTag: domain.EngineUnavailableTag("talk.mp3"),
		},
		{
			name:    "transcription error",
			content: "audio",
			setup: func(h *pipelineHarness, audio string) {
				h.stt.On("Transcribe", mock.Anything, audio).Return("", errors.New("decoder crashed")).Once()
			},
			wantTag: domain.TranscriptionFailedTag("decoder crashed"),
		},
		{
			name:    "no speech",
			content: "audio",
			setup: func(h *pipelineHarness, audio string) {
				h.stt.On("Transcribe", mock.Anything, audio).Return(" \n ", nil).Once()
			},
			wantTag: domain.NoSpeechTag("talk.mp3"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newPipelineHarness(t, nil)
			job := h.newJob(t, "talk.mp3", tt.content)
			audio := filepath.Join(h.uploadDir, "talk.mp3")

			h.prober.On("Duration", mock.Anything, audio).Return(0.0, errors.New("probe failed")).Once()
			h.engineDown()
			if tt.setup != nil {
				tt.setup(h, audio)
			}

			h.pipeline.Run(context.Background(), job)

			got := h.get(t, job.ID)
			assert.Equal(t, domain.StageComplete, got.ProcessingStage)
			assert.Equal(t, 100, got.ProgressPercentage)
			assert.Equal(t, tt.wantTag, *got.Transcription)
			assert.Equal(t, domain.NoSummary, *got.Summary)
			assert.Equal(t, domain.NoQuestions, *got.Questions)
			require.NotNil(t, got.AudioDuration)
			assert.Zero(t, *got.AudioDuration)
			assertMonotonic(t, h.events.percentages())

			if tt.setup == nil {
				h.stt.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
			}
			h.engine.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestPipeline_Run_AnalysisFallbacks(t *testing.T) {
	h := newPipelineHarness(t, nil)
	job := h.newJob(t, "talk.mp3", "audio")
	audio := filepath.Join(h.uploadDir, "talk.mp3")

	h.prober.On("Duration", mock.Anything, audio).Return(3.0, nil).Once()
	h.engine.On("Available", mock.Anything).Return(false).Once()
	h.stt.On("Transcribe", mock.Anything, audio).Return("some words", nil).Once()
	h.engine.On("Generate", mock.Anything, "m", mock.Anything).Return("", port.ErrEngineUnavailable).Twice()

	h.pipeline.Run(context.Background(), job)

	got := h.get(t, job.ID)
	assert.Equal(t, domain.StageComplete, got.ProcessingStage)
	assert.Equal(t, domain.NoSummary, *got.Summary)
	assert.Equal(t, "1. "+domain.NoQuestions, *got.Questions)
	assert.Equal(t, 2, got.WordCount)
}

func TestPipeline_Run_DeletedMidRun(t *testing.T) {
	h := newPipelineHarness(t, nil)
	job := h.newJob(t, "talk.mp3", "audio")
	audio := filepath.Join(h.uploadDir, "talk.mp3")

	h.prober.On("Duration", mock.Anything, audio).Return(1.0, nil).Once()
	h.engineDown()
	h.stt.On("Transcribe", mock.Anything, audio).Run(func(mock.Arguments) {
		require.NoError(t, h.store.Delete(context.Background(), job.ID))
	}).Return("words", nil).Once()

	h.pipeline.Run(context.Background(), job)

	_, err := h.store.Get(context.Background(), job.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	jobs, err := h.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
	h.engine.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestPipeline_Run_CancelledStopsQuietly(t *testing.T) {
	h := newPipelineHarness(t, nil)
	job := h.newJob(t, "talk.mp3", "audio")
	audio := filepath.Join(h.uploadDir, "talk.mp3")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.prober.On("Duration", mock.Anything, audio).Return(1.0, nil).Once()
	h.engineDown()
	h.stt.On("Transcribe", mock.Anything, audio).Run(func(mock.Arguments) { cancel() }).
		Return("", context.Canceled).Once()

	h.pipeline.Run(ctx, job)

	got := h.get(t, job.ID)
	assert.Equal(t, domain.StageTranscribing, got.ProcessingStage)
	assert.Equal(t, domain.ProgressInputValidated, got.ProgressPercentage)
	assert.Nil(t, got.Transcription)
}

type failingAnalysisStore struct {
	port.JobStore
}

func (failingAnalysisStore) UpdateAnalysis(context.Context, int64, string, string, string) error {
	return errors.New("disk full")
}

func TestPipeline_Run_StoreFailureMarksError(t *testing.T) {
	base, err := jsonfile.NewStore(t.TempDir())
	require.NoError(t, err)
	h := newPipelineHarness(t, failingAnalysisStore{JobStore: base})
	job := h.newJob(t, "talk.mp3", "audio")
	audio := filepath.Join(h.uploadDir, "talk.mp3")

	h.prober.On("Duration", mock.Anything, audio).Return(1.0, nil).Once()
	h.engineDown()
	h.stt.On("Transcribe", mock.Anything, audio).Return("words here", nil).Once()
	h.engine.On("Generate", mock.Anything, "m", mock.Anything).Return("", port.ErrEngineUnavailable).Twice()

	h.pipeline.Run(context.Background(), job)

	got := h.get(t, job.ID)
	assert.Equal(t, domain.StageError, got.ProcessingStage)
	assert.Equal(t, domain.ProgressQuestioning, got.ProgressPercentage, "error keeps the last percentage")
	assert.Equal(t, domain.ProcessingFailedTag("disk full"), *got.Transcription)
	assert.Equal(t, domain.FailedSummary, *got.Summary)
	assert.Equal(t, domain.FailedQuestions, *got.Questions)
	assert.Zero(t, got.WordCount)
}

func TestPipeline_Run_PanicMarksError(t *testing.T) {
	h := newPipelineHarness(t, nil)
	job := h.newJob(t, "talk.mp3", "audio")
	audio := filepath.Join(h.uploadDir, "talk.mp3")

	h.prober.On("Duration", mock.Anything, audio).Return(1.0, nil).Once()
	h.engineDown()
	h.stt.On("Transcribe", mock.Anything, audio).Run(func(mock.Arguments) { panic("boom") }).
		Return("", nil).Once()

	h.pipeline.Run(context.Background(), job)

	got := h.get(t, job.ID)
	assert.Equal(t, domain.StageError, got.ProcessingStage)
	assert.Equal(t, domain.ProgressInputValidated, got.ProgressPercentage)
	assert.Contains(t, *got.Transcription, "boom")
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bnema/orator/internal/infrastructure/logger"
	"github.com/bnema/orator/internal/port"
	"github.com/bnema/orator/internal/port/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func fastReadiness() ReadinessConfig {
	return ReadinessConfig{
		Attempts:       3,
		InitialBackoff: time.Millisecond,
		PullPause:      time.Millisecond,
		WarmupInterval: time.Millisecond,
		WarmupMaxWait:  200 * time.Millisecond,
		WarmupTimeout:  50 * time.Millisecond,
	}
}

func recordSteps() (*[]ReadinessStep, func(ReadinessStep)) {
	var steps []ReadinessStep
	return &steps, func(s ReadinessStep) { steps = append(steps, s) }
}

func TestEnsureReady_EngineUnreachable(t *testing.T) {
	engine := mocks.NewTextGeneratorMock(t)
	engine.On("Available", mock.Anything).Return(false).Once()
	engine.On("Endpoint").Return("http://localhost:11434").Maybe()

	c := NewReadinessCoordinator(engine, fastReadiness(), logger.Discard())
	steps, onStep := recordSteps()

	assert.False(t, c.EnsureReady(context.Background(), "m", onStep))
	assert.Empty(t, *steps)
	engine.AssertNotCalled(t, "ListModels", mock.Anything)
}

func TestEnsureReady_ModelInstalled(t *testing.T) {
	engine := mocks.NewTextGeneratorMock(t)
	engine.On("Available", mock.Anything).Return(true).Once()
	engine.On("ListModels", mock.Anything).Return([]string{"other", "m:latest"}, nil).Once()
	engine.On("Generate", mock.Anything, "m", warmupPrompt).Return("Hi there", nil).Once()

	c := NewReadinessCoordinator(engine, fastReadiness(), logger.Discard())
	steps, onStep := recordSteps()

	assert.True(t, c.EnsureReady(context.Background(), "m", onStep))
	assert.Equal(t, []ReadinessStep{ReadinessProbed, ReadinessModelAvailable}, *steps)
	engine.AssertNotCalled(t, "PullModel", mock.Anything, mock.Anything)
}

func TestEnsureAvailable_PullsOnFirstMiss(t *testing.T) {
	engine := mocks.NewTextGeneratorMock(t)
	engine.On("ListModels", mock.Anything).Return([]string{}, nil).Once()
	engine.On("PullModel", mock.Anything, "m").Return(nil).Once()
	engine.On("ListModels", mock.Anything).Return([]string{"m"}, nil).Once()

	c := NewReadinessCoordinator(engine, fastReadiness(), logger.Discard())
	assert.True(t, c.EnsureAvailable(context.Background(), "m"))
}

func TestEnsureAvailable_GivesUpAfterAttempts(t *testing.T) {
	engine := mocks.NewTextGeneratorMock(t)
	engine.On("ListModels", mock.Anything).Return([]string{"other"}, nil).Times(3)
	engine.On("PullModel", mock.Anything, "m").Return(port.ErrModelNotFound).Once()

	c := NewReadinessCoordinator(engine, fastReadiness(), logger.Discard())
	assert.False(t, c.EnsureAvailable(context.Background(), "m"))
}

func TestEnsureAvailable_ListErrorsCountAsMisses(t *testing.T) {
	engine := mocks.NewTextGeneratorMock(t)
	engine.On("ListModels", mock.Anything).Return(nil, port.ErrEngineUnavailable).Once()
	engine.On("PullModel", mock.Anything, "m").Return(port.ErrEngineUnavailable).Once()
	engine.On("ListModels", mock.Anything).Return([]string{"m"}, nil).Once()

	c := NewReadinessCoordinator(engine, fastReadiness(), logger.Discard())
	assert.True(t, c.EnsureAvailable(context.Background(), "m"))
}

func TestEnsureAvailable_StopsOnCancel(t *testing.T) {
	engine := mocks.NewTextGeneratorMock(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewReadinessCoordinator(engine, fastReadiness(), logger.Discard())
	assert.False(t, c.EnsureAvailable(ctx, "m"))
	engine.AssertNotCalled(t, "ListModels", mock.Anything)
}

func TestWarmUp(t *testing.T) {
	t.Run("waits for the model to load", func(t *testing.T) {
		engine := mocks.NewTextGeneratorMock(t)
		engine.On("Generate", mock.Anything, "m", warmupPrompt).Return("", port.ErrModelNotFound).Twice()
		engine.On("Generate", mock.Anything, "m", warmupPrompt).Return("hello", nil).Once()

		c := NewReadinessCoordinator(engine, fastReadiness(), logger.Discard())
		assert.True(t, c.WarmUp(context.Background(), "m"))
	})

	t.Run("gives up after the budget", func(t *testing.T) {
		engine := mocks.NewTextGeneratorMock(t)
		engine.On("Generate", mock.Anything, "m", warmupPrompt).Return("", errors.New("boom"))

		cfg := fastReadiness()
		cfg.WarmupMaxWait = 20 * time.Millisecond
		c := NewReadinessCoordinator(engine, cfg, logger.Discard())

		start := time.Now()
		assert.False(t, c.WarmUp(context.Background(), "m"))
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("empty output is not ready", func(t *testing.T) {
		engine := mocks.NewTextGeneratorMock(t)
		engine.On("Generate", mock.Anything, "m", warmupPrompt).Return("  ", nil)

		cfg := fastReadiness()
		cfg.WarmupMaxWait = 20 * time.Millisecond
		c := NewReadinessCoordinator(engine, cfg, logger.Discard())
		assert.False(t, c.WarmUp(context.Background(), "m"))
	})
}

func TestMatchModel(t *testing.T) {
	names := []string{"llama3.2:latest", "vatistasdim/boXai:latest"}

	assert.Equal(t, "llama3.2:latest", matchModel(names, "llama3.2"))
	assert.Equal(t, "vatistasdim/boXai:latest", matchModel(names, "vatistasdim/boXai"))
	assert.Equal(t, "", matchModel(names, "mistral"))
	assert.Equal(t, "", matchModel(nil, "mistral"))
}

package port

import (
	"context"
	"errors"
)

// Failure classes returned by engine adapters. Callers match them with errors.Is.
var (
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrEngineTimeout     = errors.New("engine timed out")
	ErrMalformedResponse = errors.New("malformed engine response")
	ErrModelNotFound     = errors.New("model not found")
)

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

type TextGenerator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
	Available(ctx context.Context) bool
	ListModels(ctx context.Context) ([]string, error)
	PullModel(ctx context.Context, model string) error
	Endpoint() string
}

// Outcome names an engine result for logs and metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEngineUnavailable):
		return "unavailable"
	case errors.Is(err, ErrEngineTimeout):
		return "timeout"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrModelNotFound):
		return "model_not_found"
	default:
		return "error"
	}
}

package whisper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bnema/orator/internal/adapter/converter/ffmpeg"
	"github.com/bnema/orator/internal/adapter/engine"
	"github.com/bnema/orator/internal/port"
)

type WAVConverter interface {
	ToWAV(ctx context.Context, inputPath, outputPath string) error
}

type CLIConfig struct {
	Binary    string
	ModelPath string
	Language  string
	Timeout   time.Duration
}

// CLI transcribes through a local whisper.cpp build. Input is first converted to
// 16 kHz mono WAV; the transcript is read back from the .txt file whisper writes.
type CLI struct {
	cfg       CLIConfig
	converter WAVConverter
	runner    ffmpeg.Runner
	lookPath  func(string) (string, error)
	stat      func(string) (os.FileInfo, error)
}

func NewCLI(cfg CLIConfig, converter WAVConverter) *CLI {
	return &CLI{
		cfg:       cfg,
		converter: converter,
		runner:    ffmpeg.ExecRunner{},
		lookPath:  exec.LookPath,
		stat:      os.Stat,
	}
}

func (c *CLI) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if _, err := c.lookPath(c.cfg.Binary); err != nil {
		return "", fmt.Errorf("%w: %s not installed", port.ErrEngineUnavailable, c.cfg.Binary)
	}
	if _, err := c.stat(c.cfg.ModelPath); err != nil {
		return "", fmt.Errorf("%w: model %s missing", port.ErrEngineUnavailable, c.cfg.ModelPath)
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	workDir, err := os.MkdirTemp("", "orator-whisper-*")
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	wavPath := filepath.Join(workDir, "audio.wav")
	if err := c.converter.ToWAV(ctx, audioPath, wavPath); err != nil {
		return "", contextError(ctx, err)
	}

	outBase := filepath.Join(workDir, "transcript")
	res, err := c.runner.Run(ctx, c.cfg.Binary, buildArgs(c.cfg.ModelPath, wavPath, outBase, c.cfg.Language)...)
	if err != nil {
		return "", contextError(ctx, fmt.Errorf("whisper exited with %d: %s: %w", res.ExitCode, strings.TrimSpace(res.Stderr), err))
	}

	text, err := os.ReadFile(outBase + ".txt")
	if err != nil {
		return "", fmt.Errorf("%w: transcript file missing: %w", port.ErrMalformedResponse, err)
	}
	return strings.TrimSpace(string(text)), nil
}

func buildArgs(modelPath, audioPath, outBase, language string) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", outBase,
		"-otxt",
		"-np",
	}
	if lang := strings.TrimSpace(language); lang != "" && !strings.EqualFold(lang, "auto") {
		args = append(args, "-l", lang)
	}
	return args
}

// contextError reports a killed process as cancellation or timeout rather than a crash.
func contextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.Canceled) {
			return ctxErr
		}
		return engine.Classify(ctxErr)
	}
	return err
}

var _ port.Transcriber = (*CLI)(nil)

package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/orator/internal/domain"
	"github.com/bnema/orator/internal/port"
)

var (
	ErrEmptyPath   = errors.New("empty path")
	ErrInvalidPath = errors.New("path contains null byte")
)

const probeTimeout = 30 * time.Second

type Converter struct {
	ffmpegPath  string
	ffprobePath string
	runner      Runner
}

func NewConverter(ffmpegPath, ffprobePath string) *Converter {
	return &Converter{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      ExecRunner{},
	}
}

func validatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if strings.ContainsRune(path, 0) {
		return ErrInvalidPath
	}
	return nil
}

func (c *Converter) Probe(ctx context.Context, inputPath string) (*domain.ProbeResult, error) {
	if err := validatePath(inputPath); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}
	out, err := c.runner.Run(ctx, c.ffprobePath, args...)
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed (exit %d): %w", out.ExitCode, err)
	}

	var probe domain.ProbeResult
	if err := json.Unmarshal([]byte(out.Stdout), &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &probe, nil
}

// Duration returns the media length in seconds.
func (c *Converter) Duration(ctx context.Context, inputPath string) (float64, error) {
	probe, err := c.Probe(ctx, inputPath)
	if err != nil {
		return 0, err
	}
	d := probe.Duration()
	if d <= 0 {
		return 0, fmt.Errorf("no duration reported for %s", inputPath)
	}
	return d, nil
}

// ToWAV converts any input to 16 kHz mono PCM, the format whisper.cpp expects.
func (c *Converter) ToWAV(ctx context.Context, inputPath, outputPath string) error {
	if err := validatePath(inputPath); err != nil {
		return err
	}
	if err := validatePath(outputPath); err != nil {
		return err
	}

	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outputPath,
	}
	out, err := c.runner.Run(ctx, c.ffmpegPath, args...)
	if err != nil {
		return fmt.Errorf("ffmpeg audio conversion failed (exit %d): %s: %w", out.ExitCode, lastLine(out.Stderr), err)
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

var _ port.DurationProber = (*Converter)(nil)

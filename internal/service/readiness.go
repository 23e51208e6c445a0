package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bnema/orator/internal/infrastructure/logger"
	"github.com/bnema/orator/internal/infrastructure/metrics"
	"github.com/bnema/orator/internal/port"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const warmupPrompt = "Hello"

var (
	errModelNotReady = errors.New("model not in engine model list")
	errEmptyWarmup   = errors.New("warm-up produced no output")
)

type ReadinessConfig struct {
	// Attempts bounds how many times the model list is checked.
	Attempts       int
	InitialBackoff time.Duration
	PullPause      time.Duration
	WarmupInterval time.Duration
	WarmupMaxWait  time.Duration
	WarmupTimeout  time.Duration
}

func DefaultReadinessConfig() ReadinessConfig {
	return ReadinessConfig{
		Attempts:       3,
		InitialBackoff: 5 * time.Second,
		PullPause:      3 * time.Second,
		WarmupInterval: 2 * time.Second,
		WarmupMaxWait:  60 * time.Second,
		WarmupTimeout:  10 * time.Second,
	}
}

type ReadinessStep int

const (
	ReadinessProbed ReadinessStep = iota + 1
	ReadinessModelAvailable
)

// ReadinessCoordinator makes sure a generation model is installed and answering
// before analysis runs. Its verdict is advisory; callers carry on either way.
type ReadinessCoordinator struct {
	engine port.TextGenerator
	cfg    ReadinessConfig
	logger *logger.Logger
}

func NewReadinessCoordinator(engine port.TextGenerator, cfg ReadinessConfig, log *logger.Logger) *ReadinessCoordinator {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &ReadinessCoordinator{engine: engine, cfg: cfg, logger: log.Component("readiness")}
}

func (c *ReadinessCoordinator) EnsureReady(ctx context.Context, model string, onStep func(ReadinessStep)) bool {
	log := c.logger.WithField("model", logger.SanitizeForLog(model))
	step := func(s ReadinessStep) {
		if onStep != nil {
			onStep(s)
		}
	}

	if !c.engine.Available(ctx) {
		log.WithField("endpoint", c.engine.Endpoint()).Warn("text engine unreachable, continuing without it")
		metrics.Readiness("unavailable")
		return false
	}
	step(ReadinessProbed)

	if !c.EnsureAvailable(ctx, model) {
		log.Warn("model could not be made available")
		metrics.Readiness("not_ready")
		return false
	}
	step(ReadinessModelAvailable)

	if !c.WarmUp(ctx, model) {
		log.Warn("model did not answer during warm-up")
		metrics.Readiness("not_ready")
		return false
	}

	log.Info("model ready")
	metrics.Readiness("ready")
	return true
}

// EnsureAvailable checks the engine's model list with exponential backoff between
// attempts, pulling the model once after the first miss.
func (c *ReadinessCoordinator) EnsureAvailable(ctx context.Context, model string) bool {
	log := c.logger.WithField("model", logger.SanitizeForLog(model))
	attempt := 0

	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		log.WithFields(logrus.Fields{"attempt": attempt, "of": c.cfg.Attempts}).Debug("checking model list")

		if c.hasModel(ctx, model) {
			return nil
		}
		if attempt == 1 {
			if c.pull(ctx, model) && c.hasModel(ctx, model) {
				return nil
			}
		}
		return errModelNotReady
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.cfg.InitialBackoff << uint(c.cfg.Attempts)
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.Attempts-1)), ctx)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		log.WithError(err).WithField("retry_in", wait).Info("model not available yet")
	})
	return err == nil
}

// WarmUp sends a trivial prompt at a fixed interval until the model answers or
// the warm-up budget runs out.
func (c *ReadinessCoordinator) WarmUp(ctx context.Context, model string) bool {
	log := c.logger.WithField("model", logger.SanitizeForLog(model))
	ctx, cancel := context.WithTimeout(ctx, c.cfg.WarmupMaxWait)
	defer cancel()

	op := func() error {
		callCtx, cancelCall := context.WithTimeout(ctx, c.cfg.WarmupTimeout)
		defer cancelCall()

		out, err := c.engine.Generate(callCtx, model, warmupPrompt)
		switch {
		case errors.Is(err, port.ErrModelNotFound):
			log.Info("model not loaded yet, waiting")
			return err
		case err != nil:
			log.WithError(err).Debug("warm-up request failed")
			return err
		case strings.TrimSpace(out) == "":
			return errEmptyWarmup
		}
		return nil
	}

	return backoff.Retry(op, backoff.WithContext(backoff.NewConstantBackOff(c.cfg.WarmupInterval), ctx)) == nil
}

func (c *ReadinessCoordinator) hasModel(ctx context.Context, model string) bool {
	names, err := c.engine.ListModels(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("listing models failed")
		return false
	}
	return matchModel(names, model) != ""
}

func (c *ReadinessCoordinator) pull(ctx context.Context, model string) bool {
	log := c.logger.WithField("model", logger.SanitizeForLog(model))
	log.Info("model not found, pulling")

	start := time.Now()
	err := c.engine.PullModel(ctx, model)
	metrics.ObserveEngine("text", "pull", port.Outcome(err), time.Since(start))
	if err != nil {
		log.WithError(err).Warn("model pull failed")
		return false
	}

	log.WithField("took", time.Since(start).Round(time.Second)).Info("model pulled")
	timer := time.NewTimer(c.cfg.PullPause)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// matchModel returns the first installed name equal to or starting with model.
func matchModel(names []string, model string) string {
	for _, name := range names {
		if name == model || strings.HasPrefix(name, model) {
			return name
		}
	}
	return ""
}

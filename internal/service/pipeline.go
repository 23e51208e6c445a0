package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/orator/internal/domain"
	"github.com/bnema/orator/internal/infrastructure/logger"
	"github.com/bnema/orator/internal/infrastructure/metrics"
	"github.com/bnema/orator/internal/port"
	"github.com/sirupsen/logrus"
)

type PipelineConfig struct {
	UploadDir       string
	DefaultModel    string
	SummarySentence int
	QuestionCount   int
}

// errJobGone stops a run whose job was deleted or cancelled; it is never persisted.
var errJobGone = errors.New("job no longer active")

type Pipeline struct {
	store     port.JobStore
	prober    port.DurationProber
	stt       port.Transcriber
	analyzer  *Analyzer
	readiness *ReadinessCoordinator
	events    EventPublisher
	cfg       PipelineConfig
	logger    *logger.Logger
}

func NewPipeline(
	store port.JobStore,
	prober port.DurationProber,
	stt port.Transcriber,
	analyzer *Analyzer,
	readiness *ReadinessCoordinator,
	events EventPublisher,
	cfg PipelineConfig,
	log *logger.Logger,
) *Pipeline {
	if cfg.SummarySentence < 1 {
		cfg.SummarySentence = 2
	}
	if cfg.QuestionCount < 1 {
		cfg.QuestionCount = 3
	}
	if events == nil {
		events = nopPublisher{}
	}
	return &Pipeline{
		store:     store,
		prober:    prober,
		stt:       stt,
		analyzer:  analyzer,
		readiness: readiness,
		events:    events,
		cfg:       cfg,
		logger:    log.Component("pipeline"),
	}
}

// Run drives one job from duration extraction to a terminal stage. A failure that
// escapes the stages is written to the job with UpdateError; nothing else marks a
// job as failed.
func (p *Pipeline) Run(ctx context.Context, job *domain.Job) {
	log := p.logger.WithJob(job.ID).WithField("file", logger.SanitizeForLog(job.Filename))
	log.Info("processing started")
	start := time.Now()

	err := p.runStages(ctx, job, log)

	switch {
	case err == nil:
		metrics.JobFinished("complete")
		log.WithField("took", time.Since(start).Round(time.Millisecond)).Info("processing complete")
	case errors.Is(err, errJobGone):
		metrics.JobFinished("cancelled")
		log.Info("job deleted or cancelled, stopping")
	default:
		metrics.JobFinished("error")
		log.WithError(err).Error("processing failed")
		// the job context may already be dead; the failure still has to be recorded
		if uerr := p.store.UpdateError(context.WithoutCancel(ctx), job.ID, err.Error()); uerr != nil &&
			!errors.Is(uerr, domain.ErrNotFound) {
			log.WithError(uerr).Error("recording failure")
		}
		p.publish(ctx, job.ID)
	}
}

func (p *Pipeline) runStages(ctx context.Context, job *domain.Job, log *logrus.Entry) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("unexpected failure: %v", rec)
		}
	}()

	audioPath := filepath.Join(p.cfg.UploadDir, job.Filename)

	if err := p.recordDuration(ctx, job.ID, audioPath, log); err != nil {
		return err
	}

	stageStart := time.Now()
	if err := p.advance(ctx, job, domain.StageDownloadingModel, domain.ProgressModelCheck); err != nil {
		return err
	}
	model := job.ModelOr(p.cfg.DefaultModel)
	var stepErr error
	ready := p.readiness.EnsureReady(ctx, model, func(s ReadinessStep) {
		if stepErr != nil {
			return
		}
		switch s {
		case ReadinessProbed:
			stepErr = p.advance(ctx, job, domain.StageDownloadingModel, domain.ProgressEngineProbed)
		case ReadinessModelAvailable:
			stepErr = p.advance(ctx, job, domain.StageDownloadingModel, domain.ProgressModelReady)
		}
	})
	if stepErr != nil {
		return stepErr
	}
	log.WithFields(logrus.Fields{"model": logger.SanitizeForLog(model), "ready": ready}).Info("readiness checked")
	if err := p.advance(ctx, job, domain.StageDownloadingModel, domain.ProgressModelReady); err != nil {
		return err
	}
	metrics.ObserveStage(string(domain.StageDownloadingModel), time.Since(stageStart))

	stageStart = time.Now()
	transcript, err := p.transcribe(ctx, job, audioPath, log)
	if err != nil {
		return err
	}
	metrics.ObserveStage(string(domain.StageTranscribing), time.Since(stageStart))

	stageStart = time.Now()
	if err := p.advance(ctx, job, domain.StageAnalyzing, domain.ProgressSummarizing); err != nil {
		return err
	}
	summary := p.analyzer.Summarize(ctx, model, transcript, p.cfg.SummarySentence)
	if err := p.advance(ctx, job, domain.StageAnalyzing, domain.ProgressQuestioning); err != nil {
		return err
	}
	questions := p.analyzer.GenerateQuestions(ctx, model, transcript, p.cfg.QuestionCount)
	if err := p.checkActive(ctx); err != nil {
		return err
	}
	metrics.ObserveStage(string(domain.StageAnalyzing), time.Since(stageStart))

	if err := p.store.UpdateAnalysis(ctx, job.ID, transcript, summary, FormatQuestions(questions)); err != nil {
		return p.storeErr(err)
	}
	p.publish(ctx, job.ID)
	return nil
}

func (p *Pipeline) recordDuration(ctx context.Context, id int64, audioPath string, log *logrus.Entry) error {
	seconds, err := p.prober.Duration(ctx, audioPath)
	if err != nil {
		log.WithError(err).Warn("could not determine audio duration")
		seconds = 0
	}
	if err := p.checkActive(ctx); err != nil {
		return err
	}
	if err := p.store.UpdateDuration(ctx, id, seconds); err != nil {
		return p.storeErr(err)
	}
	return nil
}

// transcribe always yields text: either the transcript or a tagged failure marker.
// Only store failures and cancellation are returned as errors.
func (p *Pipeline) transcribe(ctx context.Context, job *domain.Job, audioPath string, log *logrus.Entry) (string, error) {
	if err := p.advance(ctx, job, domain.StageTranscribing, domain.ProgressTranscribing); err != nil {
		return "", err
	}

	name := filepath.Base(audioPath)
	info, err := os.Stat(audioPath)
	switch {
	case err != nil:
		log.WithError(err).Warn("audio file missing")
		return domain.FileNotFoundTag(name), nil
	case info.Size() == 0:
		log.Warn("audio file is empty")
		return domain.EmptyFileTag(name), nil
	}

	if err := p.advance(ctx, job, domain.StageTranscribing, domain.ProgressInputValidated); err != nil {
		return "", err
	}

	start := time.Now()
	text, err := p.stt.Transcribe(ctx, audioPath)
	metrics.ObserveEngine("speech", "transcribe", port.Outcome(err), time.Since(start))
	if cerr := p.checkActive(ctx); cerr != nil {
		return "", cerr
	}

	var transcript string
	switch {
	case errors.Is(err, port.ErrEngineUnavailable):
		log.WithError(err).Warn("speech engine unavailable")
		transcript = domain.EngineUnavailableTag(name)
	case err != nil:
		log.WithError(err).Warn("transcription failed")
		transcript = domain.TranscriptionFailedTag(err.Error())
	case domain.WordCount(text) == 0:
		transcript = domain.NoSpeechTag(name)
	default:
		transcript = text
		log.WithField("words", domain.WordCount(text)).Info("transcription done")
	}

	if err := p.advance(ctx, job, domain.StageTranscribing, domain.ProgressTranscribed); err != nil {
		return "", err
	}
	return transcript, nil
}

func (p *Pipeline) advance(ctx context.Context, job *domain.Job, stage domain.Stage, pct int) error {
	if err := p.checkActive(ctx); err != nil {
		return err
	}
	if err := p.store.UpdateProgress(ctx, job.ID, stage, pct); err != nil {
		return p.storeErr(err)
	}
	p.events.Publish(job.ID, Event{Type: EventProgress, Progress: domain.Progress{
		ID:                 job.ID,
		ProcessingStage:    stage,
		ProgressPercentage: pct,
		Filename:           job.Filename,
	}})
	return nil
}

func (p *Pipeline) publish(ctx context.Context, id int64) {
	job, err := p.store.Get(context.WithoutCancel(ctx), id)
	if err != nil {
		return
	}
	p.events.Publish(id, Event{Type: EventProgress, Progress: job.Progress()})
}

func (p *Pipeline) checkActive(ctx context.Context) error {
	if ctx.Err() != nil {
		return errJobGone
	}
	return nil
}

// storeErr treats writes to a deleted or already finished job as the end of the run.
func (p *Pipeline) storeErr(err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrJobTerminal) ||
		errors.Is(err, context.Canceled) {
		return errJobGone
	}
	return err
}

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bnema/orator/internal/adapter/catalog"
	"github.com/bnema/orator/internal/domain"
	"github.com/bnema/orator/internal/infrastructure/logger"
	"github.com/bnema/orator/internal/port"
)

var (
	ErrNoTranscript  = errors.New("job has no usable transcript")
	ErrEmptyQuestion = errors.New("question is empty")
)

const (
	interruptedMessage  = "processing interrupted by restart"
	notScheduledMessage = "processing not started: server is shutting down"

	// availabilityTTL bounds how long a Status probe result is reused.
	availabilityTTL = 10 * time.Second
)

type JobProcessor interface {
	Run(ctx context.Context, job *domain.Job)
}

type StatusReport struct {
	Status         string `json:"status"`
	LLMAvailable   bool   `json:"llm_available"`
	EngineEndpoint string `json:"engine_endpoint"`
}

type ModelsReport struct {
	Models       []domain.Model `json:"models"`
	LLMAvailable bool           `json:"llm_available"`
}

type JobServiceConfig struct {
	UploadDir    string
	DefaultModel string
	Catalog      []domain.Model
}

// JobService is the entry point for everything the HTTP layer does with jobs.
type JobService struct {
	store     port.JobStore
	runner    *TaskRunner
	processor JobProcessor
	engine    port.TextGenerator
	analyzer  *Analyzer
	events    EventPublisher
	cfg       JobServiceConfig
	logger    *logger.Logger

	probeMu   sync.Mutex
	probedAt  time.Time
	available bool
	now       func() time.Time
}

func NewJobService(
	store port.JobStore,
	runner *TaskRunner,
	processor JobProcessor,
	engine port.TextGenerator,
	analyzer *Analyzer,
	events EventPublisher,
	cfg JobServiceConfig,
	log *logger.Logger,
) *JobService {
	if len(cfg.Catalog) == 0 {
		cfg.Catalog = catalog.Minimal(cfg.DefaultModel)
	}
	if events == nil {
		events = nopPublisher{}
	}
	return &JobService{
		store:     store,
		runner:    runner,
		processor: processor,
		engine:    engine,
		analyzer:  analyzer,
		events:    events,
		cfg:       cfg,
		logger:    log.Component("jobs"),
		now:       time.Now,
	}
}

// Upload records a new job for the file at tmpPath, moves the file under its
// de-duplicated name and schedules processing.
func (s *JobService) Upload(ctx context.Context, filename, tmpPath, model string) (*domain.Job, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("stat upload: %w", err)
	}
	size := info.Size()

	var modelPtr *string
	if m := strings.TrimSpace(model); m != "" {
		modelPtr = &m
	}

	job, err := s.store.Create(ctx, filename, &size, modelPtr)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := moveFile(tmpPath, s.blobPath(job)); err != nil {
		if derr := s.store.Delete(context.WithoutCancel(ctx), job.ID); derr != nil {
			s.logger.WithJob(job.ID).WithError(derr).Error("rolling back job record")
		}
		return nil, fmt.Errorf("save upload: %w", err)
	}

	s.logger.WithJob(job.ID).WithField("file", logger.SanitizeForLog(job.Filename)).
		WithField("size", domain.FormatSize(size)).Info("upload stored")
	return s.schedule(ctx, job)
}

// schedule hands the job to the runner. A refused job is failed on the spot.
func (s *JobService) schedule(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	if s.runner.Submit(job.ID, func(ctx context.Context) { s.processor.Run(ctx, job) }) {
		return job, nil
	}

	s.logger.WithJob(job.ID).Warn("job not scheduled, runner is stopping")
	ctx = context.WithoutCancel(ctx)
	if err := s.store.UpdateError(ctx, job.ID, notScheduledMessage); err != nil {
		return nil, fmt.Errorf("fail unscheduled job: %w", err)
	}
	return s.store.Get(ctx, job.ID)
}

func (s *JobService) Get(ctx context.Context, id int64) (*domain.Job, error) {
	return s.store.Get(ctx, id)
}

func (s *JobService) List(ctx context.Context) ([]*domain.Job, error) {
	return s.store.List(ctx)
}

func (s *JobService) Progress(ctx context.Context, id int64) (domain.Progress, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Progress{}, err
	}
	return job.Progress(), nil
}

// AudioPath returns the job and the location of its stored upload.
func (s *JobService) AudioPath(ctx context.Context, id int64) (*domain.Job, string, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return job, s.blobPath(job), nil
}

// Delete signals the job's task to stop, removes the upload and then the record.
func (s *JobService) Delete(ctx context.Context, id int64) error {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	s.runner.Cancel(id)

	if err := os.Remove(s.blobPath(job)); err != nil && !os.IsNotExist(err) {
		s.logger.WithJob(id).WithError(err).Warn("removing upload")
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.events.Publish(id, Event{Type: EventDeleted, Progress: job.Progress()})
	s.logger.WithJob(id).Info("job deleted")
	return nil
}

func (s *JobService) Ask(ctx context.Context, id int64, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	job, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if job.Transcription == nil || strings.TrimSpace(*job.Transcription) == "" || domain.IsTagged(*job.Transcription) {
		return "", ErrNoTranscript
	}

	return s.analyzer.Answer(ctx, job.ModelOr(s.cfg.DefaultModel), *job.Transcription, question), nil
}

// Status reuses the last engine probe for availabilityTTL.
func (s *JobService) Status(ctx context.Context) StatusReport {
	return StatusReport{
		Status:         "running",
		LLMAvailable:   s.engineAvailable(ctx),
		EngineEndpoint: s.engine.Endpoint(),
	}
}

func (s *JobService) engineAvailable(ctx context.Context) bool {
	s.probeMu.Lock()
	defer s.probeMu.Unlock()

	if !s.probedAt.IsZero() && s.now().Sub(s.probedAt) < availabilityTTL {
		return s.available
	}
	s.available = s.engine.Available(ctx)
	s.probedAt = s.now()
	return s.available
}

// Models never fails: engine trouble degrades to the default model alone.
func (s *JobService) Models(ctx context.Context) ModelsReport {
	if !s.engine.Available(ctx) {
		return ModelsReport{Models: catalog.Minimal(s.cfg.DefaultModel), LLMAvailable: false}
	}

	installed, err := s.engine.ListModels(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("listing installed models")
		return ModelsReport{Models: catalog.Minimal(s.cfg.DefaultModel), LLMAvailable: true}
	}

	models := cloneModels(s.cfg.Catalog)
	known := make(map[string]bool, len(installed))
	for i := range models {
		if name := matchModel(installed, models[i].Name); name != "" {
			models[i].Installed = true
			known[name] = true
		}
	}
	for _, name := range installed {
		if !known[name] {
			models = append(models, domain.Model{Name: name, DisplayName: name, Installed: true})
		}
	}
	return ModelsReport{Models: models, LLMAvailable: true}
}

// RecoverInterrupted fails jobs a previous process left mid-pipeline.
func (s *JobService) RecoverInterrupted(ctx context.Context) (int, error) {
	jobs, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, job := range jobs {
		if job.ProcessingStage.Terminal() {
			continue
		}
		if err := s.store.UpdateError(ctx, job.ID, interruptedMessage); err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrJobTerminal) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *JobService) blobPath(job *domain.Job) string {
	return filepath.Join(s.cfg.UploadDir, job.Filename)
}

func cloneModels(models []domain.Model) []domain.Model {
	return append([]domain.Model(nil), models...)
}

// moveFile renames src to dst, copying when they live on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

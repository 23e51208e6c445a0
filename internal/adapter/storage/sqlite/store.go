package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/bnema/orator/internal/domain"
	"github.com/bnema/orator/internal/port"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

const jobColumns = `id, filename, uploaded_at, file_size, audio_duration, selected_model,
	processing_stage, progress_percentage, transcription, summary, questions, word_count`

const notTerminal = `processing_stage NOT IN ('complete', 'error')`

type Store struct {
	db *sql.DB
	// serializes filename de-duplication with the insert that follows it
	createMu sync.Mutex
}

var hookOnce sync.Once

func registerHook() {
	hookOnce.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			pragmas := []string{
				"PRAGMA journal_mode = WAL",
				"PRAGMA busy_timeout = 5000",
				"PRAGMA synchronous = NORMAL",
				"PRAGMA cache_size = -8000", // 8MB
			}
			for _, p := range pragmas {
				if _, err := conn.ExecContext(context.Background(), p, nil); err != nil {
					return fmt.Errorf("execute %s: %w", p, err)
				}
			}
			return nil
		})
	})
}

func NewStore(dataDir string) (*Store, error) {
	registerHook()

	db, err := sql.Open("sqlite", filepath.Join(dataDir, "orator.db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection for SQLite (WAL allows concurrent reads but only one writer)
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, filename string, size *int64, model *string) (*domain.Job, error) {
	s.createMu.Lock()
	defer s.createMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	unique, err := domain.UniqueFilename(filename, func(name string) (bool, error) {
		var exists bool
		err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM jobs WHERE filename = ?)`, name).Scan(&exists)
		return exists, err
	})
	if err != nil {
		return nil, fmt.Errorf("dedupe filename: %w", err)
	}

	job := domain.NewJob(unique, size, model)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO jobs (filename, uploaded_at, file_size, selected_model, processing_stage, progress_percentage)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		job.Filename,
		job.UploadedAt.Format(time.RFC3339Nano),
		nullInt(job.FileSize),
		nullString(job.SelectedModel),
		string(job.ProcessingStage),
		job.ProgressPercentage,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	if job.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("read job id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create: %w", err)
	}
	return job, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func (s *Store) List(ctx context.Context) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]*domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *Store) UpdateProgress(ctx context.Context, id int64, stage domain.Stage, pct int) error {
	if stage.Terminal() || !stage.Accepts(pct) {
		return fmt.Errorf("invalid progress %d for stage %q", pct, stage)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET processing_stage = ?, progress_percentage = ?
		 WHERE id = ? AND `+notTerminal+` AND progress_percentage <= ?`,
		string(stage), pct, id, pct)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return s.checkUpdated(ctx, res, id)
}

func (s *Store) UpdateDuration(ctx context.Context, id int64, seconds float64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET audio_duration = ? WHERE id = ?`, seconds, id)
	if err != nil {
		return fmt.Errorf("update duration: %w", err)
	}
	return s.checkUpdated(ctx, res, id)
}

func (s *Store) UpdateAnalysis(ctx context.Context, id int64, transcript, summary, questions string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET transcription = ?, summary = ?, questions = ?, word_count = ?,
		 processing_stage = ?, progress_percentage = ?
		 WHERE id = ? AND `+notTerminal,
		transcript, summary, questions, domain.WordCount(transcript),
		string(domain.StageComplete), domain.ProgressComplete, id)
	if err != nil {
		return fmt.Errorf("update analysis: %w", err)
	}
	return s.checkUpdated(ctx, res, id)
}

func (s *Store) UpdateError(ctx context.Context, id int64, message string) error {
	failed := domain.Job{}
	failed.Fail(message)
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET transcription = ?, summary = ?, questions = ?, word_count = 0, processing_stage = ?
		 WHERE id = ? AND `+notTerminal,
		*failed.Transcription, *failed.Summary, *failed.Questions, string(domain.StageError), id)
	if err != nil {
		return fmt.Errorf("update error: %w", err)
	}
	return s.checkUpdated(ctx, res, id)
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// checkUpdated explains why a guarded update touched no rows.
func (s *Store) checkUpdated(ctx context.Context, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var stage string
	err = s.db.QueryRowContext(ctx, `SELECT processing_stage FROM jobs WHERE id = ?`, id).Scan(&stage)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	if domain.Stage(stage).Terminal() {
		return domain.ErrJobTerminal
	}
	return domain.ErrProgressRegression
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.Job, error) {
	var (
		job        domain.Job
		uploadedAt string
		stage      string
		size       sql.NullInt64
		duration   sql.NullFloat64
		model      sql.NullString
		transcript sql.NullString
		summary    sql.NullString
		questions  sql.NullString
	)
	err := row.Scan(&job.ID, &job.Filename, &uploadedAt, &size, &duration, &model,
		&stage, &job.ProgressPercentage, &transcript, &summary, &questions, &job.WordCount)
	if err != nil {
		return nil, err
	}

	if job.UploadedAt, err = time.Parse(time.RFC3339Nano, uploadedAt); err != nil {
		return nil, fmt.Errorf("parse uploaded_at for job %d: %w", job.ID, err)
	}
	job.ProcessingStage = domain.Stage(stage)
	if size.Valid {
		job.FileSize = &size.Int64
	}
	if duration.Valid {
		job.AudioDuration = &duration.Float64
	}
	job.SelectedModel = stringPtr(model)
	job.Transcription = stringPtr(transcript)
	job.Summary = stringPtr(summary)
	job.Questions = stringPtr(questions)
	return &job, nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

var _ port.JobStore = (*Store)(nil)

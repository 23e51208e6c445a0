package port

import (
	"context"

	"github.com/bnema/orator/internal/domain"
)

// JobStore persists job records. Update methods return domain.ErrNotFound for unknown
// ids and domain.ErrJobTerminal for records already in a terminal stage.
type JobStore interface {
	Create(ctx context.Context, filename string, size *int64, model *string) (*domain.Job, error)
	Get(ctx context.Context, id int64) (*domain.Job, error)
	List(ctx context.Context) ([]*domain.Job, error)
	UpdateProgress(ctx context.Context, id int64, stage domain.Stage, pct int) error
	UpdateDuration(ctx context.Context, id int64, seconds float64) error
	UpdateAnalysis(ctx context.Context, id int64, transcript, summary, questions string) error
	UpdateError(ctx context.Context, id int64, message string) error
	Delete(ctx context.Context, id int64) error
	Close() error
}

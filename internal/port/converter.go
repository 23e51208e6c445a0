package port

import "context"

type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

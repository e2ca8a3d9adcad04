package ports

import (
	"context"
	"errors"

	"github.com/aescanero/factllm/pkg/domain"
)

// ErrRunNotFound is returned by RunStorage when no run has the given id.
var ErrRunNotFound = errors.New("run not found")

// RunStorage persists asynchronous runs
type RunStorage interface {
	SaveRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	DeleteRun(ctx context.Context, runID string) error
	ListRuns(ctx context.Context) ([]*domain.Run, error)
}

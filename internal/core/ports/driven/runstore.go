package driven

import (
	"context"

	"github.com/strata-qda/strata-cli/internal/core/domain"
)

// RunStore persists pipeline run history for auditing and the status
// command. Optional: with a nil RunStore the pipeline still executes.
type RunStore interface {
	// CreateRun records the start of a pipeline run.
	CreateRun(ctx context.Context, run domain.Run) error

	// FinishRun records the outcome of a run.
	FinishRun(ctx context.Context, run domain.Run) error

	// SaveStageRun inserts or updates one stage's execution record.
	SaveStageRun(ctx context.Context, stageRun domain.StageRun) error

	// GetRun returns a run by ID. Returns domain.ErrNotFound if absent.
	GetRun(ctx context.Context, id string) (*domain.Run, error)

	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]domain.Run, error)

	// ListStageRuns returns the stage records of one run in stage order.
	ListStageRuns(ctx context.Context, runID string) ([]domain.StageRun, error)
}

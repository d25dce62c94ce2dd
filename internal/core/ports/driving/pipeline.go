package driving

import (
	"context"

	"github.com/strata-qda/strata-cli/internal/core/domain"
)

// RunOptions configures one pipeline execution.
type RunOptions struct {
	// InputPath is the transcript file, recorded in run history.
	InputPath string

	// Records are the ingested transcript segments.
	Records []domain.Record

	// Resume reuses existing stage artifacts instead of re-invoking the
	// model for stages that already completed.
	Resume bool
}

// RunProgress is a point-in-time snapshot of an active run, polled by
// the CLI while the pipeline executes.
type RunProgress struct {
	// RunID identifies the active run.
	RunID string

	// Stage is the stage currently executing.
	Stage domain.Stage

	// RecordsProcessed counts records completed within the current stage.
	RecordsProcessed int

	// ErrorCount counts per-record failures within the current stage.
	ErrorCount int

	// Running is false once the pipeline has finished.
	Running bool
}

// PipelineRunner executes the five coding stages in order.
type PipelineRunner interface {
	// Run executes the pipeline and returns the results of all stages
	// that ran or were resumed, in stage order. Each stage's result is
	// persisted before the next stage starts.
	Run(ctx context.Context, opts RunOptions) ([]*domain.StageResult, error)

	// Progress returns the status of the active run, or nil when idle.
	Progress() *RunProgress
}

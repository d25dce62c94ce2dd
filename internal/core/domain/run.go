package domain

import "time"

// RunStatus is the lifecycle state of a pipeline run or stage run.
type RunStatus string

// Run lifecycle states.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusSkipped   RunStatus = "skipped" // stage satisfied from a prior run's artifact
)

// IsValid returns true if the run status is recognised.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed, RunStatusSkipped:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (s RunStatus) String() string {
	return string(s)
}

// Run is one invocation of the pipeline, kept for the status command and
// for auditing which artifacts belong to which execution.
type Run struct {
	// ID is the unique run identifier.
	ID string

	// InputPath is the transcript the run ingested.
	InputPath string

	// OutputDir is the artifact root the run wrote to.
	OutputDir string

	// RecordCount is the number of records ingested.
	RecordCount int

	// Status is the run lifecycle state.
	Status RunStatus

	// Error holds the failure message for failed runs.
	Error string

	StartedAt   time.Time
	CompletedAt time.Time
}

// StageRun is the execution record of one stage within a run.
type StageRun struct {
	// RunID links to the owning Run.
	RunID string

	// Stage is the pipeline stage.
	Stage Stage

	// Model is the model identifier the stage used.
	Model string

	// RecordsIn, RecordsOut and ErrorCount mirror the stage result's meta.
	RecordsIn  int
	RecordsOut int
	ErrorCount int

	// Status is the stage lifecycle state.
	Status RunStatus

	StartedAt   time.Time
	CompletedAt time.Time
}

package driven

import (
	"context"

	"github.com/strata-qda/strata-cli/internal/core/domain"
)

// ArtifactStore persists stage results. The canonical stage artifact is
// the source of truth for resume: a stage whose artifact exists is not
// re-run. Implementations also write the human-facing side files (CSV
// tables, storyline text, raw model dumps) next to it.
type ArtifactStore interface {
	// SaveStageResult writes the complete result for a stage, replacing
	// any previous artifact for that stage.
	SaveStageResult(ctx context.Context, result *domain.StageResult) error

	// LoadStageResult reads a previously persisted stage result.
	// Returns domain.ErrNotFound if the stage has no artifact.
	LoadStageResult(ctx context.Context, stage domain.Stage) (*domain.StageResult, error)

	// HasStage reports whether a stage artifact exists.
	HasStage(ctx context.Context, stage domain.Stage) (bool, error)
}

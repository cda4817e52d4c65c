package store

import (
	"context"

	"github.com/focuskeep/focuskeep/pkg/models"
)

// RunPatch is a partial update to a migration run record. Nil fields are
// left unchanged. ProcessedUsersDelta is additive so that overlapping
// invocations sharing a run identifier can only ever move progress forward.
type RunPatch struct {
	Status              *models.RunStatus
	Cursor              *int
	ProcessedUsersDelta int
	MismatchedUsers     *int
	Notes               *string
	Finished            bool
}

// RunLedger is the durable record of backfill and parity runs. Only the
// relational backend implements it: run state has to survive restarts of
// whatever process drives the migration, and the relational store is the
// one with real transactional updates.
type RunLedger interface {
	// EnsureRun creates the run record if it does not exist yet, with
	// status "running" and the current time. Calling it for an existing
	// run is a no-op, which is what makes resuming a run with the same
	// identifier safe.
	EnsureRun(ctx context.Context, runID string) error

	// GetRun returns one run, nil when unknown.
	GetRun(ctx context.Context, runID string) (*models.MigrationRun, error)

	// LatestRun returns the most recently started run, nil when the ledger
	// is empty.
	LatestRun(ctx context.Context) (*models.MigrationRun, error)

	// UpdateRun applies a patch to an existing run.
	UpdateRun(ctx context.Context, runID string, patch RunPatch) error
}

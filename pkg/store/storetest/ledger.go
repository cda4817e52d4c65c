package storetest

import (
	"context"
	"sync"

	"github.com/focuskeep/focuskeep/pkg/models"
	"github.com/focuskeep/focuskeep/pkg/store"
)

// MemoryLedger is an in-memory [store.RunLedger] for tests of the migration
// machinery. Semantics follow the relational implementation: EnsureRun is
// insert-if-absent and ProcessedUsers only moves by deltas.
type MemoryLedger struct {
	mu   sync.Mutex
	runs map[string]*models.MigrationRun
	// order of first EnsureRun calls, newest last
	order []string
}

var _ store.RunLedger = (*MemoryLedger)(nil)

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{runs: make(map[string]*models.MigrationRun)}
}

func (l *MemoryLedger) EnsureRun(ctx context.Context, runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.runs[runID]; ok {
		return nil
	}
	l.runs[runID] = &models.MigrationRun{
		RunID:     runID,
		Status:    models.RunStatusRunning,
		StartedAt: models.NowMs(),
	}
	l.order = append(l.order, runID)
	return nil
}

func (l *MemoryLedger) GetRun(ctx context.Context, runID string) (*models.MigrationRun, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	run, ok := l.runs[runID]
	if !ok {
		return nil, nil
	}
	copied := *run
	return &copied, nil
}

func (l *MemoryLedger) LatestRun(ctx context.Context) (*models.MigrationRun, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.order) == 0 {
		return nil, nil
	}
	copied := *l.runs[l.order[len(l.order)-1]]
	return &copied, nil
}

func (l *MemoryLedger) UpdateRun(ctx context.Context, runID string, patch store.RunPatch) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	run, ok := l.runs[runID]
	if !ok {
		return nil
	}
	if patch.Status != nil {
		run.Status = *patch.Status
	}
	if patch.Cursor != nil {
		run.Cursor = *patch.Cursor
	}
	run.ProcessedUsers += patch.ProcessedUsersDelta
	if patch.MismatchedUsers != nil {
		run.MismatchedUsers = *patch.MismatchedUsers
	}
	if patch.Notes != nil {
		run.Notes = *patch.Notes
	}
	if patch.Finished {
		now := models.NowMs()
		run.FinishedAt = &now
	}
	return nil
}

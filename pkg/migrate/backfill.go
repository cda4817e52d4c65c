// Package migrate copies user data from the legacy key-blob store into the
// relational store and verifies the two agree.
//
// Both jobs are externally driven: each invocation processes one bounded
// batch, records progress in the run ledger, and returns. Resumption works
// by re-invoking with the same run identifier — the ledger's processed count
// is the offset into the deterministically sorted user list, so interrupted
// runs pick up exactly where they left off.
package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/focuskeep/focuskeep/pkg/models"
	"github.com/focuskeep/focuskeep/pkg/store"
)

// Source is the backend being migrated away from. It must be able to
// enumerate its users, which only the key-blob backend can.
type Source interface {
	store.Backend
	store.UserScanner
}

const (
	defaultBatchSize = 50
	maxBatchSize     = 500
)

// UserFailure records one user whose copy failed inside a batch.
type UserFailure struct {
	User  string `json:"user"`
	Error string `json:"error"`
}

// Result summarizes one backfill invocation. ProcessedUsers counts only this
// invocation's successful copies; the ledger holds the running total.
type Result struct {
	RunID          string        `json:"runId"`
	ProcessedUsers int           `json:"processedUsers"`
	TotalUsers     int           `json:"totalUsers"`
	FailedUsers    []UserFailure `json:"failedUsers"`
	ScanComplete   bool          `json:"scanComplete"`
}

// BatchOptions controls one batch invocation. A zero value starts a fresh
// run with the default batch size.
type BatchOptions struct {
	// RunID resumes an existing run, or names a new one. Empty means a new
	// run with a generated identifier.
	RunID string
	// BatchSize is clamped to [1, 500]; zero means 50.
	BatchSize int
}

// Backfiller copies users from the legacy backend to the relational one.
type Backfiller struct {
	source Source
	target store.Backend
	ledger store.RunLedger
	log    zerolog.Logger
}

func NewBackfiller(source Source, target store.Backend, ledger store.RunLedger, log zerolog.Logger) *Backfiller {
	return &Backfiller{source: source, target: target, ledger: ledger, log: log}
}

// CopyUser copies one user's full entity set to the target via
// full-replacement writes, so re-copying a user is idempotent. A legacy
// timer with no focus state is absorbed into a synthesized FocusState and
// retired from the source.
func (b *Backfiller) CopyUser(ctx context.Context, user string) error {
	todos, err := b.source.GetTodos(ctx, user)
	if err != nil {
		return fmt.Errorf("read todos for %s: %w", user, err)
	}
	projects, err := b.source.GetProjects(ctx, user)
	if err != nil {
		return fmt.Errorf("read projects for %s: %w", user, err)
	}
	sessions, err := b.source.GetSessions(ctx, user)
	if err != nil {
		return fmt.Errorf("read sessions for %s: %w", user, err)
	}
	pomodoros, err := b.source.GetPomodoroLogs(ctx, user)
	if err != nil {
		return fmt.Errorf("read pomodoro logs for %s: %w", user, err)
	}
	settings, err := b.source.GetSettings(ctx, user)
	if err != nil {
		return fmt.Errorf("read settings for %s: %w", user, err)
	}
	focus, err := b.source.GetFocus(ctx, user)
	if err != nil {
		return fmt.Errorf("read focus for %s: %w", user, err)
	}
	timer, err := b.source.GetTimer(ctx, user)
	if err != nil {
		return fmt.Errorf("read timer for %s: %w", user, err)
	}

	migrated := models.MigrateLegacyTimer(focus, timer)

	if err := b.target.SaveTodos(ctx, user, todos); err != nil {
		return fmt.Errorf("write todos for %s: %w", user, err)
	}
	if err := b.target.SaveProjects(ctx, user, projects); err != nil {
		return fmt.Errorf("write projects for %s: %w", user, err)
	}
	if err := b.target.SaveSessions(ctx, user, sessions); err != nil {
		return fmt.Errorf("write sessions for %s: %w", user, err)
	}
	if err := b.target.ReplacePomodoroLogs(ctx, user, pomodoros); err != nil {
		return fmt.Errorf("write pomodoro logs for %s: %w", user, err)
	}
	if err := b.target.SaveSettings(ctx, user, settings); err != nil {
		return fmt.Errorf("write settings for %s: %w", user, err)
	}
	if err := b.target.SaveFocus(ctx, user, migrated); err != nil {
		return fmt.Errorf("write focus for %s: %w", user, err)
	}

	// Retire an absorbed legacy timer so the source converges on the new
	// model too. Done last: the copy above already succeeded, and redoing
	// it after a crash here produces the same state.
	if focus == nil && timer != nil {
		if err := b.source.SaveFocus(ctx, user, migrated); err != nil {
			return fmt.Errorf("migrate legacy timer for %s: %w", user, err)
		}
		if err := b.source.SaveTimer(ctx, user, nil); err != nil {
			return fmt.Errorf("clear legacy timer for %s: %w", user, err)
		}
	}
	return nil
}

// RunSingle synchronously copies exactly one user under its own ledger
// entry. Used for operator-triggered spot fixes.
func (b *Backfiller) RunSingle(ctx context.Context, user string) (*Result, error) {
	runID := fmt.Sprintf("single-%s-%d", user, models.NowMs())
	if err := b.ledger.EnsureRun(ctx, runID); err != nil {
		return nil, fmt.Errorf("ensure run %s: %w", runID, err)
	}

	if err := b.CopyUser(ctx, user); err != nil {
		status := models.RunStatusFailed
		total := 1
		notes := fmt.Sprintf("Failed: %s: %v", user, err)
		_ = b.ledger.UpdateRun(ctx, runID, store.RunPatch{
			Status:   &status,
			Cursor:   &total,
			Notes:    &notes,
			Finished: true,
		})
		return nil, fmt.Errorf("backfill user %s: %w", user, err)
	}

	status := models.RunStatusCompleted
	total := 1
	notes := "Single user: " + user
	if err := b.ledger.UpdateRun(ctx, runID, store.RunPatch{
		Status:              &status,
		Cursor:              &total,
		ProcessedUsersDelta: 1,
		Notes:               &notes,
		Finished:            true,
	}); err != nil {
		return nil, fmt.Errorf("update run %s: %w", runID, err)
	}
	return &Result{RunID: runID, ProcessedUsers: 1, TotalUsers: 1, ScanComplete: true}, nil
}

// RunBatch copies the next batch of users for a run. The offset into the
// sorted user list is the run's processed count, so invoking repeatedly with
// the same run identifier walks the whole user base exactly once. Failed
// users are not counted as processed and stay eligible for a later batch.
func (b *Backfiller) RunBatch(ctx context.Context, opts BatchOptions) (*Result, error) {
	runID := strings.TrimSpace(opts.RunID)
	if runID == "" {
		runID = models.NewID()
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}

	if err := b.ledger.EnsureRun(ctx, runID); err != nil {
		return nil, fmt.Errorf("ensure run %s: %w", runID, err)
	}
	offset := 0
	if run, err := b.ledger.GetRun(ctx, runID); err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	} else if run != nil {
		offset = run.ProcessedUsers
	}

	allUsers, err := b.source.ScanUsers(ctx)
	if err != nil {
		status := models.RunStatusFailed
		notes := fmt.Sprintf("KV scan failed: %v", err)
		_ = b.ledger.UpdateRun(ctx, runID, store.RunPatch{
			Status:   &status,
			Notes:    &notes,
			Finished: true,
		})
		return nil, fmt.Errorf("scan users: %w", err)
	}

	batch := sliceBatch(allUsers, offset, batchSize)
	scanComplete := offset+len(batch) >= len(allUsers)

	var failed []UserFailure
	processed := 0
	for _, user := range batch {
		if err := b.CopyUser(ctx, user); err != nil {
			b.log.Error().
				Str("event", "backfill.user_failed").
				Str("run_id", runID).
				Str("user", user).
				Err(err).
				Msg("user backfill failed, batch continues")
			failed = append(failed, UserFailure{User: user, Error: err.Error()})
			continue
		}
		processed++
	}

	status := models.RunStatusRunning
	switch {
	case len(failed) > 0:
		status = models.RunStatusFailed
	case scanComplete:
		status = models.RunStatusCompleted
	}
	total := len(allUsers)
	patch := store.RunPatch{
		Status:              &status,
		Cursor:              &total,
		ProcessedUsersDelta: processed,
		Finished:            scanComplete,
	}
	if len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for _, f := range failed {
			names = append(names, f.User)
		}
		notes := "Failed users: " + strings.Join(names, ", ")
		patch.Notes = &notes
	}
	if err := b.ledger.UpdateRun(ctx, runID, patch); err != nil {
		return nil, fmt.Errorf("update run %s: %w", runID, err)
	}

	return &Result{
		RunID:          runID,
		ProcessedUsers: processed,
		TotalUsers:     total,
		FailedUsers:    failed,
		ScanComplete:   scanComplete,
	}, nil
}

func sliceBatch(users []string, offset, size int) []string {
	if offset >= len(users) {
		return nil
	}
	end := offset + size
	if end > len(users) {
		end = len(users)
	}
	return users[offset:end]
}

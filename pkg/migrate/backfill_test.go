package migrate_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focuskeep/focuskeep/pkg/migrate"
	"github.com/focuskeep/focuskeep/pkg/models"
	"github.com/focuskeep/focuskeep/pkg/store"
	"github.com/focuskeep/focuskeep/pkg/store/kvblob"
	"github.com/focuskeep/focuskeep/pkg/store/storetest"
)

// Source and target both run the key-blob adapter over separate in-memory
// hosts; the copy path only depends on the Backend contract, so what matters
// is that the two stores are distinct.
type backfillFixture struct {
	source *kvblob.Store
	target *kvblob.Store
	ledger *storetest.MemoryLedger
}

func newBackfillFixture(t *testing.T) (*migrate.Backfiller, *backfillFixture) {
	t.Helper()
	f := &backfillFixture{
		source: kvblob.New(storetest.NewMemoryKV()),
		target: kvblob.New(storetest.NewMemoryKV()),
		ledger: storetest.NewMemoryLedger(),
	}
	return migrate.NewBackfiller(f.source, f.target, f.ledger, zerolog.Nop()), f
}

func seedUser(t *testing.T, s *kvblob.Store, user string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateTodo(ctx, user, &models.Todo{Title: "task for " + user}))
	require.NoError(t, s.SaveSettings(ctx, user, models.UserSettings{
		WorkMs: 1, ShortBreakMs: 2, LongBreakMs: 3, Theme: models.ThemePaper,
	}))
}

func TestCopyUserRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, f := newBackfillFixture(t)

	seedUser(t, f.source, "alice@example.com")
	require.NoError(t, f.source.FocusTask(ctx, "alice@example.com", "t1"))
	require.NoError(t, f.source.AddPomodoroLog(ctx, "alice@example.com", &models.PomodoroLog{
		TaskID: "t1", Type: models.CycleWork, Duration: 1500000,
	}))

	require.NoError(t, b.CopyUser(ctx, "alice@example.com"))

	checker := migrate.NewParityChecker(f.source, f.target, f.ledger)
	result, err := checker.CheckUser(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, result.Matches, "mismatches: %v", result.Mismatches)
	assert.Equal(t, 1, result.Counts.Todos)
	assert.Equal(t, 1, result.Counts.Sessions)
	assert.Equal(t, 1, result.Counts.PomodoroLogs)
}

func TestCopyUserIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b, f := newBackfillFixture(t)
	seedUser(t, f.source, "alice@example.com")

	require.NoError(t, b.CopyUser(ctx, "alice@example.com"))
	require.NoError(t, b.CopyUser(ctx, "alice@example.com"))

	todos, err := f.target.GetTodos(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, todos, 1)
}

func TestCopyUserRetiresLegacyTimer(t *testing.T) {
	ctx := context.Background()
	b, f := newBackfillFixture(t)

	require.NoError(t, f.source.SaveTimer(ctx, "bob@example.com", &models.TimerState{
		ActiveTaskID: "t1", StartedAt: 1000, Duration: 1500000, Type: models.CycleWork,
	}))

	require.NoError(t, b.CopyUser(ctx, "bob@example.com"))

	// Target gets the synthesized focus state.
	focus, err := f.target.GetFocus(ctx, "bob@example.com")
	require.NoError(t, err)
	require.NotNil(t, focus)
	assert.Equal(t, "t1", focus.ActiveTaskID)
	require.NotNil(t, focus.Pomodoro)

	// Source converges on the new model: focus written, timer gone.
	srcFocus, err := f.source.GetFocus(ctx, "bob@example.com")
	require.NoError(t, err)
	require.NotNil(t, srcFocus)
	timer, err := f.source.GetTimer(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Nil(t, timer)
}

func TestCopyUserKeepsExistingFocusOverTimer(t *testing.T) {
	ctx := context.Background()
	b, f := newBackfillFixture(t)

	require.NoError(t, f.source.SaveFocus(ctx, "bob@example.com", &models.FocusState{ActiveTaskID: "real", FocusedAt: 5}))
	require.NoError(t, f.source.SaveTimer(ctx, "bob@example.com", &models.TimerState{ActiveTaskID: "stale"}))

	require.NoError(t, b.CopyUser(ctx, "bob@example.com"))

	focus, err := f.target.GetFocus(ctx, "bob@example.com")
	require.NoError(t, err)
	require.NotNil(t, focus)
	assert.Equal(t, "real", focus.ActiveTaskID)

	// The stale timer is left alone when focus already existed.
	timer, err := f.source.GetTimer(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.NotNil(t, timer)
}

func TestRunSingle(t *testing.T) {
	ctx := context.Background()
	b, f := newBackfillFixture(t)
	seedUser(t, f.source, "alice@example.com")

	result, err := b.RunSingle(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.RunID, "single-alice@example.com-"))
	assert.Equal(t, 1, result.ProcessedUsers)
	assert.True(t, result.ScanComplete)

	run, err := f.ledger.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.ProcessedUsers)
	assert.Equal(t, "Single user: alice@example.com", run.Notes)
	assert.NotNil(t, run.FinishedAt)
}

// flakyTarget fails todo writes for one user so batch tests can exercise
// per-user failure isolation.
type flakyTarget struct {
	store.Backend
	failUser string
}

func (f *flakyTarget) SaveTodos(ctx context.Context, user string, todos []models.Todo) error {
	if user == f.failUser {
		return errors.New("disk full")
	}
	return f.Backend.SaveTodos(ctx, user, todos)
}

func TestRunSingleFailureRecordedInLedger(t *testing.T) {
	ctx := context.Background()
	f := &backfillFixture{
		source: kvblob.New(storetest.NewMemoryKV()),
		target: kvblob.New(storetest.NewMemoryKV()),
		ledger: storetest.NewMemoryLedger(),
	}
	seedUser(t, f.source, "alice@example.com")
	b := migrate.NewBackfiller(f.source, &flakyTarget{Backend: f.target, failUser: "alice@example.com"}, f.ledger, zerolog.Nop())

	_, err := b.RunSingle(ctx, "alice@example.com")
	require.Error(t, err)

	run, err := f.ledger.LatestRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, 0, run.ProcessedUsers)
	assert.Contains(t, run.Notes, "Failed: alice@example.com")
	assert.NotNil(t, run.FinishedAt)
}

func TestRunBatchWalksAllUsers(t *testing.T) {
	ctx := context.Background()
	b, f := newBackfillFixture(t)
	for _, u := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		seedUser(t, f.source, u)
	}

	first, err := b.RunBatch(ctx, migrate.BatchOptions{RunID: "run-1", BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, first.ProcessedUsers)
	assert.Equal(t, 3, first.TotalUsers)
	assert.False(t, first.ScanComplete)

	run, err := f.ledger.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, run.Status)
	assert.Equal(t, 2, run.ProcessedUsers)
	assert.Equal(t, 3, run.Cursor)
	assert.Nil(t, run.FinishedAt)

	// Second invocation resumes from the ledger's processed count.
	second, err := b.RunBatch(ctx, migrate.BatchOptions{RunID: "run-1", BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, second.ProcessedUsers)
	assert.True(t, second.ScanComplete)

	run, err = f.ledger.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.ProcessedUsers)
	assert.NotNil(t, run.FinishedAt)

	for _, u := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		todos, err := f.target.GetTodos(ctx, u)
		require.NoError(t, err)
		assert.Len(t, todos, 1, "user %s not copied", u)
	}
}

func TestRunBatchIsolatesUserFailures(t *testing.T) {
	ctx := context.Background()
	f := &backfillFixture{
		source: kvblob.New(storetest.NewMemoryKV()),
		target: kvblob.New(storetest.NewMemoryKV()),
		ledger: storetest.NewMemoryLedger(),
	}
	for _, u := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		seedUser(t, f.source, u)
	}
	b := migrate.NewBackfiller(f.source, &flakyTarget{Backend: f.target, failUser: "b@example.com"}, f.ledger, zerolog.Nop())

	result, err := b.RunBatch(ctx, migrate.BatchOptions{RunID: "run-1", BatchSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ProcessedUsers)
	require.Len(t, result.FailedUsers, 1)
	assert.Equal(t, "b@example.com", result.FailedUsers[0].User)
	assert.True(t, result.ScanComplete)

	run, err := f.ledger.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, 2, run.ProcessedUsers)
	assert.Equal(t, "Failed users: b@example.com", run.Notes)

	// The failed user was not counted as processed, so a retry picks them
	// up at the tail of the walk.
	todos, err := f.target.GetTodos(ctx, "c@example.com")
	require.NoError(t, err)
	assert.Len(t, todos, 1)
}

func TestRunBatchScanFailure(t *testing.T) {
	ctx := context.Background()
	kv := storetest.NewMemoryKV()
	f := &backfillFixture{
		source: kvblob.New(kv),
		target: kvblob.New(storetest.NewMemoryKV()),
		ledger: storetest.NewMemoryLedger(),
	}
	b := migrate.NewBackfiller(f.source, f.target, f.ledger, zerolog.Nop())

	kv.FailWith(errors.New("host gone"))

	_, err := b.RunBatch(ctx, migrate.BatchOptions{RunID: "run-1"})
	require.Error(t, err)

	run, lerr := f.ledger.GetRun(ctx, "run-1")
	require.NoError(t, lerr)
	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.Notes, "KV scan failed:")
	assert.NotNil(t, run.FinishedAt)
}

func TestRunBatchGeneratesRunID(t *testing.T) {
	ctx := context.Background()
	b, f := newBackfillFixture(t)
	seedUser(t, f.source, "a@example.com")

	result, err := b.RunBatch(ctx, migrate.BatchOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID)

	run, err := f.ledger.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
}

package migrate_test

import (
	"context"
	"errors"
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

func newParityFixture(t *testing.T) (*migrate.ParityChecker, *backfillFixture) {
	t.Helper()
	f := &backfillFixture{
		source: kvblob.New(storetest.NewMemoryKV()),
		target: kvblob.New(storetest.NewMemoryKV()),
		ledger: storetest.NewMemoryLedger(),
	}
	return migrate.NewParityChecker(f.source, f.target, f.ledger), f
}

func TestCheckUserMatchesAfterCopy(t *testing.T) {
	ctx := context.Background()
	checker, f := newParityFixture(t)
	b := migrate.NewBackfiller(f.source, f.target, f.ledger, zerolog.Nop())

	seedUser(t, f.source, "alice@example.com")
	require.NoError(t, b.CopyUser(ctx, "alice@example.com"))

	result, err := checker.CheckUser(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, result.Matches)
	assert.Empty(t, result.Mismatches)
}

func TestCheckUserEmptyUserMatches(t *testing.T) {
	ctx := context.Background()
	checker, _ := newParityFixture(t)

	// A user with no data on either side agrees trivially: both sides
	// normalize to nothing and defaults.
	result, err := checker.CheckUser(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.True(t, result.Matches)
	assert.Zero(t, result.Counts.Todos)
}

func TestCheckUserOrderingDifferencesMatch(t *testing.T) {
	ctx := context.Background()
	checker, f := newParityFixture(t)

	// Same todos, stored in opposite orders, with an empty-vs-nil detail.
	empty := ""
	require.NoError(t, f.source.SaveTodos(ctx, "alice@example.com", []models.Todo{
		{ID: "t2", Title: "second", CreatedAt: 200},
		{ID: "t1", Title: "first", CreatedAt: 100, Detail: &empty},
	}))
	require.NoError(t, f.target.SaveTodos(ctx, "alice@example.com", []models.Todo{
		{ID: "t1", Title: "first", CreatedAt: 100},
		{ID: "t2", Title: "second", CreatedAt: 200},
	}))

	result, err := checker.CheckUser(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, result.Matches, "mismatches: %v", result.Mismatches)
}

func TestCheckUserReportsCategoryMismatches(t *testing.T) {
	ctx := context.Background()
	checker, f := newParityFixture(t)

	require.NoError(t, f.source.SaveTodos(ctx, "alice@example.com", []models.Todo{
		{ID: "t1", Title: "original", CreatedAt: 100},
	}))
	require.NoError(t, f.target.SaveTodos(ctx, "alice@example.com", []models.Todo{
		{ID: "t1", Title: "edited", CreatedAt: 100},
	}))
	require.NoError(t, f.source.SaveSettings(ctx, "alice@example.com", models.UserSettings{
		WorkMs: 1, ShortBreakMs: 2, LongBreakMs: 3, Theme: models.ThemePaper,
	}))

	result, err := checker.CheckUser(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, result.Matches)
	assert.Contains(t, result.Mismatches, "todos")
	assert.Contains(t, result.Mismatches, "settings")
	assert.NotContains(t, result.Mismatches, "sessions")
}

func TestCheckUserFocusCreditDrift(t *testing.T) {
	ctx := context.Background()
	checker, f := newParityFixture(t)

	credit := int64(90000)
	require.NoError(t, f.source.SaveTodos(ctx, "alice@example.com", []models.Todo{
		{ID: "t1", Title: "task", CreatedAt: 100, TotalFocusMs: &credit},
	}))
	require.NoError(t, f.target.SaveTodos(ctx, "alice@example.com", []models.Todo{
		{ID: "t1", Title: "task", CreatedAt: 100},
	}))

	result, err := checker.CheckUser(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, result.Matches)
	// Credit drift is its own category, not a todos mismatch.
	assert.Equal(t, []string{"totalFocusMs"}, result.Mismatches)
}

func TestCheckUserDefaultSettingsMatchAbsent(t *testing.T) {
	ctx := context.Background()
	checker, f := newParityFixture(t)

	// Explicit defaults on one side, nothing on the other.
	require.NoError(t, f.source.SaveSettings(ctx, "alice@example.com", models.DefaultSettings()))

	result, err := checker.CheckUser(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, result.Matches)
}

func TestCheckRecordsRunLedger(t *testing.T) {
	ctx := context.Background()
	checker, f := newParityFixture(t)

	require.NoError(t, f.source.SaveTodos(ctx, "bad@example.com", []models.Todo{
		{ID: "t1", Title: "only here", CreatedAt: 100},
	}))

	result, err := checker.Check(ctx, []string{"good@example.com", "bad@example.com"}, "run-7")
	require.NoError(t, err)
	assert.Equal(t, 2, result.CheckedUsers)
	assert.Equal(t, 1, result.MismatchedUsers)

	run, err := f.ledger.GetRun(ctx, "run-7")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, 1, run.MismatchedUsers)
	assert.Equal(t, "Parity check: 1/2 matched", run.Notes)
}

func TestCheckWithoutRunIDSkipsLedger(t *testing.T) {
	ctx := context.Background()
	checker, f := newParityFixture(t)

	result, err := checker.Check(ctx, []string{"nobody@example.com"}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.CheckedUsers)
	assert.Equal(t, 0, result.MismatchedUsers)

	run, err := f.ledger.LatestRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestCheckCleanRunStaysRunning(t *testing.T) {
	ctx := context.Background()
	checker, f := newParityFixture(t)

	_, err := checker.Check(ctx, []string{"nobody@example.com"}, "run-8")
	require.NoError(t, err)

	// A clean parity pass does not terminate the run; backfill batches may
	// still be in flight under the same identifier.
	run, err := f.ledger.GetRun(ctx, "run-8")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusRunning, run.Status)
	assert.Nil(t, run.FinishedAt)
}

// unreadableSource errors every read for one user while serving the rest,
// standing in for a key-blob host that times out on a single document set.
type unreadableSource struct {
	store.Backend
	failUser string
}

func (u *unreadableSource) GetTodos(ctx context.Context, user string) ([]models.Todo, error) {
	if user == u.failUser {
		return nil, errors.New("kv timeout")
	}
	return u.Backend.GetTodos(ctx, user)
}

func TestCheckContinuesPastUnreadableUser(t *testing.T) {
	ctx := context.Background()
	source := kvblob.New(storetest.NewMemoryKV())
	target := kvblob.New(storetest.NewMemoryKV())
	ledger := storetest.NewMemoryLedger()

	for _, backend := range []*kvblob.Store{source, target} {
		require.NoError(t, backend.SaveTodos(ctx, "bob@example.com", []models.Todo{
			{ID: "t1", Title: "shared", CreatedAt: 100},
		}))
	}

	checker := migrate.NewParityChecker(
		&unreadableSource{Backend: source, failUser: "alice@example.com"}, target, ledger)

	out, err := checker.Check(ctx, []string{"alice@example.com", "bob@example.com"}, "run-9")
	require.NoError(t, err)

	// The unreadable user is recorded as mismatched and the pass moves on.
	assert.Equal(t, 2, out.CheckedUsers)
	assert.Equal(t, 1, out.MismatchedUsers)
	require.Len(t, out.Results, 2)
	assert.False(t, out.Results[0].Matches)
	require.Len(t, out.Results[0].Mismatches, 1)
	assert.Contains(t, out.Results[0].Mismatches[0], "error: ")
	assert.Contains(t, out.Results[0].Mismatches[0], "kv timeout")
	assert.True(t, out.Results[1].Matches)

	run, err := ledger.GetRun(ctx, "run-9")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.Notes, "1/2 matched")
}

func TestCheckUserSessionIDDriftMatches(t *testing.T) {
	ctx := context.Background()
	checker, f := newParityFixture(t)

	// Dual-written sessions get an independently generated ID per backend.
	require.NoError(t, f.source.SaveSessions(ctx, "alice@example.com", []models.FocusSession{
		{ID: "legacy-generated", TaskID: "t1", StartedAt: 100},
	}))
	require.NoError(t, f.target.SaveSessions(ctx, "alice@example.com", []models.FocusSession{
		{ID: "relational-generated", TaskID: "t1", StartedAt: 100},
	}))

	result, err := checker.CheckUser(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, result.Matches, "mismatches: %v", result.Mismatches)
}

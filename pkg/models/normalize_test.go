package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focuskeep/focuskeep/pkg/models"
)

func strPtr(s string) *string { return &s }
func i64Ptr(n int64) *int64   { return &n }

func TestNormalizeTodos(t *testing.T) {
	t.Run("empty collapses to nil", func(t *testing.T) {
		assert.Nil(t, models.NormalizeTodos(nil))
		assert.Nil(t, models.NormalizeTodos([]models.Todo{}))
	})

	t.Run("newest first with id tie break", func(t *testing.T) {
		todos := []models.Todo{
			{ID: "b", CreatedAt: 100},
			{ID: "a", CreatedAt: 100},
			{ID: "c", CreatedAt: 300},
		}
		got := models.NormalizeTodos(todos)
		require.Len(t, got, 3)
		assert.Equal(t, "c", got[0].ID)
		assert.Equal(t, "a", got[1].ID)
		assert.Equal(t, "b", got[2].ID)
	})

	t.Run("empty optionals collapse to nil", func(t *testing.T) {
		todos := []models.Todo{{
			ID:        "t1",
			CreatedAt: 100,
			Detail:    strPtr(""),
			Deadline:  i64Ptr(0),
			ProjectID: strPtr(""),
			Logs:      []models.TaskLog{},
		}}
		got := models.NormalizeTodos(todos)
		require.Len(t, got, 1)
		assert.Nil(t, got[0].Detail)
		assert.Nil(t, got[0].Deadline)
		assert.Nil(t, got[0].ProjectID)
		assert.Nil(t, got[0].Logs)
	})

	t.Run("focus credit excluded from comparable form", func(t *testing.T) {
		todos := []models.Todo{{ID: "t1", CreatedAt: 100, TotalFocusMs: i64Ptr(5000)}}
		got := models.NormalizeTodos(todos)
		require.Len(t, got, 1)
		assert.Nil(t, got[0].TotalFocusMs)
		// Input untouched.
		require.NotNil(t, todos[0].TotalFocusMs)
	})

	t.Run("logs sorted oldest first", func(t *testing.T) {
		todos := []models.Todo{{
			ID:        "t1",
			CreatedAt: 100,
			Logs: []models.TaskLog{
				{ID: "l2", CreatedAt: 200},
				{ID: "l1", CreatedAt: 50},
			},
		}}
		got := models.NormalizeTodos(todos)
		require.Len(t, got[0].Logs, 2)
		assert.Equal(t, "l1", got[0].Logs[0].ID)
		assert.Equal(t, "l2", got[0].Logs[1].ID)
	})
}

func TestNormalizeProjects(t *testing.T) {
	todos := []models.Project{
		{ID: "p2", CreatedAt: 300},
		{ID: "p1", CreatedAt: 100,
			Detail:     strPtr(""),
			GithubRepo: strPtr("octo/repo"),
			Resources: []models.Resource{
				{ID: "r2", CreatedAt: 20},
				{ID: "r1", CreatedAt: 10, Label: strPtr("")},
			},
			Attachments: []models.ProjectAttachment{
				{ID: "a1", CreatedAt: 5, Key: strPtr(""), Size: i64Ptr(0)},
			},
		},
	}
	got := models.NormalizeProjects(todos)
	require.Len(t, got, 2)
	// Oldest first.
	assert.Equal(t, "p1", got[0].ID)
	assert.Equal(t, "p2", got[1].ID)

	p := got[0]
	assert.Nil(t, p.Detail)
	require.NotNil(t, p.GithubRepo)
	require.Len(t, p.Resources, 2)
	assert.Equal(t, "r1", p.Resources[0].ID)
	assert.Nil(t, p.Resources[0].Label)
	require.Len(t, p.Attachments, 1)
	assert.Nil(t, p.Attachments[0].Key)
	assert.Nil(t, p.Attachments[0].Size)
}

func TestNormalizeSessions(t *testing.T) {
	empty := models.EndReason("")
	sessions := []models.FocusSession{
		{ID: "s2", TaskID: "t2", StartedAt: 200, EndedAt: i64Ptr(0), EndReason: &empty},
		{ID: "s1", TaskID: "t1", StartedAt: 100},
	}
	got := models.NormalizeSessions(sessions)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].TaskID)
	assert.Equal(t, "t2", got[1].TaskID)
	assert.Nil(t, got[1].EndedAt)
	assert.Nil(t, got[1].EndReason)
}

func TestNormalizeSessionsClearsBackendGeneratedIDs(t *testing.T) {
	// The same session history written independently to each backend gets
	// different generated IDs; normalization must make the two sides equal.
	legacySide := []models.FocusSession{
		{ID: "aaa", TaskID: "t1", StartedAt: 100, EndedAt: i64Ptr(150)},
		{ID: "bbb", TaskID: "t2", StartedAt: 200},
	}
	relationalSide := []models.FocusSession{
		{ID: "xxx", TaskID: "t2", StartedAt: 200},
		{ID: "yyy", TaskID: "t1", StartedAt: 100, EndedAt: i64Ptr(150)},
	}
	assert.Equal(t, models.NormalizeSessions(legacySide), models.NormalizeSessions(relationalSide))
	for _, s := range models.NormalizeSessions(legacySide) {
		assert.Empty(t, s.ID)
	}
}

func TestNormalizePomodoroLogs(t *testing.T) {
	logs := []models.PomodoroLog{
		{TaskID: "b", CompletedAt: 100},
		{TaskID: "a", CompletedAt: 100},
		{TaskID: "c", CompletedAt: 50},
	}
	got := models.NormalizePomodoroLogs(logs)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].TaskID)
	assert.Equal(t, "a", got[1].TaskID)
	assert.Equal(t, "b", got[2].TaskID)
}

func TestNormalizeFocus(t *testing.T) {
	assert.Nil(t, models.NormalizeFocus(nil))

	focus := &models.FocusState{
		ActiveTaskID:       "t1",
		FocusedAt:          100,
		PausedAt:           i64Ptr(0),
		AccumulatedPauseMs: i64Ptr(0),
		Pomodoro:           &models.PomodoroState{StartedAt: 100, PausedRemaining: i64Ptr(0)},
	}
	got := models.NormalizeFocus(focus)
	require.NotNil(t, got)
	assert.Nil(t, got.PausedAt)
	assert.Nil(t, got.AccumulatedPauseMs)
	require.NotNil(t, got.Pomodoro)
	assert.Nil(t, got.Pomodoro.PausedRemaining)
	// Input untouched.
	require.NotNil(t, focus.PausedAt)
	require.NotNil(t, focus.Pomodoro.PausedRemaining)
}

func TestNormalizeSettings(t *testing.T) {
	def := models.DefaultSettings()

	assert.Equal(t, def, models.NormalizeSettings(nil))

	partial := &models.UserSettings{WorkMs: 30 * 60 * 1000}
	got := models.NormalizeSettings(partial)
	assert.Equal(t, int64(30*60*1000), got.WorkMs)
	assert.Equal(t, def.ShortBreakMs, got.ShortBreakMs)
	assert.Equal(t, def.LongBreakMs, got.LongBreakMs)
	assert.Equal(t, def.Theme, got.Theme)

	full := &models.UserSettings{WorkMs: 1, ShortBreakMs: 2, LongBreakMs: 3, Theme: models.ThemePaper}
	assert.Equal(t, *full, models.NormalizeSettings(full))
}

func TestTotalFocusMs(t *testing.T) {
	todos := []models.Todo{
		{ID: "t1", TotalFocusMs: i64Ptr(1000)},
		{ID: "t2"},
		{ID: "t3", TotalFocusMs: i64Ptr(500)},
	}
	assert.Equal(t, int64(1500), models.TotalFocusMs(todos))
	assert.Equal(t, int64(0), models.TotalFocusMs(nil))
}

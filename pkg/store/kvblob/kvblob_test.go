package kvblob_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focuskeep/focuskeep/pkg/models"
	"github.com/focuskeep/focuskeep/pkg/store"
	"github.com/focuskeep/focuskeep/pkg/store/kvblob"
	"github.com/focuskeep/focuskeep/pkg/store/storetest"
)

const user = "alice@example.com"

func newStore(t *testing.T) *kvblob.Store {
	t.Helper()
	return kvblob.New(storetest.NewMemoryKV())
}

func strPtr(s string) *string { return &s }
func i64Ptr(n int64) *int64   { return &n }

func TestTodoLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	first := models.Todo{Title: "write report"}
	require.NoError(t, s.CreateTodo(ctx, user, &first))
	assert.NotEmpty(t, first.ID)
	assert.NotZero(t, first.CreatedAt)

	second := models.Todo{Title: "review PR"}
	require.NoError(t, s.CreateTodo(ctx, user, &second))

	todos, err := s.GetTodos(ctx, user)
	require.NoError(t, err)
	require.Len(t, todos, 2)
	// Newest first inside the document.
	assert.Equal(t, second.ID, todos[0].ID)
	assert.Equal(t, first.ID, todos[1].ID)

	require.NoError(t, s.ToggleTodo(ctx, user, first.ID))
	todos, err = s.GetTodos(ctx, user)
	require.NoError(t, err)
	assert.True(t, todos[1].Done.Bool())

	require.NoError(t, s.DeleteTodo(ctx, user, second.ID))
	todos, err = s.GetTodos(ctx, user)
	require.NoError(t, err)
	require.Len(t, todos, 1)
	assert.Equal(t, first.ID, todos[0].ID)

	// Deleting again is a no-op.
	require.NoError(t, s.DeleteTodo(ctx, user, second.ID))
}

func TestUpdateTodoPatchSemantics(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	todo := models.Todo{Title: "plan sprint", Detail: strPtr("rough notes"), Deadline: i64Ptr(5000)}
	require.NoError(t, s.CreateTodo(ctx, user, &todo))

	// Nil fields leave values unchanged.
	require.NoError(t, s.UpdateTodo(ctx, user, todo.ID, store.TodoPatch{Title: strPtr("plan sprint 12")}))
	todos, err := s.GetTodos(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "plan sprint 12", todos[0].Title)
	require.NotNil(t, todos[0].Detail)
	assert.Equal(t, "rough notes", *todos[0].Detail)

	// Empty string title is ignored rather than clearing it.
	require.NoError(t, s.UpdateTodo(ctx, user, todo.ID, store.TodoPatch{Title: strPtr("")}))
	todos, err = s.GetTodos(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "plan sprint 12", todos[0].Title)

	// Empty string and zero clear optional fields.
	require.NoError(t, s.UpdateTodo(ctx, user, todo.ID, store.TodoPatch{
		Detail:   strPtr(""),
		Deadline: i64Ptr(0),
	}))
	todos, err = s.GetTodos(ctx, user)
	require.NoError(t, err)
	assert.Nil(t, todos[0].Detail)
	assert.Nil(t, todos[0].Deadline)

	err = s.UpdateTodo(ctx, user, "missing", store.TodoPatch{Title: strPtr("x")})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestArchiveUnarchiveTodo(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	todo := models.Todo{Title: "old task", Done: true}
	require.NoError(t, s.CreateTodo(ctx, user, &todo))

	require.NoError(t, s.ArchiveTodo(ctx, user, todo.ID))
	todos, err := s.GetTodos(ctx, user)
	require.NoError(t, err)
	assert.True(t, todos[0].Archived.Bool())
	assert.NotNil(t, todos[0].ArchivedAt)

	// Unarchive resurrects the todo as not done.
	require.NoError(t, s.UnarchiveTodo(ctx, user, todo.ID))
	todos, err = s.GetTodos(ctx, user)
	require.NoError(t, err)
	assert.False(t, todos[0].Archived.Bool())
	assert.Nil(t, todos[0].ArchivedAt)
	assert.False(t, todos[0].Done.Bool())
}

func TestTaskLogs(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	todo := models.Todo{Title: "investigate bug"}
	require.NoError(t, s.CreateTodo(ctx, user, &todo))

	log := models.TaskLog{Text: "reproduced locally"}
	require.NoError(t, s.AddTaskLog(ctx, user, todo.ID, &log))
	assert.NotEmpty(t, log.ID)
	assert.NotZero(t, log.CreatedAt)

	err := s.AddTaskLog(ctx, user, "missing", &models.TaskLog{Text: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.DeleteTaskLog(ctx, user, todo.ID, log.ID))
	todos, err := s.GetTodos(ctx, user)
	require.NoError(t, err)
	assert.Nil(t, todos[0].Logs)

	// Deleting from an unknown todo is a no-op.
	require.NoError(t, s.DeleteTaskLog(ctx, user, "missing", log.ID))
}

func TestProjectResourcesAndAttachments(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	project := models.Project{Name: "focuskeep", GithubRepo: strPtr("octo/focuskeep")}
	require.NoError(t, s.CreateProject(ctx, user, &project))
	assert.NotEmpty(t, project.ID)

	resource := models.Resource{URL: "https://example.com/design"}
	require.NoError(t, s.AddResource(ctx, user, project.ID, &resource))
	assert.NotEmpty(t, resource.ID)

	key := "blob-key-1"
	attachment := models.ProjectAttachment{Name: "spec.pdf", Key: &key}
	require.NoError(t, s.AddAttachment(ctx, user, project.ID, &attachment))

	projects, err := s.GetProjects(ctx, user)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	require.Len(t, projects[0].Resources, 1)
	require.Len(t, projects[0].Attachments, 1)

	removed, err := s.DeleteAttachment(ctx, user, project.ID, attachment.ID)
	require.NoError(t, err)
	require.NotNil(t, removed)
	require.NotNil(t, removed.Key)
	assert.Equal(t, key, *removed.Key)

	// Absent attachment returns nothing rather than an error.
	removed, err = s.DeleteAttachment(ctx, user, project.ID, "missing")
	require.NoError(t, err)
	assert.Nil(t, removed)

	require.NoError(t, s.DeleteResource(ctx, user, project.ID, resource.ID))
	projects, err = s.GetProjects(ctx, user)
	require.NoError(t, err)
	assert.Nil(t, projects[0].Resources)
	assert.Nil(t, projects[0].Attachments)
}

func TestFocusSessionCredit(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	todo := models.Todo{Title: "deep work"}
	require.NoError(t, s.CreateTodo(ctx, user, &todo))

	session, err := s.StartSession(ctx, user, todo.ID)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, todo.ID, session.TaskID)

	require.NoError(t, s.EndActiveSession(ctx, user, models.EndReasonManual))

	sessions, err := s.GetSessions(ctx, user)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.NotNil(t, sessions[0].EndedAt)
	require.NotNil(t, sessions[0].EndReason)
	assert.Equal(t, models.EndReasonManual, *sessions[0].EndReason)

	todos, err := s.GetTodos(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, todos[0].TotalFocusMs)
	assert.GreaterOrEqual(t, *todos[0].TotalFocusMs, int64(0))

	// No open session left, ending again is a no-op.
	require.NoError(t, s.EndActiveSession(ctx, user, models.EndReasonManual))
	sessions, err = s.GetSessions(ctx, user)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
}

func TestFocusTaskEndsPreviousSession(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.FocusTask(ctx, user, "t1"))
	require.NoError(t, s.FocusTask(ctx, user, "t2"))

	sessions, err := s.GetSessions(ctx, user)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.NotNil(t, sessions[0].EndedAt)
	assert.Equal(t, models.EndReasonSwitch, *sessions[0].EndReason)
	assert.Nil(t, sessions[1].EndedAt)

	focus, err := s.GetFocus(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, focus)
	assert.Equal(t, "t2", focus.ActiveTaskID)

	require.NoError(t, s.Unfocus(ctx, user, models.EndReasonManual))
	sessions, err = s.GetSessions(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, sessions[1].EndedAt)
	assert.Equal(t, models.EndReasonManual, *sessions[1].EndReason)

	focus, err = s.GetFocus(ctx, user)
	require.NoError(t, err)
	assert.Nil(t, focus)
}

func TestToggleTodoWithFocus(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	todo := models.Todo{Title: "focused task"}
	require.NoError(t, s.CreateTodo(ctx, user, &todo))
	require.NoError(t, s.FocusTask(ctx, user, todo.ID))

	require.NoError(t, s.ToggleTodoWithFocus(ctx, user, todo.ID))

	todos, err := s.GetTodos(ctx, user)
	require.NoError(t, err)
	assert.True(t, todos[0].Done.Bool())

	// Completing the focused todo closes the session and clears focus.
	sessions, err := s.GetSessions(ctx, user)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.NotNil(t, sessions[0].EndReason)
	assert.Equal(t, models.EndReasonDone, *sessions[0].EndReason)

	focus, err := s.GetFocus(ctx, user)
	require.NoError(t, err)
	assert.Nil(t, focus)

	// Toggling back to not-done leaves focus alone.
	require.NoError(t, s.ToggleTodoWithFocus(ctx, user, todo.ID))
	todos, err = s.GetTodos(ctx, user)
	require.NoError(t, err)
	assert.False(t, todos[0].Done.Bool())
}

func TestToggleUnfocusedTodoKeepsFocus(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	focused := models.Todo{Title: "focused"}
	other := models.Todo{Title: "other"}
	require.NoError(t, s.CreateTodo(ctx, user, &focused))
	require.NoError(t, s.CreateTodo(ctx, user, &other))
	require.NoError(t, s.FocusTask(ctx, user, focused.ID))

	require.NoError(t, s.ToggleTodoWithFocus(ctx, user, other.ID))

	focus, err := s.GetFocus(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, focus)
	assert.Equal(t, focused.ID, focus.ActiveTaskID)
}

func TestDeleteProjectCascade(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	project := models.Project{Name: "doomed"}
	require.NoError(t, s.CreateProject(ctx, user, &project))

	key := "attachment-blob"
	require.NoError(t, s.AddAttachment(ctx, user, project.ID, &models.ProjectAttachment{Name: "a.txt", Key: &key}))
	require.NoError(t, s.AddAttachment(ctx, user, project.ID, &models.ProjectAttachment{Name: "b.txt", URL: "https://example.com/b"}))

	todo := models.Todo{Title: "attached", ProjectID: &project.ID}
	require.NoError(t, s.CreateTodo(ctx, user, &todo))

	require.NoError(t, s.SaveRepoInfo(ctx, user, project.ID, &models.RepoInfo{FullName: "octo/doomed", FetchedAt: 1}))

	keys, err := s.DeleteProjectCascade(ctx, user, project.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{key}, keys)

	projects, err := s.GetProjects(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, projects)

	todos, err := s.GetTodos(ctx, user)
	require.NoError(t, err)
	require.Len(t, todos, 1)
	assert.Nil(t, todos[0].ProjectID)

	info, err := s.GetRepoInfo(ctx, user, project.ID)
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestPomodoroLogs(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	log := models.PomodoroLog{TaskID: "t1", Type: models.CycleWork, Duration: 1500000}
	require.NoError(t, s.AddPomodoroLog(ctx, user, &log))
	assert.NotZero(t, log.CompletedAt)

	logs, err := s.GetPomodoroLogs(ctx, user)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "t1", logs[0].TaskID)

	replacement := []models.PomodoroLog{
		{TaskID: "t2", Type: models.CycleShortBreak, Duration: 300000, CompletedAt: 100},
	}
	require.NoError(t, s.ReplacePomodoroLogs(ctx, user, replacement))
	logs, err = s.GetPomodoroLogs(ctx, user)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "t2", logs[0].TaskID)
}

func TestSettingsDefaults(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	settings, err := s.GetSettings(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), settings)

	custom := models.UserSettings{WorkMs: 1, ShortBreakMs: 2, LongBreakMs: 3, Theme: models.ThemeNothing}
	require.NoError(t, s.SaveSettings(ctx, user, custom))
	settings, err = s.GetSettings(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, custom, settings)
}

func TestLegacyTimer(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	timer, err := s.GetTimer(ctx, user)
	require.NoError(t, err)
	assert.Nil(t, timer)

	require.NoError(t, s.SaveTimer(ctx, user, &models.TimerState{ActiveTaskID: "t1", StartedAt: 100}))
	timer, err = s.GetTimer(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, timer)
	assert.Equal(t, "t1", timer.ActiveTaskID)

	// Saving nil retires the document.
	require.NoError(t, s.SaveTimer(ctx, user, nil))
	timer, err = s.GetTimer(ctx, user)
	require.NoError(t, err)
	assert.Nil(t, timer)
}

func TestScanUsers(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.CreateTodo(ctx, "carol@example.com", &models.Todo{Title: "x"}))
	require.NoError(t, s.SaveSettings(ctx, "alice@example.com", models.DefaultSettings()))
	require.NoError(t, s.SaveTimer(ctx, "bob@example.com", &models.TimerState{ActiveTaskID: "t"}))
	// Repo-info cache entries do not count as users.
	require.NoError(t, s.SaveRepoInfo(ctx, "dave@example.com", "p1", &models.RepoInfo{FullName: "octo/x", FetchedAt: 1}))

	users, err := s.ScanUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com", "carol@example.com"}, users)
}

func TestHostFailurePropagates(t *testing.T) {
	ctx := context.Background()
	kv := storetest.NewMemoryKV()
	s := kvblob.New(kv)

	boom := errors.New("connection reset")
	kv.FailWith(boom)

	_, err := s.GetTodos(ctx, user)
	assert.ErrorIs(t, err, boom)

	err = s.SaveSettings(ctx, user, models.DefaultSettings())
	assert.ErrorIs(t, err, boom)
}

package relational

import "github.com/focuskeep/focuskeep/pkg/models"

// Row types map the JSON entities onto normalized tables. Every table is
// keyed by (user_id, id) — or user_id alone for the singletons — so one
// database serves all users while queries stay strictly per-user.
//
// Optional entity fields are nullable columns; the mapping back to models
// only sets a pointer when the column is non-NULL, which keeps the JSON
// shape identical to what the key-blob backend produces.

type todoRow struct {
	UserID       string  `gorm:"primaryKey;size:320"`
	ID           string  `gorm:"primaryKey"`
	Title        string
	Done         bool
	CreatedAt    int64
	Detail       *string
	Deadline     *int64
	Archived     bool
	ArchivedAt   *int64
	ProjectID    *string `gorm:"index"`
	TotalFocusMs *int64
}

func (todoRow) TableName() string { return "todos" }

type taskLogRow struct {
	UserID    string `gorm:"primaryKey;size:320"`
	ID        string `gorm:"primaryKey"`
	TodoID    string `gorm:"index"`
	Text      string
	CreatedAt int64
}

func (taskLogRow) TableName() string { return "task_logs" }

type projectRow struct {
	UserID     string `gorm:"primaryKey;size:320"`
	ID         string `gorm:"primaryKey"`
	Name       string
	CreatedAt  int64
	Detail     *string
	GithubRepo *string
	Archived   bool
	ArchivedAt *int64
}

func (projectRow) TableName() string { return "projects" }

type resourceRow struct {
	UserID    string `gorm:"primaryKey;size:320"`
	ID        string `gorm:"primaryKey"`
	ProjectID string `gorm:"index"`
	URL       string
	Label     *string
	CreatedAt int64
}

func (resourceRow) TableName() string { return "project_resources" }

type attachmentRow struct {
	UserID      string `gorm:"primaryKey;size:320"`
	ID          string `gorm:"primaryKey"`
	ProjectID   string `gorm:"index"`
	Name        string
	URL         string
	Key         *string
	ContentType *string
	Size        *int64
	CreatedAt   int64
}

func (attachmentRow) TableName() string { return "project_attachments" }

type focusSessionRow struct {
	UserID    string `gorm:"primaryKey;size:320"`
	ID        string `gorm:"primaryKey"`
	TaskID    string
	StartedAt int64 `gorm:"index"`
	EndedAt   *int64
	EndReason *string
}

func (focusSessionRow) TableName() string { return "focus_sessions" }

// focusStateRow is a per-user singleton; the embedded pomodoro is flattened
// into nullable pomo_* columns and present iff pomo_started_at, pomo_duration
// and pomo_type are all non-NULL.
type focusStateRow struct {
	UserID                 string `gorm:"primaryKey;size:320"`
	ActiveTaskID           string
	FocusedAt              int64
	SessionPaused          bool
	PausedAt               *int64
	AccumulatedPauseMs     *int64
	PomoStartedAt          *int64
	PomoDuration           *int64
	PomoType               *string
	PomoCompletedPomodoros *int
	PomoPaused             *bool
	PomoPausedRemaining    *int64
}

func (focusStateRow) TableName() string { return "focus_state" }

type pomodoroLogRow struct {
	UserID      string `gorm:"primaryKey;size:320"`
	ID          string `gorm:"primaryKey"`
	TaskID      string
	Type        string
	Duration    int64
	CompletedAt int64 `gorm:"index"`
}

func (pomodoroLogRow) TableName() string { return "pomodoro_logs" }

type userSettingsRow struct {
	UserID       string `gorm:"primaryKey;size:320"`
	WorkMs       int64
	ShortBreakMs int64
	LongBreakMs  int64
	Theme        string
}

func (userSettingsRow) TableName() string { return "user_settings" }

type migrationRunRow struct {
	RunID           string `gorm:"primaryKey"`
	Status          string
	Cursor          int
	ProcessedUsers  int
	MismatchedUsers int
	StartedAt       int64 `gorm:"index"`
	FinishedAt      *int64
	Notes           string
}

func (migrationRunRow) TableName() string { return "migration_runs" }

func toTodoRow(user string, t models.Todo) todoRow {
	return todoRow{
		UserID:       user,
		ID:           t.ID,
		Title:        t.Title,
		Done:         t.Done.Bool(),
		CreatedAt:    t.CreatedAt,
		Detail:       t.Detail,
		Deadline:     t.Deadline,
		Archived:     t.Archived.Bool(),
		ArchivedAt:   t.ArchivedAt,
		ProjectID:    t.ProjectID,
		TotalFocusMs: t.TotalFocusMs,
	}
}

func fromTodoRow(r todoRow, logs []models.TaskLog) models.Todo {
	return models.Todo{
		ID:           r.ID,
		Title:        r.Title,
		Done:         models.Flag(r.Done),
		CreatedAt:    r.CreatedAt,
		Detail:       r.Detail,
		Deadline:     r.Deadline,
		Archived:     models.Flag(r.Archived),
		ArchivedAt:   r.ArchivedAt,
		Logs:         logs,
		ProjectID:    r.ProjectID,
		TotalFocusMs: r.TotalFocusMs,
	}
}

func toTaskLogRow(user, todoID string, l models.TaskLog) taskLogRow {
	return taskLogRow{UserID: user, ID: l.ID, TodoID: todoID, Text: l.Text, CreatedAt: l.CreatedAt}
}

func toProjectRow(user string, p models.Project) projectRow {
	return projectRow{
		UserID:     user,
		ID:         p.ID,
		Name:       p.Name,
		CreatedAt:  p.CreatedAt,
		Detail:     p.Detail,
		GithubRepo: p.GithubRepo,
		Archived:   p.Archived.Bool(),
		ArchivedAt: p.ArchivedAt,
	}
}

func fromProjectRow(r projectRow, resources []models.Resource, attachments []models.ProjectAttachment) models.Project {
	return models.Project{
		ID:          r.ID,
		Name:        r.Name,
		CreatedAt:   r.CreatedAt,
		Detail:      r.Detail,
		Resources:   resources,
		Attachments: attachments,
		GithubRepo:  r.GithubRepo,
		Archived:    models.Flag(r.Archived),
		ArchivedAt:  r.ArchivedAt,
	}
}

func toResourceRow(user, projectID string, res models.Resource) resourceRow {
	return resourceRow{UserID: user, ID: res.ID, ProjectID: projectID, URL: res.URL, Label: res.Label, CreatedAt: res.CreatedAt}
}

func fromResourceRow(r resourceRow) models.Resource {
	return models.Resource{ID: r.ID, URL: r.URL, Label: r.Label, CreatedAt: r.CreatedAt}
}

func toAttachmentRow(user, projectID string, a models.ProjectAttachment) attachmentRow {
	return attachmentRow{
		UserID:      user,
		ID:          a.ID,
		ProjectID:   projectID,
		Name:        a.Name,
		URL:         a.URL,
		Key:         a.Key,
		ContentType: a.ContentType,
		Size:        a.Size,
		CreatedAt:   a.CreatedAt,
	}
}

func fromAttachmentRow(r attachmentRow) models.ProjectAttachment {
	return models.ProjectAttachment{
		ID:          r.ID,
		Name:        r.Name,
		URL:         r.URL,
		Key:         r.Key,
		ContentType: r.ContentType,
		Size:        r.Size,
		CreatedAt:   r.CreatedAt,
	}
}

func toSessionRow(user string, s models.FocusSession) focusSessionRow {
	row := focusSessionRow{UserID: user, ID: s.ID, TaskID: s.TaskID, StartedAt: s.StartedAt, EndedAt: s.EndedAt}
	if s.EndReason != nil {
		reason := string(*s.EndReason)
		row.EndReason = &reason
	}
	return row
}

func fromSessionRow(r focusSessionRow) models.FocusSession {
	s := models.FocusSession{ID: r.ID, TaskID: r.TaskID, StartedAt: r.StartedAt, EndedAt: r.EndedAt}
	if r.EndReason != nil {
		reason := models.EndReason(*r.EndReason)
		s.EndReason = &reason
	}
	return s
}

func toFocusStateRow(user string, f models.FocusState) focusStateRow {
	row := focusStateRow{
		UserID:             user,
		ActiveTaskID:       f.ActiveTaskID,
		FocusedAt:          f.FocusedAt,
		SessionPaused:      f.SessionPaused.Bool(),
		PausedAt:           f.PausedAt,
		AccumulatedPauseMs: f.AccumulatedPauseMs,
	}
	if p := f.Pomodoro; p != nil {
		pomoType := string(p.Type)
		paused := p.Paused.Bool()
		row.PomoStartedAt = &p.StartedAt
		row.PomoDuration = &p.Duration
		row.PomoType = &pomoType
		row.PomoCompletedPomodoros = &p.CompletedPomodoros
		row.PomoPaused = &paused
		row.PomoPausedRemaining = p.PausedRemaining
	}
	return row
}

func fromFocusStateRow(r focusStateRow) *models.FocusState {
	f := &models.FocusState{
		ActiveTaskID:       r.ActiveTaskID,
		FocusedAt:          r.FocusedAt,
		SessionPaused:      models.Flag(r.SessionPaused),
		PausedAt:           r.PausedAt,
		AccumulatedPauseMs: r.AccumulatedPauseMs,
	}
	if r.PomoStartedAt != nil && r.PomoDuration != nil && r.PomoType != nil {
		p := &models.PomodoroState{
			StartedAt:       *r.PomoStartedAt,
			Duration:        *r.PomoDuration,
			Type:            models.CycleType(*r.PomoType),
			PausedRemaining: r.PomoPausedRemaining,
		}
		if r.PomoCompletedPomodoros != nil {
			p.CompletedPomodoros = *r.PomoCompletedPomodoros
		}
		if r.PomoPaused != nil {
			p.Paused = models.Flag(*r.PomoPaused)
		}
		f.Pomodoro = p
	}
	return f
}

func toPomodoroLogRow(user, id string, l models.PomodoroLog) pomodoroLogRow {
	return pomodoroLogRow{
		UserID:      user,
		ID:          id,
		TaskID:      l.TaskID,
		Type:        string(l.Type),
		Duration:    l.Duration,
		CompletedAt: l.CompletedAt,
	}
}

func fromPomodoroLogRow(r pomodoroLogRow) models.PomodoroLog {
	return models.PomodoroLog{
		TaskID:      r.TaskID,
		Type:        models.CycleType(r.Type),
		Duration:    r.Duration,
		CompletedAt: r.CompletedAt,
	}
}

func toSettingsRow(user string, s models.UserSettings) userSettingsRow {
	return userSettingsRow{
		UserID:       user,
		WorkMs:       s.WorkMs,
		ShortBreakMs: s.ShortBreakMs,
		LongBreakMs:  s.LongBreakMs,
		Theme:        string(s.Theme),
	}
}

func fromSettingsRow(r userSettingsRow) models.UserSettings {
	return models.UserSettings{
		WorkMs:       r.WorkMs,
		ShortBreakMs: r.ShortBreakMs,
		LongBreakMs:  r.LongBreakMs,
		Theme:        models.Theme(r.Theme),
	}
}

func fromRunRow(r migrationRunRow) *models.MigrationRun {
	return &models.MigrationRun{
		RunID:           r.RunID,
		Status:          models.RunStatus(r.Status),
		Cursor:          r.Cursor,
		ProcessedUsers:  r.ProcessedUsers,
		MismatchedUsers: r.MismatchedUsers,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		Notes:           r.Notes,
	}
}

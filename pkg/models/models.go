// Package models defines the domain entities shared by every storage backend.
//
// All entities serialize to JSON with camelCase field names and epoch-millisecond
// timestamps. This is the canonical wire and blob format: the key-blob backend
// persists these documents verbatim, and the relational backend maps them to and
// from rows. Optional fields are pointers (or omitempty values) so that absent
// and zero are distinguishable where the distinction matters.
//
// Identifiers are opaque strings. New entities get UUID identifiers assigned by
// the storage layer; historical data may carry identifiers in other formats, so
// nothing in this package assumes UUID shape when reading.
package models

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NowMs returns the current time as epoch milliseconds, the timestamp unit
// used throughout the data model.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// NewID returns a fresh identifier for a new entity.
func NewID() string {
	return uuid.New().String()
}

// Flag is a bool that tolerates the loose encodings legacy writers produced.
// Old blobs contain 0/1 numbers and quoted "true"/"false" strings where a
// boolean belongs, and those documents must keep decoding cleanly until the
// last user is migrated. Flag marshals as a plain JSON bool.
type Flag bool

var (
	jsonTrue  = []byte("true")
	jsonFalse = []byte("false")
)

func (f *Flag) UnmarshalJSON(data []byte) error {
	switch {
	case bytes.Equal(data, jsonTrue), bytes.Equal(data, []byte(`"true"`)), bytes.Equal(data, []byte("1")), bytes.Equal(data, []byte(`"1"`)):
		*f = true
	case bytes.Equal(data, jsonFalse), bytes.Equal(data, []byte(`"false"`)), bytes.Equal(data, []byte("0")), bytes.Equal(data, []byte(`"0"`)), bytes.Equal(data, []byte("null")):
		*f = false
	default:
		return fmt.Errorf("cannot decode %q as boolean flag", data)
	}
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return jsonTrue, nil
	}
	return jsonFalse, nil
}

// Bool returns the flag as a plain bool.
func (f Flag) Bool() bool { return bool(f) }

// EndReason records why a focus session ended.
type EndReason string

const (
	// EndReasonSwitch means focus moved to another task.
	EndReasonSwitch EndReason = "switch"
	// EndReasonDone means the focused task was completed.
	EndReasonDone EndReason = "done"
	// EndReasonManual means the user explicitly stopped focusing.
	EndReasonManual EndReason = "manual"
)

// CycleType identifies a pomodoro cycle kind.
type CycleType string

const (
	CycleWork       CycleType = "work"
	CycleShortBreak CycleType = "short-break"
	CycleLongBreak  CycleType = "long-break"
)

// Theme is a UI theme preference stored with user settings.
type Theme string

const (
	ThemeSignal  Theme = "signal"
	ThemePaper   Theme = "paper"
	ThemeNothing Theme = "nothing"
)

// TaskLog is a timestamped note attached to a todo.
type TaskLog struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
}

// Todo is a task. TotalFocusMs accumulates the duration of every focus
// session ended against this task and is maintained by the storage layer,
// never written directly by callers.
type Todo struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Done         Flag      `json:"done"`
	CreatedAt    int64     `json:"createdAt"`
	Detail       *string   `json:"detail,omitempty"`
	Deadline     *int64    `json:"deadline,omitempty"`
	Archived     Flag      `json:"archived,omitempty"`
	ArchivedAt   *int64    `json:"archivedAt,omitempty"`
	Logs         []TaskLog `json:"logs,omitempty"`
	ProjectID    *string   `json:"projectId,omitempty"`
	TotalFocusMs *int64    `json:"totalFocusMs,omitempty"`
}

// Resource is a link attached to a project.
type Resource struct {
	ID        string  `json:"id"`
	URL       string  `json:"url"`
	Label     *string `json:"label,omitempty"`
	CreatedAt int64   `json:"createdAt"`
}

// ProjectAttachment references an uploaded file. Key is the binary-object
// store key; the storage layer tracks keys but never touches object content.
type ProjectAttachment struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	URL         string  `json:"url"`
	Key         *string `json:"key,omitempty"`
	ContentType *string `json:"contentType,omitempty"`
	Size        *int64  `json:"size,omitempty"`
	CreatedAt   int64   `json:"createdAt"`
}

// Project groups todos and carries its own resources and attachments.
type Project struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	CreatedAt   int64               `json:"createdAt"`
	Detail      *string             `json:"detail,omitempty"`
	Resources   []Resource          `json:"resources,omitempty"`
	Attachments []ProjectAttachment `json:"attachments,omitempty"`
	GithubRepo  *string             `json:"githubRepo,omitempty"`
	Archived    Flag                `json:"archived,omitempty"`
	ArchivedAt  *int64              `json:"archivedAt,omitempty"`
}

// FocusSession is one contiguous stretch of focus on a task. An open session
// has no EndedAt; at most one session per user is open at a time.
type FocusSession struct {
	ID        string     `json:"id"`
	TaskID    string     `json:"taskId"`
	StartedAt int64      `json:"startedAt"`
	EndedAt   *int64     `json:"endedAt,omitempty"`
	EndReason *EndReason `json:"endReason,omitempty"`
}

// PomodoroState is the running pomodoro cycle embedded in FocusState.
type PomodoroState struct {
	StartedAt          int64     `json:"startedAt"`
	Duration           int64     `json:"duration"`
	Type               CycleType `json:"type"`
	CompletedPomodoros int       `json:"completedPomodoros"`
	Paused             Flag      `json:"paused"`
	PausedRemaining    *int64    `json:"pausedRemaining,omitempty"`
}

// FocusState is the per-user singleton describing what is focused right now.
// Absent state means nothing is focused.
type FocusState struct {
	ActiveTaskID       string         `json:"activeTaskId"`
	FocusedAt          int64          `json:"focusedAt"`
	SessionPaused      Flag           `json:"sessionPaused,omitempty"`
	PausedAt           *int64         `json:"pausedAt,omitempty"`
	AccumulatedPauseMs *int64         `json:"accumulatedPauseMs,omitempty"`
	Pomodoro           *PomodoroState `json:"pomodoro,omitempty"`
}

// TimerState is the legacy single-timer shape that predates FocusState.
// It only ever exists in the key-blob backend; reads synthesize a FocusState
// from it via MigrateLegacyTimer and the relational backend never stores it.
type TimerState struct {
	ActiveTaskID       string    `json:"activeTaskId"`
	StartedAt          int64     `json:"startedAt"`
	Duration           int64     `json:"duration"`
	Type               CycleType `json:"type"`
	CompletedPomodoros int       `json:"completedPomodoros"`
	Paused             Flag      `json:"paused"`
	PausedRemaining    *int64    `json:"pausedRemaining,omitempty"`
}

// PomodoroLog records one completed pomodoro cycle. It carries no intrinsic
// identifier; backends that need a key synthesize one.
type PomodoroLog struct {
	TaskID      string    `json:"taskId"`
	Type        CycleType `json:"type"`
	Duration    int64     `json:"duration"`
	CompletedAt int64     `json:"completedAt"`
}

// UserSettings holds pomodoro durations and the UI theme.
type UserSettings struct {
	WorkMs       int64 `json:"workMs"`
	ShortBreakMs int64 `json:"shortBreakMs"`
	LongBreakMs  int64 `json:"longBreakMs"`
	Theme        Theme `json:"theme"`
}

// DefaultSettings returns the settings applied when a user has never saved any.
func DefaultSettings() UserSettings {
	return UserSettings{
		WorkMs:       25 * 60 * 1000,
		ShortBreakMs: 5 * 60 * 1000,
		LongBreakMs:  15 * 60 * 1000,
		Theme:        ThemeSignal,
	}
}

// RepoInfo is cached external repository metadata for a project. It lives
// only in the key-blob backend and is treated as a disposable cache: it is
// never backfilled, never parity-checked, and deleted with its project.
type RepoInfo struct {
	FullName       string  `json:"fullName"`
	Description    *string `json:"description,omitempty"`
	DefaultBranch  string  `json:"defaultBranch"`
	LastPushedAt   string  `json:"lastPushedAt"`
	Stars          int     `json:"stars"`
	OpenIssueCount int     `json:"openIssueCount"`
	FetchedAt      int64   `json:"fetchedAt"`
	Error          *string `json:"error,omitempty"`
}

// RunStatus is the lifecycle state of a migration run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// MigrationRun is the durable record of one backfill or parity activity.
// ProcessedUsers only ever grows: updates apply deltas, so overlapping
// invocations sharing a run identifier cannot move progress backwards.
type MigrationRun struct {
	RunID           string    `json:"runId"`
	Status          RunStatus `json:"status"`
	Cursor          int       `json:"cursor"`
	ProcessedUsers  int       `json:"processedUsers"`
	MismatchedUsers int       `json:"mismatchedUsers"`
	StartedAt       int64     `json:"startedAt"`
	FinishedAt      *int64    `json:"finishedAt,omitempty"`
	Notes           string    `json:"notes,omitempty"`
}

// MigrateLegacyTimer converts a legacy TimerState into the FocusState shape.
// When focus already exists it wins and the timer is ignored. When only a
// timer exists, its running cycle becomes the embedded pomodoro state. Both
// absent yields nil.
func MigrateLegacyTimer(focus *FocusState, timer *TimerState) *FocusState {
	if focus != nil {
		return focus
	}
	if timer == nil {
		return nil
	}
	return &FocusState{
		ActiveTaskID: timer.ActiveTaskID,
		FocusedAt:    timer.StartedAt,
		Pomodoro: &PomodoroState{
			StartedAt:          timer.StartedAt,
			Duration:           timer.Duration,
			Type:               timer.Type,
			CompletedPomodoros: timer.CompletedPomodoros,
			Paused:             timer.Paused,
			PausedRemaining:    timer.PausedRemaining,
		},
	}
}

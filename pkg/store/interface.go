// Package store defines the persistence contract shared by the key-blob and
// relational backends.
//
// The application is mid-migration between two stores with very different
// shapes: a schemaless key-blob store holding one JSON document per
// (collection, user), and a normalized relational store. Both implement
// [Backend], the entity-level contract, so the routing layer and the
// migration machinery can treat them interchangeably:
//
//   - [github.com/focuskeep/focuskeep/pkg/store/kvblob.Store]: read-modify-write
//     over whole documents, no atomicity across collections
//   - [github.com/focuskeep/focuskeep/pkg/store/relational.Store]: GORM over
//     PostgreSQL, composite operations run as single transactions
//   - [github.com/focuskeep/focuskeep/pkg/store/routing.Router]: policy wrapper
//     choosing per user which backend serves reads and mirroring writes
//
// # Conventions
//
// All methods take a context and the owning user's identifier. Reads of
// absent state return zero values (nil slice, nil pointer) with a nil error;
// errors are reserved for connectivity and query failures. Mutations that
// target a specific entity return [ErrNotFound] (wrapped) when it does not
// exist. Full-replacement saves (SaveTodos, SaveProjects, SaveSessions,
// ReplacePomodoroLogs) overwrite everything the user has in that category and
// are the idempotent primitive the backfill engine is built on.
package store

import (
	"context"
	"errors"

	"github.com/focuskeep/focuskeep/pkg/models"
)

// ErrStorageUnavailable is returned when neither backend is configured to
// serve an operation.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ErrNotFound is returned by mutations that target a specific missing entity.
var ErrNotFound = errors.New("not found")

// TodoPatch is a partial todo update. Nil fields are left unchanged; for the
// clearable fields an explicitly empty value (empty string, zero deadline)
// clears the stored one.
type TodoPatch struct {
	Title     *string
	Detail    *string
	Deadline  *int64
	ProjectID *string
}

// ProjectPatch is a partial project update with the same nil-means-unchanged
// convention as TodoPatch.
type ProjectPatch struct {
	Name       *string
	Detail     *string
	GithubRepo *string
}

// Backend is the entity-level contract both storage backends implement.
//
// The interface is intentionally wide: it is the exact operation surface the
// application performs, and keeping it in one place is what lets the routing
// layer replay any write against a second backend without knowing what the
// operation does.
//
// # Composite operations and atomicity
//
// FocusTask, Unfocus, ToggleTodoWithFocus, and DeleteProjectCascade touch
// several categories at once. The relational backend runs each as a single
// transaction; the key-blob backend can only execute them as an ordered
// sequence of per-document writes, so a mid-sequence failure leaves partial
// state there. That asymmetry is accepted: the key-blob store simply has no
// cross-key primitive, and the parity checker exists to surface any drift the
// best-effort ordering lets through. The step order is chosen so that the
// most user-visible document is written last.
type Backend interface {
	// GetTodos returns the user's todos, newest first. Empty result is a nil
	// or empty slice, never an error.
	GetTodos(ctx context.Context, user string) ([]models.Todo, error)

	// SaveTodos replaces the user's entire todo collection.
	SaveTodos(ctx context.Context, user string, todos []models.Todo) error

	// CreateTodo persists a new todo at the head of the collection. A zero ID
	// or CreatedAt is assigned by the backend.
	CreateTodo(ctx context.Context, user string, todo *models.Todo) error

	// UpdateTodo applies a partial update to one todo.
	UpdateTodo(ctx context.Context, user, id string, patch TodoPatch) error

	// ToggleTodo flips the done state of one todo without touching focus.
	// Use ToggleTodoWithFocus when focus bookkeeping must follow.
	ToggleTodo(ctx context.Context, user, id string) error

	// DeleteTodo removes one todo and its logs.
	DeleteTodo(ctx context.Context, user, id string) error

	// ArchiveTodo marks a todo archived with the current timestamp.
	ArchiveTodo(ctx context.Context, user, id string) error

	// UnarchiveTodo clears the archived state and reopens the todo
	// (done is reset to false).
	UnarchiveTodo(ctx context.Context, user, id string) error

	// AddTaskLog appends a log entry to a todo.
	AddTaskLog(ctx context.Context, user, todoID string, log *models.TaskLog) error

	// DeleteTaskLog removes one log entry from a todo.
	DeleteTaskLog(ctx context.Context, user, todoID, logID string) error

	// GetProjects returns the user's projects with resources and attachments
	// populated.
	GetProjects(ctx context.Context, user string) ([]models.Project, error)

	// SaveProjects replaces the user's entire project collection.
	SaveProjects(ctx context.Context, user string, projects []models.Project) error

	// CreateProject persists a new project.
	CreateProject(ctx context.Context, user string, project *models.Project) error

	// UpdateProject applies a partial update to one project.
	UpdateProject(ctx context.Context, user, id string, patch ProjectPatch) error

	// ArchiveProject marks a project archived with the current timestamp.
	ArchiveProject(ctx context.Context, user, id string) error

	// UnarchiveProject clears the archived state.
	UnarchiveProject(ctx context.Context, user, id string) error

	// AddResource appends a link resource to a project.
	AddResource(ctx context.Context, user, projectID string, resource *models.Resource) error

	// DeleteResource removes one resource from a project.
	DeleteResource(ctx context.Context, user, projectID, resourceID string) error

	// AddAttachment appends an attachment record to a project. Only metadata
	// is stored; the binary object itself lives in the object store under
	// the attachment's Key.
	AddAttachment(ctx context.Context, user, projectID string, attachment *models.ProjectAttachment) error

	// DeleteAttachment removes one attachment record and returns it so the
	// caller can release the underlying object.
	DeleteAttachment(ctx context.Context, user, projectID, attachmentID string) (*models.ProjectAttachment, error)

	// GetFocus returns the focus singleton, nil when nothing is focused.
	GetFocus(ctx context.Context, user string) (*models.FocusState, error)

	// SaveFocus replaces the focus singleton. A nil state clears it.
	SaveFocus(ctx context.Context, user string, focus *models.FocusState) error

	// GetSessions returns all focus sessions for the user.
	GetSessions(ctx context.Context, user string) ([]models.FocusSession, error)

	// SaveSessions replaces the user's entire session history.
	SaveSessions(ctx context.Context, user string, sessions []models.FocusSession) error

	// StartSession opens a new focus session for the task and returns it.
	// Callers are responsible for ending any open session first.
	StartSession(ctx context.Context, user, taskID string) (*models.FocusSession, error)

	// EndActiveSession closes the open session, if any, stamping the reason
	// and crediting the session duration to the task's TotalFocusMs. Ending
	// when no session is open is a no-op.
	EndActiveSession(ctx context.Context, user string, reason models.EndReason) error

	// GetPomodoroLogs returns the user's completed pomodoro cycles.
	GetPomodoroLogs(ctx context.Context, user string) ([]models.PomodoroLog, error)

	// AddPomodoroLog appends a completed cycle.
	AddPomodoroLog(ctx context.Context, user string, log *models.PomodoroLog) error

	// ReplacePomodoroLogs replaces the user's entire pomodoro history.
	ReplacePomodoroLogs(ctx context.Context, user string, logs []models.PomodoroLog) error

	// GetSettings returns the user's settings with defaults filled in for
	// anything never saved.
	GetSettings(ctx context.Context, user string) (models.UserSettings, error)

	// SaveSettings replaces the user's settings.
	SaveSettings(ctx context.Context, user string, settings models.UserSettings) error

	// GetTimer returns the legacy single-timer state. Only the key-blob
	// backend can hold one; the relational backend always returns nil.
	GetTimer(ctx context.Context, user string) (*models.TimerState, error)

	// SaveTimer replaces the legacy timer, nil clears it. A no-op on the
	// relational backend: legacy timers are absorbed into FocusState during
	// migration and never land relationally.
	SaveTimer(ctx context.Context, user string, timer *models.TimerState) error

	// GetRepoInfo returns cached repository metadata for a project, nil when
	// not cached. The cache is key-blob only and never routed to the
	// relational backend.
	GetRepoInfo(ctx context.Context, user, projectID string) (*models.RepoInfo, error)

	// SaveRepoInfo stores repository metadata in the cache.
	SaveRepoInfo(ctx context.Context, user, projectID string, info *models.RepoInfo) error

	// DeleteRepoInfo evicts a project's cached repository metadata.
	DeleteRepoInfo(ctx context.Context, user, projectID string) error

	// FocusTask switches focus to the given task: the open session (if any)
	// ends with reason "switch", a new session starts, and the focus
	// singleton is replaced. Any running pomodoro state is cleared.
	FocusTask(ctx context.Context, user, taskID string) error

	// Unfocus ends the open session with the given reason and clears the
	// focus singleton.
	Unfocus(ctx context.Context, user string, reason models.EndReason) error

	// ToggleTodoWithFocus toggles a todo and, when the todo just became done
	// while being the focused task, also ends the open session with reason
	// "done" and clears focus.
	ToggleTodoWithFocus(ctx context.Context, user, todoID string) error

	// DeleteProjectCascade deletes a project, detaches its todos (ProjectID
	// set to nil, todos survive), evicts its repo-info cache entry, and
	// returns the object-store keys of its attachments so the caller can
	// release the binary objects.
	DeleteProjectCascade(ctx context.Context, user, projectID string) ([]string, error)

	// Migrate creates or updates backend schema. Idempotent.
	Migrate(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// UserScanner enumerates every user with data in a backend. Only the
// key-blob backend implements it; the backfill engine uses it to discover
// who needs copying.
type UserScanner interface {
	// ScanUsers returns the identifiers of all users owning at least one
	// entity document, sorted ascending. The full list is materialized per
	// call; sorting is what makes an offset cursor stable across calls.
	ScanUsers(ctx context.Context) ([]string, error)
}

// Package routing decides, per user and per operation, which storage backend
// serves the application while data migrates from the key-blob store to the
// relational one.
//
// The policy has three layers, checked in order:
//
//  1. Global override: when the configured read source is "relational" and
//     the relational backend is available, everyone reads from it.
//  2. Canary list: users on the list (matched case-insensitively) read from
//     the relational backend ahead of the global cutover.
//  3. Default: everyone else reads from the legacy key-blob store.
//
// Writes land on the backend the user reads from, so each user always sees
// their own writes. With dual-write enabled the same operation is replayed
// against the other backend; a replay failure is logged and swallowed — the
// primary write already succeeded and the parity checker exists to catch the
// resulting drift. Reads never touch the secondary.
//
// The legacy timer and the repository metadata cache are pinned to the
// key-blob store regardless of policy.
package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/focuskeep/focuskeep/pkg/models"
	"github.com/focuskeep/focuskeep/pkg/store"
)

// ReadSource names a backend in routing decisions and log events.
type ReadSource string

const (
	// ReadSourceLegacy is the key-blob store.
	ReadSourceLegacy ReadSource = "legacy"
	// ReadSourceRelational is the relational store.
	ReadSourceRelational ReadSource = "relational"
)

// Config is the routing policy. The zero value routes everything to the
// legacy backend with no mirroring.
type Config struct {
	// ReadSource is the global read source. Anything other than
	// ReadSourceRelational means legacy.
	ReadSource ReadSource
	// DualWrite mirrors every write to the non-primary backend.
	DualWrite bool
	// CanaryUsers read from the relational backend regardless of ReadSource.
	// Matching is case-insensitive.
	CanaryUsers []string
}

// Router implements [store.Backend] by delegating to up to two real backends
// according to the policy. Either backend may be absent; operations fall
// back to whichever one exists.
type Router struct {
	legacy     store.Backend
	relational store.Backend
	cfg        Config
	canary     map[string]struct{}
	log        zerolog.Logger
}

var _ store.Backend = (*Router)(nil)

// New builds a Router over the two backends. Either may be nil, but not both.
func New(legacy, relational store.Backend, cfg Config, log zerolog.Logger) (*Router, error) {
	if legacy == nil && relational == nil {
		return nil, fmt.Errorf("routing: no backend configured: %w", store.ErrStorageUnavailable)
	}
	canary := make(map[string]struct{}, len(cfg.CanaryUsers))
	for _, u := range cfg.CanaryUsers {
		u = strings.ToLower(strings.TrimSpace(u))
		if u != "" {
			canary[u] = struct{}{}
		}
	}
	return &Router{legacy: legacy, relational: relational, cfg: cfg, canary: canary, log: log}, nil
}

// EffectiveReadSource resolves the policy for one user. The relational
// source is only ever chosen when the relational backend is configured.
func (r *Router) EffectiveReadSource(user string) ReadSource {
	if r.relational == nil {
		return ReadSourceLegacy
	}
	if r.cfg.ReadSource == ReadSourceRelational {
		return ReadSourceRelational
	}
	if _, ok := r.canary[strings.ToLower(user)]; ok {
		return ReadSourceRelational
	}
	return ReadSourceLegacy
}

func (r *Router) backendFor(source ReadSource) store.Backend {
	if source == ReadSourceRelational {
		return r.relational
	}
	return r.legacy
}

func read[T any](r *Router, user, op string, fn func(store.Backend) (T, error)) (T, error) {
	var zero T
	source := r.EffectiveReadSource(user)
	if b := r.backendFor(source); b != nil {
		return fn(b)
	}
	// Fall back to whichever backend exists.
	if r.relational != nil {
		return fn(r.relational)
	}
	if r.legacy != nil {
		return fn(r.legacy)
	}
	return zero, fmt.Errorf("read operation %s: %w", op, store.ErrStorageUnavailable)
}

// write runs fn against the user's primary backend, then replays it against
// the secondary when dual-write is on. The secondary result is discarded:
// its failure is logged and swallowed, and for operations that generate
// identifiers each backend generates its own.
func write[T any](r *Router, user, op string, fn func(store.Backend) (T, error)) (T, error) {
	var zero T
	source := r.EffectiveReadSource(user)

	if source == ReadSourceRelational && r.relational != nil {
		result, err := fn(r.relational)
		if err != nil {
			return zero, err
		}
		if r.cfg.DualWrite && r.legacy != nil {
			if _, err := fn(r.legacy); err != nil {
				r.logDualWriteFailure(op, user, ReadSourceRelational, ReadSourceLegacy, err)
			}
		}
		return result, nil
	}

	if r.legacy != nil {
		result, err := fn(r.legacy)
		if err != nil {
			return zero, err
		}
		if r.cfg.DualWrite && r.relational != nil {
			if _, err := fn(r.relational); err != nil {
				r.logDualWriteFailure(op, user, ReadSourceLegacy, ReadSourceRelational, err)
			}
		}
		return result, nil
	}

	if r.relational != nil {
		return fn(r.relational)
	}
	return zero, fmt.Errorf("write operation %s: %w", op, store.ErrStorageUnavailable)
}

// writeErr adapts write for operations without a result value.
func writeErr(r *Router, user, op string, fn func(store.Backend) error) error {
	_, err := write(r, user, op, func(b store.Backend) (struct{}, error) {
		return struct{}{}, fn(b)
	})
	return err
}

// legacyOnly pins a write to the key-blob backend. Pinned data has nowhere
// else to go, so writes fail loudly when the backend is absent.
func legacyOnly[T any](r *Router, op string, fn func(store.Backend) (T, error)) (T, error) {
	if r.legacy == nil {
		var zero T
		return zero, fmt.Errorf("legacy store unavailable for %s: %w", op, store.ErrStorageUnavailable)
	}
	return fn(r.legacy)
}

// legacyRead pins a read to the key-blob backend. Without one the pinned
// data cannot exist, so reads report absence rather than an error.
func legacyRead[T any](r *Router, fn func(store.Backend) (T, error)) (T, error) {
	if r.legacy == nil {
		var zero T
		return zero, nil
	}
	return fn(r.legacy)
}

func (r *Router) logDualWriteFailure(op, user string, primary, secondary ReadSource, err error) {
	r.log.Error().
		Str("event", "storage.dual_write_failure").
		Str("op", op).
		Str("user", user).
		Str("primary", string(primary)).
		Str("secondary", string(secondary)).
		Err(err).
		Msg("dual write to secondary backend failed")
}

// Todos

func (r *Router) GetTodos(ctx context.Context, user string) ([]models.Todo, error) {
	return read(r, user, "GetTodos", func(b store.Backend) ([]models.Todo, error) {
		return b.GetTodos(ctx, user)
	})
}

func (r *Router) SaveTodos(ctx context.Context, user string, todos []models.Todo) error {
	return writeErr(r, user, "SaveTodos", func(b store.Backend) error {
		return b.SaveTodos(ctx, user, todos)
	})
}

func (r *Router) CreateTodo(ctx context.Context, user string, todo *models.Todo) error {
	return writeErr(r, user, "CreateTodo", func(b store.Backend) error {
		return b.CreateTodo(ctx, user, todo)
	})
}

func (r *Router) UpdateTodo(ctx context.Context, user, id string, patch store.TodoPatch) error {
	return writeErr(r, user, "UpdateTodo", func(b store.Backend) error {
		return b.UpdateTodo(ctx, user, id, patch)
	})
}

func (r *Router) ToggleTodo(ctx context.Context, user, id string) error {
	return writeErr(r, user, "ToggleTodo", func(b store.Backend) error {
		return b.ToggleTodo(ctx, user, id)
	})
}

func (r *Router) DeleteTodo(ctx context.Context, user, id string) error {
	return writeErr(r, user, "DeleteTodo", func(b store.Backend) error {
		return b.DeleteTodo(ctx, user, id)
	})
}

func (r *Router) ArchiveTodo(ctx context.Context, user, id string) error {
	return writeErr(r, user, "ArchiveTodo", func(b store.Backend) error {
		return b.ArchiveTodo(ctx, user, id)
	})
}

func (r *Router) UnarchiveTodo(ctx context.Context, user, id string) error {
	return writeErr(r, user, "UnarchiveTodo", func(b store.Backend) error {
		return b.UnarchiveTodo(ctx, user, id)
	})
}

func (r *Router) AddTaskLog(ctx context.Context, user, todoID string, log *models.TaskLog) error {
	return writeErr(r, user, "AddTaskLog", func(b store.Backend) error {
		return b.AddTaskLog(ctx, user, todoID, log)
	})
}

func (r *Router) DeleteTaskLog(ctx context.Context, user, todoID, logID string) error {
	return writeErr(r, user, "DeleteTaskLog", func(b store.Backend) error {
		return b.DeleteTaskLog(ctx, user, todoID, logID)
	})
}

// Projects

func (r *Router) GetProjects(ctx context.Context, user string) ([]models.Project, error) {
	return read(r, user, "GetProjects", func(b store.Backend) ([]models.Project, error) {
		return b.GetProjects(ctx, user)
	})
}

func (r *Router) SaveProjects(ctx context.Context, user string, projects []models.Project) error {
	return writeErr(r, user, "SaveProjects", func(b store.Backend) error {
		return b.SaveProjects(ctx, user, projects)
	})
}

func (r *Router) CreateProject(ctx context.Context, user string, project *models.Project) error {
	return writeErr(r, user, "CreateProject", func(b store.Backend) error {
		return b.CreateProject(ctx, user, project)
	})
}

func (r *Router) UpdateProject(ctx context.Context, user, id string, patch store.ProjectPatch) error {
	return writeErr(r, user, "UpdateProject", func(b store.Backend) error {
		return b.UpdateProject(ctx, user, id, patch)
	})
}

func (r *Router) ArchiveProject(ctx context.Context, user, id string) error {
	return writeErr(r, user, "ArchiveProject", func(b store.Backend) error {
		return b.ArchiveProject(ctx, user, id)
	})
}

func (r *Router) UnarchiveProject(ctx context.Context, user, id string) error {
	return writeErr(r, user, "UnarchiveProject", func(b store.Backend) error {
		return b.UnarchiveProject(ctx, user, id)
	})
}

func (r *Router) AddResource(ctx context.Context, user, projectID string, resource *models.Resource) error {
	return writeErr(r, user, "AddResource", func(b store.Backend) error {
		return b.AddResource(ctx, user, projectID, resource)
	})
}

func (r *Router) DeleteResource(ctx context.Context, user, projectID, resourceID string) error {
	return writeErr(r, user, "DeleteResource", func(b store.Backend) error {
		return b.DeleteResource(ctx, user, projectID, resourceID)
	})
}

func (r *Router) AddAttachment(ctx context.Context, user, projectID string, attachment *models.ProjectAttachment) error {
	return writeErr(r, user, "AddAttachment", func(b store.Backend) error {
		return b.AddAttachment(ctx, user, projectID, attachment)
	})
}

func (r *Router) DeleteAttachment(ctx context.Context, user, projectID, attachmentID string) (*models.ProjectAttachment, error) {
	return write(r, user, "DeleteAttachment", func(b store.Backend) (*models.ProjectAttachment, error) {
		return b.DeleteAttachment(ctx, user, projectID, attachmentID)
	})
}

// Focus

func (r *Router) GetFocus(ctx context.Context, user string) (*models.FocusState, error) {
	return read(r, user, "GetFocus", func(b store.Backend) (*models.FocusState, error) {
		return b.GetFocus(ctx, user)
	})
}

func (r *Router) SaveFocus(ctx context.Context, user string, focus *models.FocusState) error {
	return writeErr(r, user, "SaveFocus", func(b store.Backend) error {
		return b.SaveFocus(ctx, user, focus)
	})
}

// Sessions

func (r *Router) GetSessions(ctx context.Context, user string) ([]models.FocusSession, error) {
	return read(r, user, "GetSessions", func(b store.Backend) ([]models.FocusSession, error) {
		return b.GetSessions(ctx, user)
	})
}

func (r *Router) SaveSessions(ctx context.Context, user string, sessions []models.FocusSession) error {
	return writeErr(r, user, "SaveSessions", func(b store.Backend) error {
		return b.SaveSessions(ctx, user, sessions)
	})
}

func (r *Router) StartSession(ctx context.Context, user, taskID string) (*models.FocusSession, error) {
	return write(r, user, "StartSession", func(b store.Backend) (*models.FocusSession, error) {
		return b.StartSession(ctx, user, taskID)
	})
}

func (r *Router) EndActiveSession(ctx context.Context, user string, reason models.EndReason) error {
	return writeErr(r, user, "EndActiveSession", func(b store.Backend) error {
		return b.EndActiveSession(ctx, user, reason)
	})
}

// Pomodoro logs

func (r *Router) GetPomodoroLogs(ctx context.Context, user string) ([]models.PomodoroLog, error) {
	return read(r, user, "GetPomodoroLogs", func(b store.Backend) ([]models.PomodoroLog, error) {
		return b.GetPomodoroLogs(ctx, user)
	})
}

func (r *Router) AddPomodoroLog(ctx context.Context, user string, log *models.PomodoroLog) error {
	return writeErr(r, user, "AddPomodoroLog", func(b store.Backend) error {
		return b.AddPomodoroLog(ctx, user, log)
	})
}

func (r *Router) ReplacePomodoroLogs(ctx context.Context, user string, logs []models.PomodoroLog) error {
	return writeErr(r, user, "ReplacePomodoroLogs", func(b store.Backend) error {
		return b.ReplacePomodoroLogs(ctx, user, logs)
	})
}

// Settings

func (r *Router) GetSettings(ctx context.Context, user string) (models.UserSettings, error) {
	return read(r, user, "GetSettings", func(b store.Backend) (models.UserSettings, error) {
		return b.GetSettings(ctx, user)
	})
}

func (r *Router) SaveSettings(ctx context.Context, user string, settings models.UserSettings) error {
	return writeErr(r, user, "SaveSettings", func(b store.Backend) error {
		return b.SaveSettings(ctx, user, settings)
	})
}

// Legacy timer and repo-info cache stay on the key-blob store regardless of
// the read source: neither ever migrates. In a relational-only deployment
// the pinned data cannot exist, so reads and deletes come back empty while
// writes still error.

func (r *Router) GetTimer(ctx context.Context, user string) (*models.TimerState, error) {
	return legacyRead(r, func(b store.Backend) (*models.TimerState, error) {
		return b.GetTimer(ctx, user)
	})
}

func (r *Router) SaveTimer(ctx context.Context, user string, timer *models.TimerState) error {
	_, err := legacyOnly(r, "SaveTimer", func(b store.Backend) (struct{}, error) {
		return struct{}{}, b.SaveTimer(ctx, user, timer)
	})
	return err
}

func (r *Router) GetRepoInfo(ctx context.Context, user, projectID string) (*models.RepoInfo, error) {
	return legacyRead(r, func(b store.Backend) (*models.RepoInfo, error) {
		return b.GetRepoInfo(ctx, user, projectID)
	})
}

func (r *Router) SaveRepoInfo(ctx context.Context, user, projectID string, info *models.RepoInfo) error {
	_, err := legacyOnly(r, "SaveRepoInfo", func(b store.Backend) (struct{}, error) {
		return struct{}{}, b.SaveRepoInfo(ctx, user, projectID, info)
	})
	return err
}

func (r *Router) DeleteRepoInfo(ctx context.Context, user, projectID string) error {
	// Deleting what cannot exist is a no-op, like any other absent delete.
	_, err := legacyRead(r, func(b store.Backend) (struct{}, error) {
		return struct{}{}, b.DeleteRepoInfo(ctx, user, projectID)
	})
	return err
}

// Composite operations route like any other write: the primary backend runs
// the whole composite, and with dual-write on the secondary replays the same
// composite with its own atomicity characteristics.

func (r *Router) FocusTask(ctx context.Context, user, taskID string) error {
	return writeErr(r, user, "FocusTask", func(b store.Backend) error {
		return b.FocusTask(ctx, user, taskID)
	})
}

func (r *Router) Unfocus(ctx context.Context, user string, reason models.EndReason) error {
	return writeErr(r, user, "Unfocus", func(b store.Backend) error {
		return b.Unfocus(ctx, user, reason)
	})
}

func (r *Router) ToggleTodoWithFocus(ctx context.Context, user, todoID string) error {
	return writeErr(r, user, "ToggleTodoWithFocus", func(b store.Backend) error {
		return b.ToggleTodoWithFocus(ctx, user, todoID)
	})
}

func (r *Router) DeleteProjectCascade(ctx context.Context, user, projectID string) ([]string, error) {
	return write(r, user, "DeleteProjectCascade", func(b store.Backend) ([]string, error) {
		return b.DeleteProjectCascade(ctx, user, projectID)
	})
}

// Migrate prepares schema on every configured backend.
func (r *Router) Migrate(ctx context.Context) error {
	if r.legacy != nil {
		if err := r.legacy.Migrate(ctx); err != nil {
			return err
		}
	}
	if r.relational != nil {
		if err := r.relational.Migrate(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every configured backend.
func (r *Router) Close() error {
	var errs []error
	if r.legacy != nil {
		errs = append(errs, r.legacy.Close())
	}
	if r.relational != nil {
		errs = append(errs, r.relational.Close())
	}
	return errors.Join(errs...)
}

// Package kvblob implements [store.Backend] over a schemaless key-blob host.
//
// Each (collection, user) pair maps to one JSON document holding everything
// the user has in that category: the todos document is the full todo list,
// the focus document is the focus singleton, and so on. Every mutation is a
// read-modify-write cycle on the whole document. There is no atomicity across
// documents; composite operations execute as ordered sequences and a failure
// mid-sequence leaves partial state for the parity checker to find.
//
// The host is abstracted behind the small [KV] interface so the adapter logic
// is independent of where the blobs live. Production uses [NewSurrealKV];
// tests run the identical adapter code over an in-memory map.
package kvblob

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/focuskeep/focuskeep/pkg/models"
	"github.com/focuskeep/focuskeep/pkg/store"
)

// KV is the minimal key-blob host contract: whole-value access by
// (collection, key) plus paginated key listing per collection.
type KV interface {
	// Get returns the stored blob, or nil when the key does not exist.
	Get(ctx context.Context, collection, key string) ([]byte, error)
	// Put stores the blob, replacing any existing value.
	Put(ctx context.Context, collection, key string, value []byte) error
	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, collection, key string) error
	// Keys returns one page of key names in the collection, sorted
	// ascending, starting at the given offset.
	Keys(ctx context.Context, collection string, limit, offset int) ([]string, error)
	// Close releases the underlying connection.
	Close() error
}

// Collection names. The first seven are per-user entity documents keyed by
// the user identifier; collGithub is a cache keyed user:projectID and is
// excluded from user discovery.
const (
	collTodos     = "todos"
	collProjects  = "projects"
	collSessions  = "sessions"
	collPomodoros = "pomodoros"
	collSettings  = "settings"
	collFocus     = "focus"
	collTimer     = "timer"
	collGithub    = "github"
)

// entityCollections are the namespaces scanned for user discovery.
var entityCollections = []string{
	collTodos, collPomodoros, collFocus, collSessions, collProjects, collSettings, collTimer,
}

const scanPageSize = 1000

// Store implements [store.Backend] over a [KV] host.
type Store struct {
	kv KV
}

var _ store.Backend = (*Store)(nil)
var _ store.UserScanner = (*Store)(nil)

// New creates a key-blob backend over the given host.
func New(kv KV) *Store {
	return &Store{kv: kv}
}

// Migrate is a no-op: the key-blob host is schemaless and documents are
// created on first write.
func (s *Store) Migrate(ctx context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return s.kv.Close()
}

func getList[T any](ctx context.Context, kv KV, collection, key string) ([]T, error) {
	data, err := kv.Get(ctx, collection, key)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", collection, err)
	}
	if data == nil {
		return nil, nil
	}
	var list []T
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode %s blob: %w", collection, err)
	}
	return list, nil
}

func getDoc[T any](ctx context.Context, kv KV, collection, key string) (*T, error) {
	data, err := kv.Get(ctx, collection, key)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", collection, err)
	}
	if data == nil {
		return nil, nil
	}
	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s blob: %w", collection, err)
	}
	return &doc, nil
}

func putJSON(ctx context.Context, kv KV, collection, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s blob: %w", collection, err)
	}
	if err := kv.Put(ctx, collection, key, data); err != nil {
		return fmt.Errorf("put %s: %w", collection, err)
	}
	return nil
}

// Todos

func (s *Store) GetTodos(ctx context.Context, user string) ([]models.Todo, error) {
	return getList[models.Todo](ctx, s.kv, collTodos, user)
}

func (s *Store) SaveTodos(ctx context.Context, user string, todos []models.Todo) error {
	if todos == nil {
		todos = []models.Todo{}
	}
	return putJSON(ctx, s.kv, collTodos, user, todos)
}

func (s *Store) CreateTodo(ctx context.Context, user string, todo *models.Todo) error {
	if todo.ID == "" {
		todo.ID = models.NewID()
	}
	if todo.CreatedAt == 0 {
		todo.CreatedAt = models.NowMs()
	}
	todos, err := s.GetTodos(ctx, user)
	if err != nil {
		return err
	}
	// Newest first inside the blob.
	todos = append([]models.Todo{*todo}, todos...)
	return s.SaveTodos(ctx, user, todos)
}

func (s *Store) UpdateTodo(ctx context.Context, user, id string, patch store.TodoPatch) error {
	todos, err := s.GetTodos(ctx, user)
	if err != nil {
		return err
	}
	i := findTodo(todos, id)
	if i < 0 {
		return fmt.Errorf("update todo %s: %w", id, store.ErrNotFound)
	}
	applyTodoPatch(&todos[i], patch)
	return s.SaveTodos(ctx, user, todos)
}

func applyTodoPatch(todo *models.Todo, patch store.TodoPatch) {
	if patch.Title != nil && *patch.Title != "" {
		todo.Title = *patch.Title
	}
	if patch.Detail != nil {
		if *patch.Detail != "" {
			todo.Detail = patch.Detail
		} else {
			todo.Detail = nil
		}
	}
	if patch.Deadline != nil {
		if *patch.Deadline != 0 {
			todo.Deadline = patch.Deadline
		} else {
			todo.Deadline = nil
		}
	}
	if patch.ProjectID != nil {
		if *patch.ProjectID != "" {
			todo.ProjectID = patch.ProjectID
		} else {
			todo.ProjectID = nil
		}
	}
}

func (s *Store) ToggleTodo(ctx context.Context, user, id string) error {
	todos, err := s.GetTodos(ctx, user)
	if err != nil {
		return err
	}
	i := findTodo(todos, id)
	if i < 0 {
		return fmt.Errorf("toggle todo %s: %w", id, store.ErrNotFound)
	}
	todos[i].Done = !todos[i].Done
	return s.SaveTodos(ctx, user, todos)
}

func (s *Store) DeleteTodo(ctx context.Context, user, id string) error {
	todos, err := s.GetTodos(ctx, user)
	if err != nil {
		return err
	}
	kept := todos[:0]
	for _, t := range todos {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	return s.SaveTodos(ctx, user, kept)
}

func (s *Store) ArchiveTodo(ctx context.Context, user, id string) error {
	todos, err := s.GetTodos(ctx, user)
	if err != nil {
		return err
	}
	i := findTodo(todos, id)
	if i < 0 {
		return fmt.Errorf("archive todo %s: %w", id, store.ErrNotFound)
	}
	now := models.NowMs()
	todos[i].Archived = true
	todos[i].ArchivedAt = &now
	return s.SaveTodos(ctx, user, todos)
}

func (s *Store) UnarchiveTodo(ctx context.Context, user, id string) error {
	todos, err := s.GetTodos(ctx, user)
	if err != nil {
		return err
	}
	i := findTodo(todos, id)
	if i < 0 {
		return fmt.Errorf("unarchive todo %s: %w", id, store.ErrNotFound)
	}
	todos[i].Archived = false
	todos[i].ArchivedAt = nil
	todos[i].Done = false
	return s.SaveTodos(ctx, user, todos)
}

func (s *Store) AddTaskLog(ctx context.Context, user, todoID string, log *models.TaskLog) error {
	todos, err := s.GetTodos(ctx, user)
	if err != nil {
		return err
	}
	i := findTodo(todos, todoID)
	if i < 0 {
		return fmt.Errorf("add log to todo %s: %w", todoID, store.ErrNotFound)
	}
	if log.ID == "" {
		log.ID = models.NewID()
	}
	if log.CreatedAt == 0 {
		log.CreatedAt = models.NowMs()
	}
	todos[i].Logs = append(todos[i].Logs, *log)
	return s.SaveTodos(ctx, user, todos)
}

func (s *Store) DeleteTaskLog(ctx context.Context, user, todoID, logID string) error {
	todos, err := s.GetTodos(ctx, user)
	if err != nil {
		return err
	}
	i := findTodo(todos, todoID)
	if i < 0 || todos[i].Logs == nil {
		return nil
	}
	kept := todos[i].Logs[:0]
	for _, l := range todos[i].Logs {
		if l.ID != logID {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		kept = nil
	}
	todos[i].Logs = kept
	return s.SaveTodos(ctx, user, todos)
}

func findTodo(todos []models.Todo, id string) int {
	for i := range todos {
		if todos[i].ID == id {
			return i
		}
	}
	return -1
}

// Projects

// compactProject drops empty optionals so the stored document never carries
// empty strings or empty sub-lists. Historical blobs written by older code
// do carry them, so reads compact too.
func compactProject(p models.Project) models.Project {
	p.Detail = compactString(p.Detail)
	p.GithubRepo = compactString(p.GithubRepo)
	if len(p.Resources) == 0 {
		p.Resources = nil
	}
	if len(p.Attachments) == 0 {
		p.Attachments = nil
	}
	if !p.Archived {
		p.ArchivedAt = nil
	}
	return p
}

func compactString(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func (s *Store) GetProjects(ctx context.Context, user string) ([]models.Project, error) {
	projects, err := getList[models.Project](ctx, s.kv, collProjects, user)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		projects[i] = compactProject(projects[i])
	}
	return projects, nil
}

func (s *Store) SaveProjects(ctx context.Context, user string, projects []models.Project) error {
	compacted := make([]models.Project, len(projects))
	for i, p := range projects {
		compacted[i] = compactProject(p)
	}
	return putJSON(ctx, s.kv, collProjects, user, compacted)
}

func (s *Store) CreateProject(ctx context.Context, user string, project *models.Project) error {
	if project.ID == "" {
		project.ID = models.NewID()
	}
	if project.CreatedAt == 0 {
		project.CreatedAt = models.NowMs()
	}
	projects, err := s.GetProjects(ctx, user)
	if err != nil {
		return err
	}
	projects = append(projects, *project)
	return s.SaveProjects(ctx, user, projects)
}

func (s *Store) UpdateProject(ctx context.Context, user, id string, patch store.ProjectPatch) error {
	projects, err := s.GetProjects(ctx, user)
	if err != nil {
		return err
	}
	i := findProject(projects, id)
	if i < 0 {
		return fmt.Errorf("update project %s: %w", id, store.ErrNotFound)
	}
	if patch.Name != nil && *patch.Name != "" {
		projects[i].Name = *patch.Name
	}
	if patch.Detail != nil {
		if *patch.Detail != "" {
			projects[i].Detail = patch.Detail
		} else {
			projects[i].Detail = nil
		}
	}
	if patch.GithubRepo != nil {
		if *patch.GithubRepo != "" {
			projects[i].GithubRepo = patch.GithubRepo
		} else {
			projects[i].GithubRepo = nil
		}
	}
	return s.SaveProjects(ctx, user, projects)
}

func (s *Store) ArchiveProject(ctx context.Context, user, id string) error {
	projects, err := s.GetProjects(ctx, user)
	if err != nil {
		return err
	}
	i := findProject(projects, id)
	if i < 0 {
		return fmt.Errorf("archive project %s: %w", id, store.ErrNotFound)
	}
	now := models.NowMs()
	projects[i].Archived = true
	projects[i].ArchivedAt = &now
	return s.SaveProjects(ctx, user, projects)
}

func (s *Store) UnarchiveProject(ctx context.Context, user, id string) error {
	projects, err := s.GetProjects(ctx, user)
	if err != nil {
		return err
	}
	i := findProject(projects, id)
	if i < 0 {
		return fmt.Errorf("unarchive project %s: %w", id, store.ErrNotFound)
	}
	projects[i].Archived = false
	projects[i].ArchivedAt = nil
	return s.SaveProjects(ctx, user, projects)
}

func (s *Store) AddResource(ctx context.Context, user, projectID string, resource *models.Resource) error {
	projects, err := s.GetProjects(ctx, user)
	if err != nil {
		return err
	}
	i := findProject(projects, projectID)
	if i < 0 {
		return fmt.Errorf("add resource to project %s: %w", projectID, store.ErrNotFound)
	}
	if resource.ID == "" {
		resource.ID = models.NewID()
	}
	if resource.CreatedAt == 0 {
		resource.CreatedAt = models.NowMs()
	}
	projects[i].Resources = append(projects[i].Resources, *resource)
	return s.SaveProjects(ctx, user, projects)
}

func (s *Store) DeleteResource(ctx context.Context, user, projectID, resourceID string) error {
	projects, err := s.GetProjects(ctx, user)
	if err != nil {
		return err
	}
	i := findProject(projects, projectID)
	if i < 0 {
		return nil
	}
	kept := projects[i].Resources[:0]
	for _, r := range projects[i].Resources {
		if r.ID != resourceID {
			kept = append(kept, r)
		}
	}
	projects[i].Resources = kept
	return s.SaveProjects(ctx, user, projects)
}

func (s *Store) AddAttachment(ctx context.Context, user, projectID string, attachment *models.ProjectAttachment) error {
	projects, err := s.GetProjects(ctx, user)
	if err != nil {
		return err
	}
	i := findProject(projects, projectID)
	if i < 0 {
		return fmt.Errorf("add attachment to project %s: %w", projectID, store.ErrNotFound)
	}
	if attachment.ID == "" {
		attachment.ID = models.NewID()
	}
	if attachment.CreatedAt == 0 {
		attachment.CreatedAt = models.NowMs()
	}
	projects[i].Attachments = append(projects[i].Attachments, *attachment)
	return s.SaveProjects(ctx, user, projects)
}

func (s *Store) DeleteAttachment(ctx context.Context, user, projectID, attachmentID string) (*models.ProjectAttachment, error) {
	projects, err := s.GetProjects(ctx, user)
	if err != nil {
		return nil, err
	}
	i := findProject(projects, projectID)
	if i < 0 {
		return nil, nil
	}
	var removed *models.ProjectAttachment
	kept := projects[i].Attachments[:0]
	for _, a := range projects[i].Attachments {
		if a.ID == attachmentID {
			a := a
			removed = &a
			continue
		}
		kept = append(kept, a)
	}
	projects[i].Attachments = kept
	if err := s.SaveProjects(ctx, user, projects); err != nil {
		return nil, err
	}
	return removed, nil
}

func findProject(projects []models.Project, id string) int {
	for i := range projects {
		if projects[i].ID == id {
			return i
		}
	}
	return -1
}

// Focus and sessions

func (s *Store) GetFocus(ctx context.Context, user string) (*models.FocusState, error) {
	return getDoc[models.FocusState](ctx, s.kv, collFocus, user)
}

func (s *Store) SaveFocus(ctx context.Context, user string, focus *models.FocusState) error {
	if focus == nil {
		if err := s.kv.Delete(ctx, collFocus, user); err != nil {
			return fmt.Errorf("delete focus: %w", err)
		}
		return nil
	}
	return putJSON(ctx, s.kv, collFocus, user, focus)
}

func (s *Store) GetSessions(ctx context.Context, user string) ([]models.FocusSession, error) {
	return getList[models.FocusSession](ctx, s.kv, collSessions, user)
}

func (s *Store) SaveSessions(ctx context.Context, user string, sessions []models.FocusSession) error {
	if sessions == nil {
		sessions = []models.FocusSession{}
	}
	return putJSON(ctx, s.kv, collSessions, user, sessions)
}

func (s *Store) StartSession(ctx context.Context, user, taskID string) (*models.FocusSession, error) {
	sessions, err := s.GetSessions(ctx, user)
	if err != nil {
		return nil, err
	}
	session := models.FocusSession{
		ID:        models.NewID(),
		TaskID:    taskID,
		StartedAt: models.NowMs(),
	}
	sessions = append(sessions, session)
	if err := s.SaveSessions(ctx, user, sessions); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Store) EndActiveSession(ctx context.Context, user string, reason models.EndReason) error {
	sessions, err := s.GetSessions(ctx, user)
	if err != nil {
		return err
	}
	var active *models.FocusSession
	for i := range sessions {
		if sessions[i].EndedAt == nil {
			active = &sessions[i]
			break
		}
	}
	if active == nil {
		return nil
	}
	endedAt := models.NowMs()
	active.EndedAt = &endedAt
	active.EndReason = &reason
	if err := s.SaveSessions(ctx, user, sessions); err != nil {
		return err
	}

	// Credit the focus time to the task.
	duration := endedAt - active.StartedAt
	todos, err := s.GetTodos(ctx, user)
	if err != nil {
		return err
	}
	if i := findTodo(todos, active.TaskID); i >= 0 {
		total := duration
		if todos[i].TotalFocusMs != nil {
			total += *todos[i].TotalFocusMs
		}
		todos[i].TotalFocusMs = &total
		return s.SaveTodos(ctx, user, todos)
	}
	return nil
}

// Pomodoro logs

func (s *Store) GetPomodoroLogs(ctx context.Context, user string) ([]models.PomodoroLog, error) {
	return getList[models.PomodoroLog](ctx, s.kv, collPomodoros, user)
}

func (s *Store) AddPomodoroLog(ctx context.Context, user string, log *models.PomodoroLog) error {
	logs, err := s.GetPomodoroLogs(ctx, user)
	if err != nil {
		return err
	}
	if log.CompletedAt == 0 {
		log.CompletedAt = models.NowMs()
	}
	logs = append(logs, *log)
	return s.ReplacePomodoroLogs(ctx, user, logs)
}

func (s *Store) ReplacePomodoroLogs(ctx context.Context, user string, logs []models.PomodoroLog) error {
	if logs == nil {
		logs = []models.PomodoroLog{}
	}
	return putJSON(ctx, s.kv, collPomodoros, user, logs)
}

// Settings

func (s *Store) GetSettings(ctx context.Context, user string) (models.UserSettings, error) {
	stored, err := getDoc[models.UserSettings](ctx, s.kv, collSettings, user)
	if err != nil {
		return models.UserSettings{}, err
	}
	return models.NormalizeSettings(stored), nil
}

func (s *Store) SaveSettings(ctx context.Context, user string, settings models.UserSettings) error {
	return putJSON(ctx, s.kv, collSettings, user, settings)
}

// Legacy timer

func (s *Store) GetTimer(ctx context.Context, user string) (*models.TimerState, error) {
	return getDoc[models.TimerState](ctx, s.kv, collTimer, user)
}

func (s *Store) SaveTimer(ctx context.Context, user string, timer *models.TimerState) error {
	if timer == nil {
		if err := s.kv.Delete(ctx, collTimer, user); err != nil {
			return fmt.Errorf("delete timer: %w", err)
		}
		return nil
	}
	return putJSON(ctx, s.kv, collTimer, user, timer)
}

// Repo info cache

func githubKey(user, projectID string) string {
	return user + ":" + projectID
}

func (s *Store) GetRepoInfo(ctx context.Context, user, projectID string) (*models.RepoInfo, error) {
	return getDoc[models.RepoInfo](ctx, s.kv, collGithub, githubKey(user, projectID))
}

func (s *Store) SaveRepoInfo(ctx context.Context, user, projectID string, info *models.RepoInfo) error {
	return putJSON(ctx, s.kv, collGithub, githubKey(user, projectID), info)
}

func (s *Store) DeleteRepoInfo(ctx context.Context, user, projectID string) error {
	if err := s.kv.Delete(ctx, collGithub, githubKey(user, projectID)); err != nil {
		return fmt.Errorf("delete repo info: %w", err)
	}
	return nil
}

// Composite operations. Ordered best-effort sequences: the session document
// is settled before the focus document so that an interrupted switch leaves
// a closed session rather than a dangling open one.

func (s *Store) FocusTask(ctx context.Context, user, taskID string) error {
	if err := s.EndActiveSession(ctx, user, models.EndReasonSwitch); err != nil {
		return fmt.Errorf("focus task: end active session: %w", err)
	}
	if _, err := s.StartSession(ctx, user, taskID); err != nil {
		return fmt.Errorf("focus task: start session: %w", err)
	}
	focus := &models.FocusState{ActiveTaskID: taskID, FocusedAt: models.NowMs()}
	if err := s.SaveFocus(ctx, user, focus); err != nil {
		return fmt.Errorf("focus task: save focus: %w", err)
	}
	return nil
}

func (s *Store) Unfocus(ctx context.Context, user string, reason models.EndReason) error {
	if err := s.EndActiveSession(ctx, user, reason); err != nil {
		return fmt.Errorf("unfocus: end active session: %w", err)
	}
	if err := s.SaveFocus(ctx, user, nil); err != nil {
		return fmt.Errorf("unfocus: clear focus: %w", err)
	}
	return nil
}

func (s *Store) ToggleTodoWithFocus(ctx context.Context, user, todoID string) error {
	todos, err := s.GetTodos(ctx, user)
	if err != nil {
		return err
	}
	i := findTodo(todos, todoID)
	if i < 0 {
		return fmt.Errorf("toggle todo %s: %w", todoID, store.ErrNotFound)
	}
	todos[i].Done = !todos[i].Done
	nowDone := todos[i].Done.Bool()
	if err := s.SaveTodos(ctx, user, todos); err != nil {
		return err
	}
	if !nowDone {
		return nil
	}
	focus, err := s.GetFocus(ctx, user)
	if err != nil {
		return err
	}
	if focus == nil || focus.ActiveTaskID != todoID {
		return nil
	}
	if err := s.EndActiveSession(ctx, user, models.EndReasonDone); err != nil {
		return err
	}
	return s.SaveFocus(ctx, user, nil)
}

func (s *Store) DeleteProjectCascade(ctx context.Context, user, projectID string) ([]string, error) {
	projects, err := s.GetProjects(ctx, user)
	if err != nil {
		return nil, err
	}
	var attachmentKeys []string
	kept := projects[:0]
	for _, p := range projects {
		if p.ID != projectID {
			kept = append(kept, p)
			continue
		}
		for _, a := range p.Attachments {
			if a.Key != nil && *a.Key != "" {
				attachmentKeys = append(attachmentKeys, *a.Key)
			}
		}
	}
	if err := s.SaveProjects(ctx, user, kept); err != nil {
		return nil, err
	}

	todos, err := s.GetTodos(ctx, user)
	if err != nil {
		return nil, err
	}
	changed := false
	for i := range todos {
		if todos[i].ProjectID != nil && *todos[i].ProjectID == projectID {
			todos[i].ProjectID = nil
			changed = true
		}
	}
	if changed {
		if err := s.SaveTodos(ctx, user, todos); err != nil {
			return nil, err
		}
	}

	if err := s.DeleteRepoInfo(ctx, user, projectID); err != nil {
		return nil, err
	}
	return attachmentKeys, nil
}

// ScanUsers pages every entity collection's key namespace and unions the
// owners. The result is sorted so that offset cursors taken against it stay
// stable across invocations.
func (s *Store) ScanUsers(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, coll := range entityCollections {
		offset := 0
		for {
			keys, err := s.kv.Keys(ctx, coll, scanPageSize, offset)
			if err != nil {
				return nil, fmt.Errorf("scan %s keys: %w", coll, err)
			}
			for _, k := range keys {
				if k != "" {
					seen[k] = struct{}{}
				}
			}
			if len(keys) < scanPageSize {
				break
			}
			offset += len(keys)
		}
	}
	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}

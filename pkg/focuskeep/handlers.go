package focuskeep

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/focuskeep/focuskeep/pkg/models"
	"github.com/focuskeep/focuskeep/pkg/objstore"
	"github.com/focuskeep/focuskeep/pkg/store"
)

type contextKey string

const userContextKey contextKey = "user"

// requireUser resolves the acting user from the X-User header, set by the
// trusted upstream proxy, and rejects requests without one.
func (a *App) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get("X-User")
		if user == "" {
			respondError(w, http.StatusUnauthorized, "Missing X-User header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	})
}

func requestUser(r *http.Request) string {
	user, _ := r.Context().Value(userContextKey).(string)
	return user
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_, _ = w.Write(response)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError maps storage errors onto HTTP statuses.
func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrStorageUnavailable):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"read_source": a.config.ReadSource,
		"dual_write":  a.config.DualWrite,
		"time":        time.Now().Unix(),
	})
}

// State aggregate

type stateResponse struct {
	Todos        []models.Todo         `json:"todos"`
	Projects     []models.Project      `json:"projects"`
	Sessions     []models.FocusSession `json:"sessions"`
	PomodoroLogs []models.PomodoroLog  `json:"pomodoroLogs"`
	Settings     models.UserSettings   `json:"settings"`
	Focus        *models.FocusState    `json:"focus"`
}

// handleGetState returns everything the client needs in one round trip.
// It is also where the legacy timer gets migrated lazily: a user whose
// focus state is absent but who still has an old single-timer document has
// a FocusState synthesized, persisted, and the timer cleared, so the legacy
// shape dies out one user at a time regardless of backfill progress.
func (a *App) handleGetState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := requestUser(r)

	todos, err := a.router.GetTodos(ctx, user)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	projects, err := a.router.GetProjects(ctx, user)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	sessions, err := a.router.GetSessions(ctx, user)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	pomodoros, err := a.router.GetPomodoroLogs(ctx, user)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	settings, err := a.router.GetSettings(ctx, user)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	focus, err := a.migrateTimerOnRead(ctx, user)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stateResponse{
		Todos:        todos,
		Projects:     projects,
		Sessions:     sessions,
		PomodoroLogs: pomodoros,
		Settings:     settings,
		Focus:        focus,
	})
}

// migrateTimerOnRead returns the user's focus state, absorbing a legacy
// timer into a synthesized FocusState when no focus state exists yet. The
// synthesized state is persisted and the timer retired, making the
// migration idempotent whether it happens here or during backfill.
func (a *App) migrateTimerOnRead(ctx context.Context, user string) (*models.FocusState, error) {
	focus, err := a.router.GetFocus(ctx, user)
	if err != nil {
		return nil, err
	}
	if focus != nil {
		return focus, nil
	}
	timer, err := a.router.GetTimer(ctx, user)
	if err != nil || timer == nil {
		return nil, err
	}
	migrated := models.MigrateLegacyTimer(nil, timer)
	if err := a.router.SaveFocus(ctx, user, migrated); err != nil {
		return nil, err
	}
	if err := a.router.SaveTimer(ctx, user, nil); err != nil {
		return nil, err
	}
	return migrated, nil
}

// Todos

func (a *App) handleGetTodos(w http.ResponseWriter, r *http.Request) {
	todos, err := a.router.GetTodos(r.Context(), requestUser(r))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, todos)
}

func (a *App) handleCreateTodo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title     string  `json:"title"`
		Detail    *string `json:"detail"`
		Deadline  *int64  `json:"deadline"`
		ProjectID *string `json:"projectId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Title == "" {
		respondError(w, http.StatusBadRequest, "Title is required")
		return
	}

	todo := models.Todo{
		Title:     req.Title,
		Detail:    req.Detail,
		Deadline:  req.Deadline,
		ProjectID: req.ProjectID,
	}
	if err := a.router.CreateTodo(r.Context(), requestUser(r), &todo); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, todo)
}

func (a *App) handleUpdateTodo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title     *string `json:"title"`
		Detail    *string `json:"detail"`
		Deadline  *int64  `json:"deadline"`
		ProjectID *string `json:"projectId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	patch := store.TodoPatch{
		Title:     req.Title,
		Detail:    req.Detail,
		Deadline:  req.Deadline,
		ProjectID: req.ProjectID,
	}
	if err := a.router.UpdateTodo(r.Context(), requestUser(r), mux.Vars(r)["id"], patch); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleDeleteTodo removes a todo, first releasing focus when the deleted
// todo is the focused one so no dangling focus state survives it.
func (a *App) handleDeleteTodo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := requestUser(r)
	id := mux.Vars(r)["id"]

	focus, err := a.router.GetFocus(ctx, user)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if focus != nil && focus.ActiveTaskID == id {
		if err := a.router.Unfocus(ctx, user, models.EndReasonManual); err != nil {
			respondStoreError(w, err)
			return
		}
	}
	if err := a.router.DeleteTodo(ctx, user, id); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) handleToggleTodo(w http.ResponseWriter, r *http.Request) {
	if err := a.router.ToggleTodoWithFocus(r.Context(), requestUser(r), mux.Vars(r)["id"]); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) handleArchiveTodo(w http.ResponseWriter, r *http.Request) {
	if err := a.router.ArchiveTodo(r.Context(), requestUser(r), mux.Vars(r)["id"]); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) handleUnarchiveTodo(w http.ResponseWriter, r *http.Request) {
	if err := a.router.UnarchiveTodo(r.Context(), requestUser(r), mux.Vars(r)["id"]); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) handleAddTaskLog(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "Text is required")
		return
	}
	log := models.TaskLog{Text: req.Text}
	if err := a.router.AddTaskLog(r.Context(), requestUser(r), mux.Vars(r)["id"], &log); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, log)
}

func (a *App) handleDeleteTaskLog(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := a.router.DeleteTaskLog(r.Context(), requestUser(r), vars["id"], vars["logId"]); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Projects

func (a *App) handleGetProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := a.router.GetProjects(r.Context(), requestUser(r))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, projects)
}

func (a *App) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string  `json:"name"`
		Detail     *string `json:"detail"`
		GithubRepo *string `json:"githubRepo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "Name is required")
		return
	}
	project := models.Project{
		Name:       req.Name,
		Detail:     req.Detail,
		GithubRepo: req.GithubRepo,
	}
	if err := a.router.CreateProject(r.Context(), requestUser(r), &project); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, project)
}

func (a *App) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       *string `json:"name"`
		Detail     *string `json:"detail"`
		GithubRepo *string `json:"githubRepo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	patch := store.ProjectPatch{
		Name:       req.Name,
		Detail:     req.Detail,
		GithubRepo: req.GithubRepo,
	}
	if err := a.router.UpdateProject(r.Context(), requestUser(r), mux.Vars(r)["id"], patch); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleDeleteProject cascades: the project goes with its resources and
// attachment records, its todos are detached, and the attachment binaries
// are released from the object store using the keys the cascade returns.
func (a *App) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	keys, err := a.router.DeleteProjectCascade(ctx, requestUser(r), mux.Vars(r)["id"])
	if err != nil {
		respondStoreError(w, err)
		return
	}
	for _, key := range keys {
		if err := a.objects.Delete(ctx, key); err != nil {
			a.log.Warn().Str("key", key).Err(err).Msg("failed to release attachment object")
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "releasedObjects": len(keys)})
}

func (a *App) handleArchiveProject(w http.ResponseWriter, r *http.Request) {
	if err := a.router.ArchiveProject(r.Context(), requestUser(r), mux.Vars(r)["id"]); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) handleUnarchiveProject(w http.ResponseWriter, r *http.Request) {
	if err := a.router.UnarchiveProject(r.Context(), requestUser(r), mux.Vars(r)["id"]); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) handleAddResource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL   string  `json:"url"`
		Label *string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "URL is required")
		return
	}
	resource := models.Resource{URL: req.URL, Label: req.Label}
	if err := a.router.AddResource(r.Context(), requestUser(r), mux.Vars(r)["id"], &resource); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, resource)
}

func (a *App) handleDeleteResource(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := a.router.DeleteResource(r.Context(), requestUser(r), vars["id"], vars["resourceId"]); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleAddAttachment stores attachment metadata and, when the request
// carries content, the bytes themselves under a generated object key.
func (a *App) handleAddAttachment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string  `json:"name"`
		URL         string  `json:"url"`
		ContentType *string `json:"contentType"`
		Size        *int64  `json:"size"`
		Content     []byte  `json:"content"` // base64 in JSON
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "Name is required")
		return
	}

	ctx := r.Context()
	attachment := models.ProjectAttachment{
		Name:        req.Name,
		URL:         req.URL,
		ContentType: req.ContentType,
		Size:        req.Size,
	}
	if len(req.Content) > 0 {
		key := models.NewID()
		contentType := "application/octet-stream"
		if req.ContentType != nil {
			contentType = *req.ContentType
		}
		if err := a.objects.Put(ctx, key, objstore.Object{Data: req.Content, ContentType: contentType}); err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		attachment.Key = &key
		if attachment.Size == nil {
			size := int64(len(req.Content))
			attachment.Size = &size
		}
	}

	if err := a.router.AddAttachment(ctx, requestUser(r), mux.Vars(r)["id"], &attachment); err != nil {
		if attachment.Key != nil {
			_ = a.objects.Delete(ctx, *attachment.Key)
		}
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, attachment)
}

func (a *App) handleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	removed, err := a.router.DeleteAttachment(ctx, requestUser(r), vars["id"], vars["attachmentId"])
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if removed != nil && removed.Key != nil {
		if err := a.objects.Delete(ctx, *removed.Key); err != nil {
			a.log.Warn().Str("key", *removed.Key).Err(err).Msg("failed to release attachment object")
		}
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) handleGetAttachmentContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	projects, err := a.router.GetProjects(ctx, requestUser(r))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	var key string
	for _, p := range projects {
		if p.ID != vars["id"] {
			continue
		}
		for _, att := range p.Attachments {
			if att.ID == vars["attachmentId"] && att.Key != nil {
				key = *att.Key
			}
		}
	}
	if key == "" {
		respondError(w, http.StatusNotFound, "Attachment content not found")
		return
	}
	obj, err := a.objects.Get(ctx, key)
	if err != nil {
		if errors.Is(err, objstore.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Attachment content not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.Data)
}

// Repo info cache

func (a *App) handleGetRepoInfo(w http.ResponseWriter, r *http.Request) {
	info, err := a.router.GetRepoInfo(r.Context(), requestUser(r), mux.Vars(r)["id"])
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if info == nil {
		respondError(w, http.StatusNotFound, "No cached repository info")
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (a *App) handleSaveRepoInfo(w http.ResponseWriter, r *http.Request) {
	var info models.RepoInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if info.FetchedAt == 0 {
		info.FetchedAt = models.NowMs()
	}
	if err := a.router.SaveRepoInfo(r.Context(), requestUser(r), mux.Vars(r)["id"], &info); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// Focus

func (a *App) handleGetFocus(w http.ResponseWriter, r *http.Request) {
	focus, err := a.migrateTimerOnRead(r.Context(), requestUser(r))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, focus)
}

func (a *App) handleSaveFocus(w http.ResponseWriter, r *http.Request) {
	var focus *models.FocusState
	if err := json.NewDecoder(r.Body).Decode(&focus); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := a.router.SaveFocus(r.Context(), requestUser(r), focus); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) handleFocusTask(w http.ResponseWriter, r *http.Request) {
	if err := a.router.FocusTask(r.Context(), requestUser(r), mux.Vars(r)["taskId"]); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) handleUnfocus(w http.ResponseWriter, r *http.Request) {
	reason := models.EndReasonManual
	switch q := r.URL.Query().Get("reason"); q {
	case "":
	case string(models.EndReasonSwitch):
		reason = models.EndReasonSwitch
	case string(models.EndReasonDone):
		reason = models.EndReasonDone
	case string(models.EndReasonManual):
		reason = models.EndReasonManual
	default:
		respondError(w, http.StatusBadRequest, "Invalid end reason: "+q)
		return
	}
	if err := a.router.Unfocus(r.Context(), requestUser(r), reason); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Sessions, pomodoro logs, settings

func (a *App) handleGetSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.router.GetSessions(r.Context(), requestUser(r))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessions)
}

func (a *App) handleGetPomodoroLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := a.router.GetPomodoroLogs(r.Context(), requestUser(r))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

func (a *App) handleAddPomodoroLog(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID   string           `json:"taskId"`
		Type     models.CycleType `json:"type"`
		Duration int64            `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.TaskID == "" {
		respondError(w, http.StatusBadRequest, "TaskID is required")
		return
	}
	log := models.PomodoroLog{TaskID: req.TaskID, Type: req.Type, Duration: req.Duration}
	if err := a.router.AddPomodoroLog(r.Context(), requestUser(r), &log); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, log)
}

func (a *App) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.router.GetSettings(r.Context(), requestUser(r))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

func (a *App) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.UserSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	settings = models.NormalizeSettings(&settings)
	if err := a.router.SaveSettings(r.Context(), requestUser(r), settings); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// Package client is a Go HTTP client for the focuskeep API.
//
// It mirrors the server's endpoint structure with typed methods for todos,
// projects, focus, sessions, pomodoro logs, settings, and the token-guarded
// migration control surface. Request and response bodies use the same
// [github.com/focuskeep/focuskeep/pkg/models] entities as the server.
//
// A Client carries its identity with it: [Client.AsUser] returns a copy that
// sends the X-User header, and [Client.WithMigrationToken] returns a copy
// that authenticates against /internal/migrations. The zero-identity client
// can only reach /health.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/focuskeep/focuskeep/pkg/migrate"
	"github.com/focuskeep/focuskeep/pkg/models"
)

// Client is a focuskeep API client. Copies made by AsUser and
// WithMigrationToken share the underlying HTTP client.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	user           string
	migrationToken string
}

// New creates a client for the server at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// State is the /api/state aggregate.
type State struct {
	Todos        []models.Todo         `json:"todos"`
	Projects     []models.Project      `json:"projects"`
	Sessions     []models.FocusSession `json:"sessions"`
	PomodoroLogs []models.PomodoroLog  `json:"pomodoroLogs"`
	Settings     models.UserSettings   `json:"settings"`
	Focus        *models.FocusState    `json:"focus"`
}

// CreateTodoRequest is the body for CreateTodo.
type CreateTodoRequest struct {
	Title     string  `json:"title"`
	Detail    *string `json:"detail,omitempty"`
	Deadline  *int64  `json:"deadline,omitempty"`
	ProjectID *string `json:"projectId,omitempty"`
}

// UpdateTodoRequest is the body for UpdateTodo. Nil fields are unchanged;
// an empty string or zero clears the field.
type UpdateTodoRequest struct {
	Title     *string `json:"title,omitempty"`
	Detail    *string `json:"detail,omitempty"`
	Deadline  *int64  `json:"deadline,omitempty"`
	ProjectID *string `json:"projectId,omitempty"`
}

// CreateProjectRequest is the body for CreateProject.
type CreateProjectRequest struct {
	Name       string  `json:"name"`
	Detail     *string `json:"detail,omitempty"`
	GithubRepo *string `json:"githubRepo,omitempty"`
}

// UpdateProjectRequest is the body for UpdateProject, with the same patch
// semantics as UpdateTodoRequest.
type UpdateProjectRequest struct {
	Name       *string `json:"name,omitempty"`
	Detail     *string `json:"detail,omitempty"`
	GithubRepo *string `json:"githubRepo,omitempty"`
}

// AddAttachmentRequest is the body for AddAttachment. Content, when set, is
// stored server-side and served back from the attachment's content endpoint.
type AddAttachmentRequest struct {
	Name        string  `json:"name"`
	URL         string  `json:"url,omitempty"`
	ContentType *string `json:"contentType,omitempty"`
	Size        *int64  `json:"size,omitempty"`
	Content     []byte  `json:"content,omitempty"`
}

// AddPomodoroLogRequest is the body for AddPomodoroLog.
type AddPomodoroLogRequest struct {
	TaskID   string           `json:"taskId"`
	Type     models.CycleType `json:"type"`
	Duration int64            `json:"duration"`
}

// BackfillRequest is the body for Backfill. Set User for single-user mode,
// or RunID/BatchUsers to drive a batch run.
type BackfillRequest struct {
	RunID      string `json:"runId,omitempty"`
	BatchUsers int    `json:"batchUsers,omitempty"`
	User       string `json:"user,omitempty"`
}

// ParityCheckRequest is the body for ParityCheck. Empty Users falls back to
// the server's configured canary list.
type ParityCheckRequest struct {
	Users []string `json:"users,omitempty"`
	RunID string   `json:"runId,omitempty"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	var body struct {
		Error string `json:"error"`
	}
	message := string(data)
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		message = body.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: message}
}

// Health checks server liveness. Works without an identity.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "GET", "/health", nil, nil)
}

// GetState fetches the full per-user aggregate.
func (c *Client) GetState(ctx context.Context) (*State, error) {
	var state State
	if err := c.do(ctx, "GET", "/api/state", nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Todos

func (c *Client) ListTodos(ctx context.Context) ([]models.Todo, error) {
	var todos []models.Todo
	if err := c.do(ctx, "GET", "/api/todos", nil, &todos); err != nil {
		return nil, err
	}
	return todos, nil
}

func (c *Client) CreateTodo(ctx context.Context, req CreateTodoRequest) (*models.Todo, error) {
	var todo models.Todo
	if err := c.do(ctx, "POST", "/api/todos", req, &todo); err != nil {
		return nil, err
	}
	return &todo, nil
}

func (c *Client) UpdateTodo(ctx context.Context, id string, req UpdateTodoRequest) error {
	return c.do(ctx, "PATCH", "/api/todos/"+url.PathEscape(id), req, nil)
}

func (c *Client) DeleteTodo(ctx context.Context, id string) error {
	return c.do(ctx, "DELETE", "/api/todos/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ToggleTodo(ctx context.Context, id string) error {
	return c.do(ctx, "POST", "/api/todos/"+url.PathEscape(id)+"/toggle", nil, nil)
}

func (c *Client) ArchiveTodo(ctx context.Context, id string) error {
	return c.do(ctx, "POST", "/api/todos/"+url.PathEscape(id)+"/archive", nil, nil)
}

func (c *Client) UnarchiveTodo(ctx context.Context, id string) error {
	return c.do(ctx, "POST", "/api/todos/"+url.PathEscape(id)+"/unarchive", nil, nil)
}

func (c *Client) AddTaskLog(ctx context.Context, todoID, text string) (*models.TaskLog, error) {
	var log models.TaskLog
	body := map[string]string{"text": text}
	if err := c.do(ctx, "POST", "/api/todos/"+url.PathEscape(todoID)+"/logs", body, &log); err != nil {
		return nil, err
	}
	return &log, nil
}

func (c *Client) DeleteTaskLog(ctx context.Context, todoID, logID string) error {
	return c.do(ctx, "DELETE", "/api/todos/"+url.PathEscape(todoID)+"/logs/"+url.PathEscape(logID), nil, nil)
}

// Projects

func (c *Client) ListProjects(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	if err := c.do(ctx, "GET", "/api/projects", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

func (c *Client) CreateProject(ctx context.Context, req CreateProjectRequest) (*models.Project, error) {
	var project models.Project
	if err := c.do(ctx, "POST", "/api/projects", req, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

func (c *Client) UpdateProject(ctx context.Context, id string, req UpdateProjectRequest) error {
	return c.do(ctx, "PATCH", "/api/projects/"+url.PathEscape(id), req, nil)
}

// DeleteProject removes the project, detaches its todos, and releases any
// stored attachment content.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, "DELETE", "/api/projects/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ArchiveProject(ctx context.Context, id string) error {
	return c.do(ctx, "POST", "/api/projects/"+url.PathEscape(id)+"/archive", nil, nil)
}

func (c *Client) UnarchiveProject(ctx context.Context, id string) error {
	return c.do(ctx, "POST", "/api/projects/"+url.PathEscape(id)+"/unarchive", nil, nil)
}

func (c *Client) AddResource(ctx context.Context, projectID, resourceURL string, label *string) (*models.Resource, error) {
	var resource models.Resource
	body := map[string]any{"url": resourceURL, "label": label}
	if err := c.do(ctx, "POST", "/api/projects/"+url.PathEscape(projectID)+"/resources", body, &resource); err != nil {
		return nil, err
	}
	return &resource, nil
}

func (c *Client) DeleteResource(ctx context.Context, projectID, resourceID string) error {
	return c.do(ctx, "DELETE", "/api/projects/"+url.PathEscape(projectID)+"/resources/"+url.PathEscape(resourceID), nil, nil)
}

func (c *Client) AddAttachment(ctx context.Context, projectID string, req AddAttachmentRequest) (*models.ProjectAttachment, error) {
	var attachment models.ProjectAttachment
	if err := c.do(ctx, "POST", "/api/projects/"+url.PathEscape(projectID)+"/attachments", req, &attachment); err != nil {
		return nil, err
	}
	return &attachment, nil
}

func (c *Client) DeleteAttachment(ctx context.Context, projectID, attachmentID string) error {
	return c.do(ctx, "DELETE", "/api/projects/"+url.PathEscape(projectID)+"/attachments/"+url.PathEscape(attachmentID), nil, nil)
}

// GetAttachmentContent fetches stored attachment bytes and their content type.
func (c *Client) GetAttachmentContent(ctx context.Context, projectID, attachmentID string) ([]byte, string, error) {
	path := "/api/projects/" + url.PathEscape(projectID) + "/attachments/" + url.PathEscape(attachmentID) + "/content"
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	c.setAuthHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, "", decodeError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read content: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) GetRepoInfo(ctx context.Context, projectID string) (*models.RepoInfo, error) {
	var info models.RepoInfo
	if err := c.do(ctx, "GET", "/api/projects/"+url.PathEscape(projectID)+"/repo-info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) SaveRepoInfo(ctx context.Context, projectID string, info *models.RepoInfo) error {
	return c.do(ctx, "PUT", "/api/projects/"+url.PathEscape(projectID)+"/repo-info", info, nil)
}

// Focus

func (c *Client) GetFocus(ctx context.Context) (*models.FocusState, error) {
	var focus *models.FocusState
	if err := c.do(ctx, "GET", "/api/focus", nil, &focus); err != nil {
		return nil, err
	}
	return focus, nil
}

func (c *Client) SaveFocus(ctx context.Context, focus *models.FocusState) error {
	return c.do(ctx, "PUT", "/api/focus", focus, nil)
}

// FocusTask starts focusing the task, ending any previous focus session.
func (c *Client) FocusTask(ctx context.Context, taskID string) error {
	return c.do(ctx, "POST", "/api/focus/"+url.PathEscape(taskID), nil, nil)
}

// Unfocus ends the current focus session. Reason may be empty for manual.
func (c *Client) Unfocus(ctx context.Context, reason models.EndReason) error {
	path := "/api/focus"
	if reason != "" {
		path += "?reason=" + url.QueryEscape(string(reason))
	}
	return c.do(ctx, "DELETE", path, nil, nil)
}

// Sessions, pomodoro logs, settings

func (c *Client) ListSessions(ctx context.Context) ([]models.FocusSession, error) {
	var sessions []models.FocusSession
	if err := c.do(ctx, "GET", "/api/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (c *Client) ListPomodoroLogs(ctx context.Context) ([]models.PomodoroLog, error) {
	var logs []models.PomodoroLog
	if err := c.do(ctx, "GET", "/api/pomodoros", nil, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func (c *Client) AddPomodoroLog(ctx context.Context, req AddPomodoroLogRequest) (*models.PomodoroLog, error) {
	var log models.PomodoroLog
	if err := c.do(ctx, "POST", "/api/pomodoros", req, &log); err != nil {
		return nil, err
	}
	return &log, nil
}

func (c *Client) GetSettings(ctx context.Context) (models.UserSettings, error) {
	var settings models.UserSettings
	err := c.do(ctx, "GET", "/api/settings", nil, &settings)
	return settings, err
}

func (c *Client) SaveSettings(ctx context.Context, settings models.UserSettings) (models.UserSettings, error) {
	var saved models.UserSettings
	err := c.do(ctx, "PUT", "/api/settings", settings, &saved)
	return saved, err
}

// Migration control surface. These require WithMigrationToken.

func (c *Client) Backfill(ctx context.Context, req BackfillRequest) (*migrate.Result, error) {
	var result migrate.Result
	if err := c.do(ctx, "POST", "/internal/migrations/backfill", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ParityCheck(ctx context.Context, req ParityCheckRequest) (*migrate.CheckResult, error) {
	var result migrate.CheckResult
	if err := c.do(ctx, "POST", "/internal/migrations/parity-check", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetRun(ctx context.Context, runID string) (*models.MigrationRun, error) {
	var run models.MigrationRun
	if err := c.do(ctx, "GET", "/internal/migrations/runs/"+url.PathEscape(runID), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *Client) LatestRun(ctx context.Context) (*models.MigrationRun, error) {
	var run models.MigrationRun
	if err := c.do(ctx, "GET", "/internal/migrations/runs/latest", nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

package focuskeep

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails. On cancellation it drains in-flight requests for up to
// five seconds.
//
// All /api routes resolve the acting user from the X-User header, set by a
// trusted upstream proxy; the /internal/migrations routes are guarded by
// the shared-secret bearer token instead.
func (a *App) Run(ctx context.Context, cmd *RunCommand) error {
	router := a.routes()

	addr := fmt.Sprintf(":%s", a.config.ServerPort)
	a.log.Info().
		Str("addr", addr).
		Str("read_source", string(a.config.ReadSource)).
		Bool("dual_write", a.config.DualWrite).
		Int("canary_users", len(a.config.CanaryUsers)).
		Msg("starting focuskeep server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

// routes builds the full route table. Split out from Run so handler tests
// can drive the router without a listening socket.
func (a *App) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", a.handleHealth).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(a.requireUser)

	api.HandleFunc("/state", a.handleGetState).Methods("GET")

	// Todos
	api.HandleFunc("/todos", a.handleGetTodos).Methods("GET")
	api.HandleFunc("/todos", a.handleCreateTodo).Methods("POST")
	api.HandleFunc("/todos/{id}", a.handleUpdateTodo).Methods("PATCH", "PUT")
	api.HandleFunc("/todos/{id}", a.handleDeleteTodo).Methods("DELETE")
	api.HandleFunc("/todos/{id}/toggle", a.handleToggleTodo).Methods("POST")
	api.HandleFunc("/todos/{id}/archive", a.handleArchiveTodo).Methods("POST")
	api.HandleFunc("/todos/{id}/unarchive", a.handleUnarchiveTodo).Methods("POST")
	api.HandleFunc("/todos/{id}/logs", a.handleAddTaskLog).Methods("POST")
	api.HandleFunc("/todos/{id}/logs/{logId}", a.handleDeleteTaskLog).Methods("DELETE")

	// Projects
	api.HandleFunc("/projects", a.handleGetProjects).Methods("GET")
	api.HandleFunc("/projects", a.handleCreateProject).Methods("POST")
	api.HandleFunc("/projects/{id}", a.handleUpdateProject).Methods("PATCH", "PUT")
	api.HandleFunc("/projects/{id}", a.handleDeleteProject).Methods("DELETE")
	api.HandleFunc("/projects/{id}/archive", a.handleArchiveProject).Methods("POST")
	api.HandleFunc("/projects/{id}/unarchive", a.handleUnarchiveProject).Methods("POST")
	api.HandleFunc("/projects/{id}/resources", a.handleAddResource).Methods("POST")
	api.HandleFunc("/projects/{id}/resources/{resourceId}", a.handleDeleteResource).Methods("DELETE")
	api.HandleFunc("/projects/{id}/attachments", a.handleAddAttachment).Methods("POST")
	api.HandleFunc("/projects/{id}/attachments/{attachmentId}", a.handleDeleteAttachment).Methods("DELETE")
	api.HandleFunc("/projects/{id}/attachments/{attachmentId}/content", a.handleGetAttachmentContent).Methods("GET")
	api.HandleFunc("/projects/{id}/repo-info", a.handleGetRepoInfo).Methods("GET")
	api.HandleFunc("/projects/{id}/repo-info", a.handleSaveRepoInfo).Methods("PUT")

	// Focus
	api.HandleFunc("/focus", a.handleGetFocus).Methods("GET")
	api.HandleFunc("/focus", a.handleSaveFocus).Methods("PUT")
	api.HandleFunc("/focus", a.handleUnfocus).Methods("DELETE")
	api.HandleFunc("/focus/{taskId}", a.handleFocusTask).Methods("POST")

	// Sessions, pomodoro logs, settings
	api.HandleFunc("/sessions", a.handleGetSessions).Methods("GET")
	api.HandleFunc("/pomodoros", a.handleGetPomodoroLogs).Methods("GET")
	api.HandleFunc("/pomodoros", a.handleAddPomodoroLog).Methods("POST")
	api.HandleFunc("/settings", a.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", a.handleSaveSettings).Methods("PUT")

	// Migration control surface
	internal := router.PathPrefix("/internal/migrations").Subrouter()
	internal.Use(a.requireMigrationToken)
	internal.HandleFunc("/backfill", a.handleBackfill).Methods("POST")
	internal.HandleFunc("/parity-check", a.handleParityCheck).Methods("POST")
	internal.HandleFunc("/runs/latest", a.handleGetLatestRun).Methods("GET")
	internal.HandleFunc("/runs/{runId}", a.handleGetRun).Methods("GET")

	return router
}

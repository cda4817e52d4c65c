// Package focuskeeptesting provides testing utilities for driving the
// focuskeep API the way real users do.
//
// [VirtualUser] is a stateful simulated user working against a running
// server through [github.com/focuskeep/focuskeep/pkg/client]. Each virtual
// user runs a deterministic operation sequence from a seeded random number
// generator, so failures reproduce exactly, and tracks everything it
// created so a test can verify the data is readable and consistent
// afterwards. Smoke and migration end-to-end tests run many virtual users
// concurrently to surface ordering and consistency bugs.
package focuskeeptesting

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/focuskeep/focuskeep/pkg/client"
	"github.com/focuskeep/focuskeep/pkg/models"
)

// VirtualUser simulates one user's session against a focuskeep server.
type VirtualUser struct {
	Email  string
	client *client.Client
	rng    *rand.Rand

	// Created entity IDs, for verification.
	TodoIDs    []string
	ProjectIDs []string
	Pomodoros  int
}

// NewVirtualUser creates a virtual user with a deterministic behavior seed.
// The index doubles as the seed so concurrent users diverge while each run
// of the suite replays identically.
func NewVirtualUser(baseURL string, index int) *VirtualUser {
	email := fmt.Sprintf("vuser-%03d@example.com", index)
	return &VirtualUser{
		Email:  email,
		client: client.New(baseURL).AsUser(email),
		rng:    rand.New(rand.NewSource(int64(index))),
	}
}

// Client exposes the underlying API client, already bound to this user.
func (u *VirtualUser) Client() *client.Client {
	return u.client
}

// RunScenario performs one full usage scenario: create todos and a project,
// focus, log work, complete a pomodoro, adjust settings. Every operation's
// outcome is checked; the scenario fails on the first inconsistency.
func (u *VirtualUser) RunScenario(ctx context.Context) error {
	project, err := u.client.CreateProject(ctx, client.CreateProjectRequest{
		Name: fmt.Sprintf("project-%d", u.rng.Intn(1000)),
	})
	if err != nil {
		return fmt.Errorf("%s: create project: %w", u.Email, err)
	}
	u.ProjectIDs = append(u.ProjectIDs, project.ID)

	todoCount := 2 + u.rng.Intn(3)
	for i := 0; i < todoCount; i++ {
		todo, err := u.client.CreateTodo(ctx, client.CreateTodoRequest{
			Title:     fmt.Sprintf("task %d for %s", i, u.Email),
			ProjectID: &project.ID,
		})
		if err != nil {
			return fmt.Errorf("%s: create todo: %w", u.Email, err)
		}
		u.TodoIDs = append(u.TodoIDs, todo.ID)
	}

	focusID := u.TodoIDs[u.rng.Intn(len(u.TodoIDs))]
	if err := u.client.FocusTask(ctx, focusID); err != nil {
		return fmt.Errorf("%s: focus task: %w", u.Email, err)
	}
	if _, err := u.client.AddTaskLog(ctx, focusID, "made some progress"); err != nil {
		return fmt.Errorf("%s: add task log: %w", u.Email, err)
	}
	if _, err := u.client.AddPomodoroLog(ctx, client.AddPomodoroLogRequest{
		TaskID:   focusID,
		Type:     models.CycleWork,
		Duration: 25 * 60 * 1000,
	}); err != nil {
		return fmt.Errorf("%s: add pomodoro log: %w", u.Email, err)
	}
	u.Pomodoros++

	if err := u.client.ToggleTodo(ctx, focusID); err != nil {
		return fmt.Errorf("%s: toggle todo: %w", u.Email, err)
	}
	if err := u.client.Unfocus(ctx, models.EndReasonManual); err != nil {
		return fmt.Errorf("%s: unfocus: %w", u.Email, err)
	}

	if _, err := u.client.SaveSettings(ctx, models.UserSettings{
		WorkMs: int64(20+u.rng.Intn(20)) * 60 * 1000,
	}); err != nil {
		return fmt.Errorf("%s: save settings: %w", u.Email, err)
	}
	return nil
}

// Verify reads the user's aggregate state back and checks that everything
// the scenario created is present and consistent.
func (u *VirtualUser) Verify(ctx context.Context) error {
	state, err := u.client.GetState(ctx)
	if err != nil {
		return fmt.Errorf("%s: get state: %w", u.Email, err)
	}

	todos := make(map[string]bool, len(state.Todos))
	for _, t := range state.Todos {
		todos[t.ID] = true
	}
	for _, id := range u.TodoIDs {
		if !todos[id] {
			return fmt.Errorf("%s: todo %s missing from state", u.Email, id)
		}
	}

	projects := make(map[string]bool, len(state.Projects))
	for _, p := range state.Projects {
		projects[p.ID] = true
	}
	for _, id := range u.ProjectIDs {
		if !projects[id] {
			return fmt.Errorf("%s: project %s missing from state", u.Email, id)
		}
	}

	if len(state.PomodoroLogs) < u.Pomodoros {
		return fmt.Errorf("%s: expected at least %d pomodoro logs, got %d",
			u.Email, u.Pomodoros, len(state.PomodoroLogs))
	}
	if state.Focus != nil {
		return fmt.Errorf("%s: focus should be clear after scenario, still on %s",
			u.Email, state.Focus.ActiveTaskID)
	}
	for _, s := range state.Sessions {
		if s.EndedAt == nil {
			return fmt.Errorf("%s: session %s left open", u.Email, s.ID)
		}
	}
	return nil
}

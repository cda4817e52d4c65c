package migrate

import (
	"context"
	"fmt"
	"reflect"

	"github.com/focuskeep/focuskeep/pkg/models"
	"github.com/focuskeep/focuskeep/pkg/store"
)

// ParityCounts are summary counts from the target side of a comparison, for
// operator inspection alongside the match verdict.
type ParityCounts struct {
	Todos        int   `json:"todos"`
	TaskLogs     int   `json:"taskLogs"`
	Projects     int   `json:"projects"`
	Resources    int   `json:"resources"`
	Attachments  int   `json:"attachments"`
	Sessions     int   `json:"sessions"`
	PomodoroLogs int   `json:"pomodoroLogs"`
	TotalFocusMs int64 `json:"totalFocusMs"`
}

// UserParityResult is the comparison verdict for one user. Mismatches holds
// the names of disagreeing categories: todos, projects, sessions,
// pomodoroLogs, focusState, settings, totalFocusMs. A user whose reads
// failed carries a single "error: <cause>" entry instead.
type UserParityResult struct {
	User       string       `json:"user"`
	Matches    bool         `json:"matches"`
	Mismatches []string     `json:"mismatches,omitempty"`
	Counts     ParityCounts `json:"counts"`
}

// CheckResult aggregates one parity invocation.
type CheckResult struct {
	CheckedUsers    int                `json:"checkedUsers"`
	MismatchedUsers int                `json:"mismatchedUsers"`
	Results         []UserParityResult `json:"results"`
}

// ParityChecker reads each entity category from both backends, normalizes
// the two representations independently, and compares them structurally.
// Normalization lives in the models package so any future tooling diffing
// the two stores shares it.
type ParityChecker struct {
	source store.Backend
	target store.Backend
	ledger store.RunLedger
}

func NewParityChecker(source, target store.Backend, ledger store.RunLedger) *ParityChecker {
	return &ParityChecker{source: source, target: target, ledger: ledger}
}

// CheckUser compares one user across the two backends.
func (c *ParityChecker) CheckUser(ctx context.Context, user string) (UserParityResult, error) {
	result := UserParityResult{User: user}

	srcTodos, err := c.source.GetTodos(ctx, user)
	if err != nil {
		return result, fmt.Errorf("source todos for %s: %w", user, err)
	}
	tgtTodos, err := c.target.GetTodos(ctx, user)
	if err != nil {
		return result, fmt.Errorf("target todos for %s: %w", user, err)
	}
	srcProjects, err := c.source.GetProjects(ctx, user)
	if err != nil {
		return result, fmt.Errorf("source projects for %s: %w", user, err)
	}
	tgtProjects, err := c.target.GetProjects(ctx, user)
	if err != nil {
		return result, fmt.Errorf("target projects for %s: %w", user, err)
	}
	srcSessions, err := c.source.GetSessions(ctx, user)
	if err != nil {
		return result, fmt.Errorf("source sessions for %s: %w", user, err)
	}
	tgtSessions, err := c.target.GetSessions(ctx, user)
	if err != nil {
		return result, fmt.Errorf("target sessions for %s: %w", user, err)
	}
	srcPomodoros, err := c.source.GetPomodoroLogs(ctx, user)
	if err != nil {
		return result, fmt.Errorf("source pomodoro logs for %s: %w", user, err)
	}
	tgtPomodoros, err := c.target.GetPomodoroLogs(ctx, user)
	if err != nil {
		return result, fmt.Errorf("target pomodoro logs for %s: %w", user, err)
	}
	srcFocus, err := c.source.GetFocus(ctx, user)
	if err != nil {
		return result, fmt.Errorf("source focus for %s: %w", user, err)
	}
	tgtFocus, err := c.target.GetFocus(ctx, user)
	if err != nil {
		return result, fmt.Errorf("target focus for %s: %w", user, err)
	}
	srcSettings, err := c.source.GetSettings(ctx, user)
	if err != nil {
		return result, fmt.Errorf("source settings for %s: %w", user, err)
	}
	tgtSettings, err := c.target.GetSettings(ctx, user)
	if err != nil {
		return result, fmt.Errorf("target settings for %s: %w", user, err)
	}

	// The aggregates come from the raw todo sets: normalization strips
	// per-todo focus totals so the derived check below reports credit drift
	// as its own category instead of polluting the todos comparison.
	srcTotalFocus := models.TotalFocusMs(srcTodos)
	tgtTotalFocus := models.TotalFocusMs(tgtTodos)

	normSrcTodos := models.NormalizeTodos(srcTodos)
	normTgtTodos := models.NormalizeTodos(tgtTodos)
	normSrcProjects := models.NormalizeProjects(srcProjects)
	normTgtProjects := models.NormalizeProjects(tgtProjects)
	normSrcSessions := models.NormalizeSessions(srcSessions)
	normTgtSessions := models.NormalizeSessions(tgtSessions)
	normSrcPomodoros := models.NormalizePomodoroLogs(srcPomodoros)
	normTgtPomodoros := models.NormalizePomodoroLogs(tgtPomodoros)

	if !reflect.DeepEqual(normSrcTodos, normTgtTodos) {
		result.Mismatches = append(result.Mismatches, "todos")
	}
	if !reflect.DeepEqual(normSrcProjects, normTgtProjects) {
		result.Mismatches = append(result.Mismatches, "projects")
	}
	if !reflect.DeepEqual(normSrcSessions, normTgtSessions) {
		result.Mismatches = append(result.Mismatches, "sessions")
	}
	if !reflect.DeepEqual(normSrcPomodoros, normTgtPomodoros) {
		result.Mismatches = append(result.Mismatches, "pomodoroLogs")
	}
	if !reflect.DeepEqual(models.NormalizeFocus(srcFocus), models.NormalizeFocus(tgtFocus)) {
		result.Mismatches = append(result.Mismatches, "focusState")
	}
	if models.NormalizeSettings(&srcSettings) != models.NormalizeSettings(&tgtSettings) {
		result.Mismatches = append(result.Mismatches, "settings")
	}
	if srcTotalFocus != tgtTotalFocus {
		result.Mismatches = append(result.Mismatches, "totalFocusMs")
	}

	result.Matches = len(result.Mismatches) == 0
	result.Counts = ParityCounts{
		Todos:        len(normTgtTodos),
		Projects:     len(normTgtProjects),
		Sessions:     len(normTgtSessions),
		PomodoroLogs: len(normTgtPomodoros),
		TotalFocusMs: tgtTotalFocus,
	}
	for _, t := range normTgtTodos {
		result.Counts.TaskLogs += len(t.Logs)
	}
	for _, p := range normTgtProjects {
		result.Counts.Resources += len(p.Resources)
		result.Counts.Attachments += len(p.Attachments)
	}
	return result, nil
}

// Check compares every given user and, when runID is non-empty, folds the
// outcome into that run's ledger entry: mismatch count, a summary note, and
// status failed when anything disagreed. A user whose reads fail counts as
// mismatched, with the error recorded in place of a category name, and the
// pass continues: one unreachable user must not hide drift in the rest.
func (c *ParityChecker) Check(ctx context.Context, users []string, runID string) (*CheckResult, error) {
	out := &CheckResult{}
	for _, user := range users {
		result, err := c.CheckUser(ctx, user)
		if err != nil {
			result = UserParityResult{
				User:       user,
				Mismatches: []string{"error: " + err.Error()},
			}
		}
		if !result.Matches {
			out.MismatchedUsers++
		}
		out.Results = append(out.Results, result)
	}
	out.CheckedUsers = len(out.Results)

	if runID != "" {
		if err := c.ledger.EnsureRun(ctx, runID); err != nil {
			return nil, fmt.Errorf("ensure run %s: %w", runID, err)
		}
		status := models.RunStatusRunning
		if out.MismatchedUsers > 0 {
			status = models.RunStatusFailed
		}
		notes := fmt.Sprintf("Parity check: %d/%d matched",
			out.CheckedUsers-out.MismatchedUsers, out.CheckedUsers)
		if err := c.ledger.UpdateRun(ctx, runID, store.RunPatch{
			Status:          &status,
			MismatchedUsers: &out.MismatchedUsers,
			Notes:           &notes,
		}); err != nil {
			return nil, fmt.Errorf("update run %s: %w", runID, err)
		}
	}
	return out, nil
}

package relational

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/focuskeep/focuskeep/pkg/models"
	"github.com/focuskeep/focuskeep/pkg/store"
)

// Composite operations. Each runs as one transaction, so the multi-category
// invariants (one open session at a time, focus always pointing at a live
// session) hold even when a step fails — unlike the key-blob backend, which
// can only order its writes.

// endActiveSession closes the oldest open session, if any, and credits its
// duration to the task's running focus total. No-op when nothing is open.
func endActiveSession(tx *gorm.DB, user string, reason models.EndReason) error {
	var open focusSessionRow
	err := tx.Where("user_id = ? AND ended_at IS NULL", user).
		Order("started_at ASC").First(&open).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	now := models.NowMs()
	reasonStr := string(reason)
	open.EndedAt = &now
	open.EndReason = &reasonStr
	if err := tx.Save(&open).Error; err != nil {
		return err
	}
	duration := now - open.StartedAt
	if duration < 0 {
		duration = 0
	}
	return tx.Model(&todoRow{}).
		Where("user_id = ? AND id = ?", user, open.TaskID).
		Update("total_focus_ms", gorm.Expr("COALESCE(total_focus_ms, 0) + ?", duration)).Error
}

// FocusTask switches focus to taskID: ends the open session with reason
// "switch", starts a new session, and replaces the focus singleton. The
// upsert writes every column, so any running pomodoro is cleared.
func (s *Store) FocusTask(ctx context.Context, user, taskID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := endActiveSession(tx, user, models.EndReasonSwitch); err != nil {
			return err
		}
		now := models.NowMs()
		session := focusSessionRow{
			UserID:    user,
			ID:        models.NewID(),
			TaskID:    taskID,
			StartedAt: now,
		}
		if err := tx.Create(&session).Error; err != nil {
			return err
		}
		return saveFocus(tx, user, &models.FocusState{
			ActiveTaskID: taskID,
			FocusedAt:    now,
		})
	})
}

// Unfocus clears the focus singleton and ends the open session with the
// given reason.
func (s *Store) Unfocus(ctx context.Context, user string, reason models.EndReason) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user).Delete(&focusStateRow{}).Error; err != nil {
			return err
		}
		return endActiveSession(tx, user, reason)
	})
}

// ToggleTodoWithFocus flips a todo's done state and, when the todo just
// became done while being the focused task, ends the open session with
// reason "done" and clears focus.
func (s *Store) ToggleTodoWithFocus(ctx context.Context, user, todoID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row todoRow
		err := tx.First(&row, "user_id = ? AND id = ?", user, todoID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("toggle todo %s: %w", todoID, store.ErrNotFound)
			}
			return err
		}
		row.Done = !row.Done
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		if !row.Done {
			return nil
		}
		focus, err := getFocus(tx, user)
		if err != nil {
			return err
		}
		if focus == nil || focus.ActiveTaskID != todoID {
			return nil
		}
		if err := endActiveSession(tx, user, models.EndReasonDone); err != nil {
			return err
		}
		return tx.Where("user_id = ?", user).Delete(&focusStateRow{}).Error
	})
}

// DeleteProjectCascade deletes a project with its resources and attachment
// records, detaches the project's todos, and returns the object-store keys
// of the removed attachments. No repo-info step: that cache lives only in
// the key-blob store, whose cascade evicts it.
func (s *Store) DeleteProjectCascade(ctx context.Context, user, projectID string) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var attRows []attachmentRow
		if err := tx.Where("user_id = ? AND project_id = ? AND key IS NOT NULL", user, projectID).
			Find(&attRows).Error; err != nil {
			return err
		}
		for _, a := range attRows {
			if a.Key != nil && *a.Key != "" {
				keys = append(keys, *a.Key)
			}
		}
		if err := tx.Where("user_id = ? AND project_id = ?", user, projectID).
			Delete(&resourceRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ? AND project_id = ?", user, projectID).
			Delete(&attachmentRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ? AND id = ?", user, projectID).
			Delete(&projectRow{}).Error; err != nil {
			return err
		}
		return tx.Model(&todoRow{}).
			Where("user_id = ? AND project_id = ?", user, projectID).
			Update("project_id", nil).Error
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

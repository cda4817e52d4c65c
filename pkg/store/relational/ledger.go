package relational

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/focuskeep/focuskeep/pkg/models"
	"github.com/focuskeep/focuskeep/pkg/store"
)

// Run ledger. Runs are inserted once and then patched; ProcessedUsers is
// updated additively in SQL so concurrent invocations sharing a run
// identifier cannot move progress backwards.

func (s *Store) EnsureRun(ctx context.Context, runID string) error {
	row := migrationRunRow{
		RunID:     runID,
		Status:    string(models.RunStatusRunning),
		StartedAt: models.NowMs(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}},
		DoNothing: true,
	}).Create(&row).Error
}

func (s *Store) GetRun(ctx context.Context, runID string) (*models.MigrationRun, error) {
	var row migrationRunRow
	err := s.db.WithContext(ctx).First(&row, "run_id = ?", runID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return fromRunRow(row), nil
}

func (s *Store) LatestRun(ctx context.Context) (*models.MigrationRun, error) {
	var row migrationRunRow
	err := s.db.WithContext(ctx).Order("started_at DESC, run_id DESC").First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return fromRunRow(row), nil
}

func (s *Store) UpdateRun(ctx context.Context, runID string, patch store.RunPatch) error {
	updates := map[string]any{}
	if patch.Status != nil {
		updates["status"] = string(*patch.Status)
	}
	if patch.Cursor != nil {
		updates["cursor"] = *patch.Cursor
	}
	if patch.ProcessedUsersDelta != 0 {
		updates["processed_users"] = gorm.Expr("processed_users + ?", patch.ProcessedUsersDelta)
	}
	if patch.MismatchedUsers != nil {
		updates["mismatched_users"] = *patch.MismatchedUsers
	}
	if patch.Notes != nil {
		updates["notes"] = *patch.Notes
	}
	if patch.Finished {
		updates["finished_at"] = models.NowMs()
	}
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&migrationRunRow{}).
		Where("run_id = ?", runID).Updates(updates).Error
}

package focuskeep

import (
	"context"
	"fmt"

	"github.com/focuskeep/focuskeep/pkg/migrate"
)

// Migrate prepares schema on every configured backend. The key-blob store
// is schemaless, so this is effectively PostgreSQL table creation via GORM
// AutoMigrate. Safe to run repeatedly.
func (a *App) Migrate(ctx context.Context, cmd *MigrateCommand) error {
	a.log.Info().Msg("running schema migrations")
	if err := a.router.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.log.Info().Msg("migrations completed")
	return nil
}

// Backfill executes one backfill invocation from the command line: either a
// single-user spot fix or the next batch of a run.
func (a *App) Backfill(ctx context.Context, cmd *BackfillCommand) error {
	if a.backfiller == nil {
		return fmt.Errorf("backfill requires both backends to be configured")
	}

	if cmd.User != "" {
		result, err := a.backfiller.RunSingle(ctx, cmd.User)
		if err != nil {
			return err
		}
		a.log.Info().
			Str("run_id", result.RunID).
			Str("user", cmd.User).
			Msg("single-user backfill completed")
		return nil
	}

	result, err := a.backfiller.RunBatch(ctx, migrate.BatchOptions{
		RunID:     cmd.RunID,
		BatchSize: cmd.BatchSize,
	})
	if err != nil {
		return err
	}
	a.log.Info().
		Str("run_id", result.RunID).
		Int("processed_users", result.ProcessedUsers).
		Int("total_users", result.TotalUsers).
		Int("failed_users", len(result.FailedUsers)).
		Bool("scan_complete", result.ScanComplete).
		Msg("backfill batch completed")
	return nil
}

// Parity runs a parity check from the command line.
func (a *App) Parity(ctx context.Context, cmd *ParityCommand) error {
	if a.parity == nil {
		return fmt.Errorf("parity check requires both backends to be configured")
	}
	if len(cmd.Users) == 0 {
		return fmt.Errorf("no users to check: pass -users or configure CANARY_USERS")
	}

	result, err := a.parity.Check(ctx, cmd.Users, cmd.RunID)
	if err != nil {
		return err
	}
	for _, r := range result.Results {
		if r.Matches {
			continue
		}
		a.log.Warn().
			Str("user", r.User).
			Strs("mismatches", r.Mismatches).
			Msg("parity mismatch")
	}
	a.log.Info().
		Int("checked_users", result.CheckedUsers).
		Int("mismatched_users", result.MismatchedUsers).
		Msg("parity check completed")
	if result.MismatchedUsers > 0 {
		return fmt.Errorf("parity check found %d mismatched users", result.MismatchedUsers)
	}
	return nil
}

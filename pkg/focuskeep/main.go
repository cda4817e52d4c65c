package focuskeep

import (
	"context"
	"fmt"
)

// Main is the application entry point: parse arguments, assemble the app,
// execute the command. It is callable from tests without building the
// binary; the context drives graceful shutdown.
func Main(ctx context.Context, args []string) error {
	cmd, config, err := Parse(args)
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	app, err := New(config)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer app.Close()

	switch c := cmd.(type) {
	case *MigrateCommand:
		if err := app.Migrate(ctx, c); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case *RunCommand:
		if err := app.Run(ctx, c); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case *BackfillCommand:
		if err := app.Backfill(ctx, c); err != nil {
			return fmt.Errorf("backfill failed: %w", err)
		}
	case *ParityCommand:
		if err := app.Parity(ctx, c); err != nil {
			return fmt.Errorf("parity check failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown command type: %T", cmd)
	}

	return nil
}

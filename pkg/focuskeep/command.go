package focuskeep

// Command is one discrete application operation with its specific options.
// Commands are produced by Parse from the CLI arguments and dispatched by
// Main to the matching App method.
type Command interface {
	// Name returns the command identifier used for routing.
	Name() string
}

// RunCommand starts the HTTP server.
type RunCommand struct{}

func (c *RunCommand) Name() string { return "run" }

// MigrateCommand creates or updates backend schema. The key-blob store is
// schemaless, so in practice this prepares the PostgreSQL tables. Safe to
// run repeatedly.
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string { return "migrate" }

// BackfillCommand copies users from the key-blob store to PostgreSQL.
// With User set it copies exactly that user under its own ledger entry;
// otherwise it processes the next batch of the named (or a fresh) run.
type BackfillCommand struct {
	// RunID resumes an existing run. Empty starts a new one.
	RunID string
	// BatchSize is the number of users per invocation, clamped to [1, 500].
	BatchSize int
	// User selects single-user mode.
	User string
}

func (c *BackfillCommand) Name() string { return "backfill" }

// ParityCommand compares the given users across both backends. Users
// defaults to the configured canary list.
type ParityCommand struct {
	// RunID optionally folds the outcome into that run's ledger entry.
	RunID string
	// Users to compare.
	Users []string
}

func (c *ParityCommand) Name() string { return "parity" }

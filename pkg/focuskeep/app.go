// Package focuskeep wires the storage backends, routing policy, and
// migration machinery into a runnable application with an HTTP surface.
//
// The application serves per-user productivity data (todos with task logs,
// projects with resources and attachments, focus sessions, pomodoro logs,
// settings) while that data live-migrates from a schemaless key-blob store
// to PostgreSQL. Every request flows through the routing layer, which
// decides per user which backend is authoritative and whether writes are
// mirrored. Operators drive the migration through token-guarded endpoints
// under /internal/migrations.
package focuskeep

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/focuskeep/focuskeep/pkg/migrate"
	"github.com/focuskeep/focuskeep/pkg/objstore"
	"github.com/focuskeep/focuskeep/pkg/store"
	"github.com/focuskeep/focuskeep/pkg/store/kvblob"
	"github.com/focuskeep/focuskeep/pkg/store/relational"
	"github.com/focuskeep/focuskeep/pkg/store/routing"
)

// Config holds application configuration, populated from flags with
// environment-variable defaults.
type Config struct {
	// Database configuration
	PostgresDSN   string
	SurrealDBURL  string
	SurrealDBNS   string
	SurrealDBDB   string
	SurrealDBUser string
	SurrealDBPass string

	// Routing policy
	ReadSource  routing.ReadSource
	DualWrite   bool
	CanaryUsers []string

	// Single-backend overrides, mainly for local development
	LegacyOnly     bool
	RelationalOnly bool

	// Migration control surface shared secret. Empty disables the
	// /internal/migrations endpoints (they respond 500).
	MigrationToken string

	// Server configuration
	ServerPort string
	LogLevel   string
}

// App holds the application state: both concrete backends, the router the
// HTTP layer talks to, and the migration machinery.
type App struct {
	config *Config
	log    zerolog.Logger

	legacy     *kvblob.Store
	relational *relational.Store
	router     *routing.Router
	objects    objstore.Store

	backfiller *migrate.Backfiller
	parity     *migrate.ParityChecker
	ledger     store.RunLedger
}

// New connects the configured backends and assembles the application.
// At least one backend must be configured; the migration machinery is only
// available when both are.
func New(config *Config) (*App, error) {
	log := newLogger(config.LogLevel)

	app := &App{
		config:  config,
		log:     log,
		objects: objstore.NewMemory(),
	}

	if !config.RelationalOnly && config.SurrealDBURL != "" {
		kv, err := kvblob.NewSurrealKV(
			config.SurrealDBURL,
			config.SurrealDBNS,
			config.SurrealDBDB,
			config.SurrealDBUser,
			config.SurrealDBPass,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to key-blob store: %w", err)
		}
		app.legacy = kvblob.New(kv)
		log.Info().Str("url", config.SurrealDBURL).Msg("connected to key-blob store")
	}

	if !config.LegacyOnly && config.PostgresDSN != "" {
		rel, err := relational.New(config.PostgresDSN)
		if err != nil {
			if app.legacy != nil {
				_ = app.legacy.Close()
			}
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		app.relational = rel
		app.ledger = rel
		log.Info().Msg("connected to PostgreSQL")
	}

	var legacyBackend, relationalBackend store.Backend
	if app.legacy != nil {
		legacyBackend = app.legacy
	}
	if app.relational != nil {
		relationalBackend = app.relational
	}
	router, err := routing.New(legacyBackend, relationalBackend, routing.Config{
		ReadSource:  config.ReadSource,
		DualWrite:   config.DualWrite,
		CanaryUsers: config.CanaryUsers,
	}, log)
	if err != nil {
		return nil, err
	}
	app.router = router

	// The migration machinery needs the legacy store for user discovery and
	// the relational store for both the copy target and the run ledger.
	if app.legacy != nil && app.relational != nil {
		app.backfiller = migrate.NewBackfiller(app.legacy, app.relational, app.ledger, log)
		app.parity = migrate.NewParityChecker(app.legacy, app.relational, app.ledger)
	}

	return app, nil
}

// NewWithBackends assembles the application over pre-built backends,
// bypassing connection setup. Used by tests and embedders that manage their
// own stores. The migration machinery is wired when the legacy backend can
// scan users and both a relational target and a ledger exist.
func NewWithBackends(config *Config, legacy, relational store.Backend, ledger store.RunLedger) (*App, error) {
	log := newLogger(config.LogLevel)
	router, err := routing.New(legacy, relational, routing.Config{
		ReadSource:  config.ReadSource,
		DualWrite:   config.DualWrite,
		CanaryUsers: config.CanaryUsers,
	}, log)
	if err != nil {
		return nil, err
	}
	app := &App{
		config:  config,
		log:     log,
		router:  router,
		objects: objstore.NewMemory(),
		ledger:  ledger,
	}
	if source, ok := legacy.(migrate.Source); ok && relational != nil && ledger != nil {
		app.backfiller = migrate.NewBackfiller(source, relational, ledger, log)
		app.parity = migrate.NewParityChecker(source, relational, ledger)
	}
	return app, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

// Close closes the application and its backend connections.
func (a *App) Close() error {
	if a.router != nil {
		return a.router.Close()
	}
	return nil
}

// Router returns the routing store, useful for tests.
func (a *App) Router() *routing.Router {
	return a.router
}

// Handler returns the full HTTP route table, for serving through an
// externally managed server.
func (a *App) Handler() http.Handler {
	return a.routes()
}

// getEnv retrieves an environment variable with a fallback default. An
// empty value counts as unset.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

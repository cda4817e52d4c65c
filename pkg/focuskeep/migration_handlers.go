package focuskeep

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/focuskeep/focuskeep/pkg/migrate"
)

// requireMigrationToken guards the migration control surface with a static
// bearer token. An unconfigured token is a deployment error, not an
// authorization failure, and is reported as such.
func (a *App) requireMigrationToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.config.MigrationToken == "" {
			respondError(w, http.StatusInternalServerError, "MIGRATION_ADMIN_TOKEN not configured")
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			respondError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}
		if strings.TrimPrefix(auth, "Bearer ") != a.config.MigrationToken {
			respondError(w, http.StatusForbidden, "Invalid migration token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *App) handleBackfill(w http.ResponseWriter, r *http.Request) {
	if a.backfiller == nil {
		respondError(w, http.StatusInternalServerError, "Both stores must be configured")
		return
	}
	var req struct {
		RunID      string `json:"runId"`
		BatchUsers int    `json:"batchUsers"`
		User       string `json:"user"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
	}

	var (
		result *migrate.Result
		err    error
	)
	if req.User != "" {
		result, err = a.backfiller.RunSingle(r.Context(), req.User)
	} else {
		result, err = a.backfiller.RunBatch(r.Context(), migrate.BatchOptions{
			RunID:     req.RunID,
			BatchSize: req.BatchUsers,
		})
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (a *App) handleParityCheck(w http.ResponseWriter, r *http.Request) {
	if a.parity == nil {
		respondError(w, http.StatusInternalServerError, "Both stores must be configured")
		return
	}
	var req struct {
		Users []string `json:"users"`
		RunID string   `json:"runId"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
	}
	users := req.Users
	if len(users) == 0 {
		users = a.config.CanaryUsers
	}
	if len(users) == 0 {
		respondError(w, http.StatusBadRequest, "No users to check")
		return
	}

	result, err := a.parity.Check(r.Context(), users, req.RunID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (a *App) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if a.ledger == nil {
		respondError(w, http.StatusInternalServerError, "Relational store must be configured")
		return
	}
	run, err := a.ledger.GetRun(r.Context(), mux.Vars(r)["runId"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		respondError(w, http.StatusNotFound, "Run not found")
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (a *App) handleGetLatestRun(w http.ResponseWriter, r *http.Request) {
	if a.ledger == nil {
		respondError(w, http.StatusInternalServerError, "Relational store must be configured")
		return
	}
	run, err := a.ledger.LatestRun(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		respondError(w, http.StatusNotFound, "No migration runs recorded")
		return
	}
	respondJSON(w, http.StatusOK, run)
}

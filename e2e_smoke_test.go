//go:build smoke

// Smoke tests drive a running focuskeep server with concurrent virtual
// users and verify every piece of created data is readable and consistent
// afterwards. They exist to catch correctness bugs under concurrency, not
// to measure performance.
//
// Run against a live server:
//
//	FOCUSKEEP_URL=http://localhost:8080 go test -tags smoke -run Smoke ./...
//
// SMOKE_NUM_USERS controls concurrency (default 10).
package focuskeep_test

import (
	"context"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/focuskeep/focuskeep/pkg/client"
	"github.com/focuskeep/focuskeep/pkg/focuskeep"
	"github.com/focuskeep/focuskeep/pkg/focuskeeptesting"
	"github.com/focuskeep/focuskeep/pkg/store/kvblob"
	"github.com/focuskeep/focuskeep/pkg/store/routing"
	"github.com/focuskeep/focuskeep/pkg/store/storetest"
)

func smokeEnvInt(key string, def int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return def
}

// smokeBaseURL returns the target server. Without FOCUSKEEP_URL an
// in-process server over in-memory backends is used, so the suite runs
// standalone while still exercising every layer above the storage host.
func smokeBaseURL(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("FOCUSKEEP_URL"); url != "" {
		return url
	}
	app, err := focuskeep.NewWithBackends(&focuskeep.Config{
		ReadSource: routing.ReadSourceLegacy,
		DualWrite:  true,
		LogLevel:   "error",
	}, kvblob.New(storetest.NewMemoryKV()), kvblob.New(storetest.NewMemoryKV()), storetest.NewMemoryLedger())
	require.NoError(t, err)
	server := httptest.NewServer(app.Handler())
	t.Cleanup(server.Close)
	return server.URL
}

func TestSmoke_concurrentUsers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	baseURL := smokeBaseURL(t)
	require.NoError(t, client.New(baseURL).Health(ctx), "server not reachable at %s", baseURL)

	numUsers := smokeEnvInt("SMOKE_NUM_USERS", 10)
	users := make([]*focuskeeptesting.VirtualUser, numUsers)
	errs := make([]error, numUsers)

	var wg sync.WaitGroup
	for i := 0; i < numUsers; i++ {
		users[i] = focuskeeptesting.NewVirtualUser(baseURL, i)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := users[i].RunScenario(ctx); err != nil {
				errs[i] = err
				return
			}
			errs[i] = users[i].Verify(ctx)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "virtual user %d", i)
	}
}

// TestSmoke_repeatedScenarios runs several scenarios per user sequentially,
// verifying state stays consistent as it accumulates.
func TestSmoke_repeatedScenarios(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	baseURL := smokeBaseURL(t)
	require.NoError(t, client.New(baseURL).Health(ctx))

	user := focuskeeptesting.NewVirtualUser(baseURL, 1000)
	for round := 0; round < 3; round++ {
		require.NoError(t, user.RunScenario(ctx), "round %d", round)
		require.NoError(t, user.Verify(ctx), "round %d", round)
	}
}

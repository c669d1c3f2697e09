package tracker_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bamsammich/relay/internal/tracker"
)

// startPostgres runs a PostgreSQL container and returns its URL.
func startPostgres(t *testing.T) string {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("set TEST_INTEGRATION to run PostgreSQL tests")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("relay_test"),
		postgres.WithUsername("relay"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPostgresTracker(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	runContract(t, func(t *testing.T) tracker.Tracker {
		tr, err := tracker.OpenPostgres(ctx, dsn, nil, tracker.WithClock(fixedClock))
		require.NoError(t, err)
		// Subtests share one database; start each from an empty table.
		require.NoError(t, tr.Truncate(ctx))
		t.Cleanup(func() { _ = tr.Close() })
		return tr
	})
}

func TestPostgresMigrateIdempotent(t *testing.T) {
	dsn := startPostgres(t)

	require.NoError(t, tracker.Migrate(dsn, nil))
	require.NoError(t, tracker.Migrate(dsn, nil))
}

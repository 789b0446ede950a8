package pgstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newIntegrationBackend starts a real PostgreSQL container, mirroring
// pkg/database/client_test.go's newTestClient. Skipped unless
// MASC_PG_INTEGRATION=1 is set, since it requires a Docker daemon.
func newIntegrationBackend(t *testing.T) *Backend {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("masc_test"),
		postgres.WithUsername("masc"),
		postgres.WithPassword("masc"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(pgContainer)
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	b, err := New(ctx, Config{DSN: connStr, MaxOpenConns: 5})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestPGStore_Integration_CompareAndPutAndLock(t *testing.T) {
	if testingShortOrUnset() {
		t.Skip("set MASC_PG_INTEGRATION=1 to run against a real PostgreSQL container")
	}

	ctx := context.Background()
	b := newIntegrationBackend(t)

	ok, err := b.CompareAndPut(ctx, "seq", nil, []byte("1"))
	require.NoError(t, err)
	require.True(t, ok)

	res, err := b.Lock(ctx, "file:src/main.go", "a", time.Minute)
	require.NoError(t, err)
	require.True(t, res.Acquired)

	res, err = b.Lock(ctx, "file:src/main.go", "b", time.Minute)
	require.NoError(t, err)
	require.False(t, res.Acquired)
	require.Equal(t, "a", res.HeldBy)
}

func testingShortOrUnset() bool {
	return os.Getenv("MASC_PG_INTEGRATION") != "1"
}

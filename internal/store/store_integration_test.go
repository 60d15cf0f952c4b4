//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/nidhogg/faculty-map/internal/refdata"
)

// startPostgres starts a PostgreSQL testcontainer and returns its DSN.
func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("facultymap_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start postgres")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestReferenceRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	s, err := New(ctx, startPostgres(t, ctx), zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Migrate(ctx, "../../migrations"))
	// A second run finds nothing pending.
	require.NoError(t, s.Migrate(ctx, "../../migrations"))
	var versions int
	require.NoError(t, s.db.QueryRow(ctx, `SELECT count(*) FROM schema_migrations`).Scan(&versions))
	assert.Equal(t, 1, versions)

	want, err := refdata.Default()
	require.NoError(t, err)
	require.NoError(t, s.ImportReference(ctx, want))

	got, err := s.LoadReference(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.Agents, got.Agents)
	assert.Equal(t, want.Zones, got.Zones)
	assert.Equal(t, want.Schedule, got.Schedule)

	// Re-import replaces rather than appends.
	require.NoError(t, s.ImportReference(ctx, want))
	got, err = s.LoadReference(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Schedule, len(want.Schedule))
}

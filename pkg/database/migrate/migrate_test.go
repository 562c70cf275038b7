//go:build integration

package migrate

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/edgefence/edgefence/pkg/audit"
	auditpg "github.com/edgefence/edgefence/pkg/audit/postgres"
)

func TestMigrations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx, "postgres:15",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	defer func() { _ = pgContainer.Terminate(ctx) }()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	t.Run("Run applies migrations", func(t *testing.T) {
		require.NoError(t, Run(db))

		var exists bool
		err := db.QueryRow(`
			SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_name = 'gate_audit'
			)
		`).Scan(&exists)
		require.NoError(t, err)
		require.True(t, exists)
	})

	t.Run("Run is idempotent", func(t *testing.T) {
		require.NoError(t, Run(db))
	})

	t.Run("audit store round trip", func(t *testing.T) {
		store := auditpg.New(db, auditpg.Config{})
		defer func() { _ = store.Close() }()

		event := *audit.NewEvent("1.2.3.4").
			WithRequestID("req-1").
			WithDecision(false, "WARP_VPN", "anonymized_traffic")
		require.NoError(t, store.Log(ctx, event))

		events, err := store.Query(ctx, audit.QueryFilter{ClientIdentity: "1.2.3.4"})
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, event.ID, events[0].ID)
		require.Equal(t, "WARP_VPN", events[0].Service)
	})

	t.Run("Down rolls back", func(t *testing.T) {
		require.NoError(t, Down(db))

		var exists bool
		err := db.QueryRow(`
			SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_name = 'gate_audit'
			)
		`).Scan(&exists)
		require.NoError(t, err)
		require.False(t, exists)
	})
}

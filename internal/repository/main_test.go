//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mindmesh-ai/mindmesh/internal/testutil"
)

type testDB struct {
	pool *pgxpool.Pool
}

// testutilContainer spins up a pgvector container with migrations applied.
// The container is terminated when the test finishes.
func testutilContainer(ctx context.Context, t *testing.T) *testDB {
	t.Helper()

	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() {
		_ = pc.Terminate(context.Background())
	})

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	return &testDB{pool: pool}
}

package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aaronlee0321/gddsearch/db"
)

// Pool connects to the database named by TEST_DATABASE_URL, runs
// migrations, and registers cleanup. Tests calling Pool are skipped
// when the variable is unset, keeping the default `go test` run free of
// external services.
//
// The database must have the pgvector extension available, e.g. a
// pgvector/pgvector:pg16 instance.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set - skipping test requiring PostgreSQL")
	}

	if err := db.Migrate(url); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connecting to test database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("pinging test database: %v", err)
	}

	t.Cleanup(pool.Close)
	return pool
}

// Truncate empties the given tables between tests.
func Truncate(t *testing.T, pool *pgxpool.Pool, tables ...string) {
	t.Helper()
	ctx := context.Background()
	for _, table := range tables {
		if _, err := pool.Exec(ctx, "TRUNCATE "+table+" CASCADE"); err != nil {
			t.Fatalf("truncating %s: %v", table, err)
		}
	}
}

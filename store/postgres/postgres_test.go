package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dabgent/dabgent"
	"github.com/dabgent/dabgent/store/postgres"
	"github.com/dabgent/dabgent/store/storetest"
)

// TestStore_Suite runs against a real Postgres instance named by
// DABGENT_TEST_POSTGRES_DSN. Skipped otherwise — this package has no
// in-process Postgres fake, matching the teacher's own integration-test
// convention of gating on an env-provided DSN rather than faking pgx.
func TestStore_Suite(t *testing.T) {
	dsn := os.Getenv("DABGENT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DABGENT_TEST_POSTGRES_DSN not set")
	}

	storetest.Suite(t, func(t *testing.T) dabgent.EventStore[storetest.Event] {
		ctx := context.Background()
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(pool.Close)

		if _, err := pool.Exec(ctx, `TRUNCATE TABLE events`); err != nil {
			t.Fatal(err)
		}

		st, err := postgres.New[storetest.Event](ctx, pool, storetest.Decode)
		if err != nil {
			t.Fatal(err)
		}
		return st
	})
}

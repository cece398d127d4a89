// Package dbtest provides the shared test harness for integration tests
// that exercise pkg/storage/postgres against a live database: the
// skip-if-unconfigured convention, fresh-store bootstrap, and
// collision-free fixture names for tests sharing a database across
// parallel runs.
package dbtest

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/kellnr/kellnr/pkg/auth"
	"github.com/kellnr/kellnr/pkg/storage"
	"github.com/kellnr/kellnr/pkg/storage/postgres"
)

// FixtureName returns a collision-free name for prefix, suitable for a
// principal or package created against a live database that parallel
// test runs share.
func FixtureName(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// SkipIfNoDatabase skips the test unless TEST_POSTGRES_PRIMARY is set,
// returning its value.
func SkipIfNoDatabase(t *testing.T) string {
	t.Helper()

	dbURL := os.Getenv("TEST_POSTGRES_PRIMARY")
	if dbURL == "" {
		t.Skip("skipping test: TEST_POSTGRES_PRIMARY not set (database not available)")
	}
	return dbURL
}

// RequireDatabase returns a raw connection to TEST_POSTGRES_PRIMARY,
// skipping the test if it isn't set or isn't reachable.
func RequireDatabase(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := SkipIfNoDatabase(t)
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Skipf("failed to connect to database: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("database not reachable: %v", err)
	}
	return db
}

// RequireStore opens a fresh *postgres.Store against TEST_POSTGRES_PRIMARY
// (migrations applied, no cache), skipping the test if unavailable. The
// store is closed automatically at test cleanup.
func RequireStore(t *testing.T) *postgres.Store {
	t.Helper()

	dbURL := SkipIfNoDatabase(t)
	store, err := postgres.NewStore(storage.Config{
		PostgresURL: dbURL,
	})
	if err != nil {
		t.Skipf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// Bootstrap seeds the single admin principal a fresh deployment starts
// with: auth.BootstrapAdminName, authenticated by
// auth.BootstrapAdminPassword.
func Bootstrap(ctx context.Context, store *postgres.Store) error {
	_, err := store.AddUser(ctx, auth.BootstrapAdminName,
		auth.BootstrapAdminPassword, auth.BootstrapAdminSalt, true, false)
	return err
}

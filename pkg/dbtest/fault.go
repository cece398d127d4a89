package dbtest

import (
	"context"
	"database/sql"
	"testing"
)

// FaultInjector asserts that a failed write transaction left no partial
// rows behind, the property spec'd by the add/delete-crate rollback
// tests: a mid-transaction failure must not be observable afterward.
type FaultInjector struct {
	db *sql.DB
}

// NewFaultInjector wraps db for rollback-atomicity assertions.
func NewFaultInjector(db *sql.DB) *FaultInjector {
	return &FaultInjector{db: db}
}

// CountRows returns the row count of table matching where (an already
// parameterized SQL fragment, e.g. "package_id = $1").
func (f *FaultInjector) CountRows(ctx context.Context, table, where string, args ...interface{}) (int, error) {
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var count int
	if err := f.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// AssertRowCount fails the test if table (filtered by where) doesn't
// hold exactly want rows. Use after a write is expected to fail, to
// confirm the transaction left no partial state.
func (f *FaultInjector) AssertRowCount(t *testing.T, table, where string, want int, args ...interface{}) {
	t.Helper()
	got, err := f.CountRows(context.Background(), table, where, args...)
	if err != nil {
		t.Fatalf("CountRows(%s): %v", table, err)
	}
	if got != want {
		t.Errorf("row count in %s = %d, want %d (partial write after rollback?)", table, got, want)
	}
}

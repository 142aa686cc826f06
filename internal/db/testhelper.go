package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

// OpenTestAuditStore opens a migrated audit store in t.TempDir() and
// registers cleanup.
func OpenTestAuditStore(t *testing.T) *sql.DB {
	t.Helper()

	db, err := OpenAuditStore(context.Background(), filepath.Join(t.TempDir(), "audit.sqlite"))
	if err != nil {
		t.Fatalf("open test audit store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

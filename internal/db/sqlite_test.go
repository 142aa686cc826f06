package db

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditDSN(t *testing.T) {
	dsn := auditDSN("/tmp/audit.sqlite")

	assert.True(t, strings.HasPrefix(dsn, "/tmp/audit.sqlite?"))
	assert.Contains(t, dsn, "_journal_mode=WAL")
	assert.Contains(t, dsn, "_busy_timeout=5000")
	assert.Contains(t, dsn, "_synchronous=NORMAL")
	assert.Contains(t, dsn, "_txlock=immediate")
}

func TestOpenAuditStore(t *testing.T) {
	db := OpenTestAuditStore(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", strings.ToLower(journalMode))
	assert.Equal(t, 1, db.Stats().MaxOpenConnections)

	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'query_runs'").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "query_runs", name)
}

func TestOpenAuditStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.sqlite")

	first, err := OpenAuditStore(context.Background(), path)
	require.NoError(t, err)
	_, err = first.Exec(`INSERT INTO query_runs (id, tenant_id, request, status) VALUES ('r1', 1, 'q', 'SUCCEEDED')`)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := OpenAuditStore(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	var n int
	require.NoError(t, second.QueryRow("SELECT count(*) FROM query_runs").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestOpenAuditStore_RejectsEmptyPath(t *testing.T) {
	_, err := OpenAuditStore(context.Background(), " ")
	require.Error(t, err)
}

func TestQueryRunsStatusConstraint(t *testing.T) {
	db := OpenTestAuditStore(t)
	_, err := db.Exec(`INSERT INTO query_runs (id, tenant_id, request, status) VALUES ('r1', 1, 'q', 'RUNNING')`)
	assert.Error(t, err)
}

func TestDriverName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		dialect string
		want    string
		wantErr bool
	}{
		{"mysql", "mysql", false},
		{"postgres", "pgx", false},
		{"PGX", "pgx", false},
		{"sqlite", "sqlite3", false},
		{"duckdb", "duckdb", false},
		{"oracle", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.dialect, func(t *testing.T) {
			t.Parallel()
			got, err := DriverName(tc.dialect)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestOpenTarget(t *testing.T) {
	t.Parallel()

	db, err := OpenTarget(context.Background(), TargetConfig{Dialect: "sqlite3", DSN: filepath.Join(t.TempDir(), "store.db"), MaxOpenConns: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	assert.Equal(t, 2, db.Stats().MaxOpenConnections)

	db2, err := OpenTarget(context.Background(), TargetConfig{Dialect: "duckdb"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db2.Close() })

	_, err = OpenTarget(context.Background(), TargetConfig{Dialect: "mysql"})
	assert.Error(t, err)
}

package schema

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInformationSchemaIntrospector_DuckDB(t *testing.T) {
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE orders (id INTEGER NOT NULL, store_id INTEGER NOT NULL, total DECIMAL(10,2), note VARCHAR)`)
	require.NoError(t, err)

	in := NewIntrospector(db, "duckdb")
	ctx := context.Background()

	ok, err := in.TableExists(ctx, "orders")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = in.TableExists(ctx, "customers")
	require.NoError(t, err)
	assert.False(t, ok)

	cols, err := in.Columns(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, cols, 4)
	assert.Equal(t, "id", cols[0].Name)
	assert.False(t, cols[0].Nullable)
	assert.Equal(t, "total", cols[2].Name)
	assert.True(t, cols[2].Nullable)

	_, err = in.Indexes(ctx, "orders")
	assert.True(t, errors.Is(err, ErrUnsupported))
	_, err = in.ForeignKeys(ctx, "orders")
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestInformationSchemaIntrospector_BindsPostgresPlaceholders(t *testing.T) {
	t.Parallel()
	in := NewInformationSchemaIntrospector(nil, "pgx")
	assert.Equal(t, "a = $1 AND b = $2", in.bind("a = ? AND b = ?"))
	assert.Equal(t, "current_schema()", in.currentSchema())

	my := NewInformationSchemaIntrospector(nil, "mysql")
	assert.Equal(t, "a = ?", my.bind("a = ?"))
	assert.Equal(t, "DATABASE()", my.currentSchema())
}

package schema

import (
	"context"
	"database/sql"
	"fmt"

	"dynaquery/internal/domain"
)

// SQLiteIntrospector reads table metadata through SQLite's pragma
// table-valued functions.
type SQLiteIntrospector struct {
	db *sql.DB
}

// NewSQLiteIntrospector creates a SQLiteIntrospector.
func NewSQLiteIntrospector(db *sql.DB) *SQLiteIntrospector {
	return &SQLiteIntrospector{db: db}
}

// TableExists implements domain.SchemaIntrospector.
func (s *SQLiteIntrospector) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?`, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup table: %w", err)
	}
	return n > 0, nil
}

// Columns implements domain.SchemaIntrospector.
func (s *SQLiteIntrospector) Columns(ctx context.Context, table string) ([]domain.Column, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var cols []domain.Column
	for rows.Next() {
		var (
			c       domain.Column
			notNull int
			pk      int
		)
		if err := rows.Scan(&c.Name, &c.Type, &notNull, &pk); err != nil {
			return nil, err
		}
		c.Nullable = notNull == 0 && pk == 0
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// Indexes implements domain.SchemaIntrospector.
func (s *SQLiteIntrospector) Indexes(ctx context.Context, table string) ([]domain.Index, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, "unique" FROM pragma_index_list(?) ORDER BY name`, table)
	if err != nil {
		return nil, err
	}
	var indexes []domain.Index
	for rows.Next() {
		var (
			idx    domain.Index
			unique int
		)
		if err := rows.Scan(&idx.Name, &unique); err != nil {
			_ = rows.Close()
			return nil, err
		}
		idx.Unique = unique == 1
		indexes = append(indexes, idx)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	// Column lookups run after the list is closed; in-memory databases are
	// limited to a single connection.
	for i := range indexes {
		cols, err := s.indexColumns(ctx, indexes[i].Name)
		if err != nil {
			return nil, err
		}
		indexes[i].Columns = cols
	}
	return indexes, nil
}

func (s *SQLiteIntrospector) indexColumns(ctx context.Context, index string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_index_info(?) ORDER BY seqno`, index)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var cols []string
	for rows.Next() {
		var name sql.NullString
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if name.Valid {
			cols = append(cols, name.String)
		}
	}
	return cols, rows.Err()
}

// ForeignKeys implements domain.SchemaIntrospector.
func (s *SQLiteIntrospector) ForeignKeys(ctx context.Context, table string) ([]domain.ForeignKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, "table", "from", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var (
		fks    []domain.ForeignKey
		lastID = -1
	)
	for rows.Next() {
		var (
			id        int
			ref, from string
			to        sql.NullString
		)
		if err := rows.Scan(&id, &ref, &from, &to); err != nil {
			return nil, err
		}
		if id != lastID {
			fks = append(fks, domain.ForeignKey{ForeignTable: ref})
			lastID = id
		}
		fk := &fks[len(fks)-1]
		fk.Columns = append(fk.Columns, from)
		fk.ForeignColumns = append(fk.ForeignColumns, to.String)
	}
	return fks, rows.Err()
}

var _ domain.SchemaIntrospector = (*SQLiteIntrospector)(nil)

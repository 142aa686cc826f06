package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"dynaquery/internal/domain"
)

// InformationSchemaIntrospector reads table metadata from
// information_schema for MySQL, PostgreSQL and DuckDB. Index and foreign key
// lookups fall back to ErrUnsupported where the dialect has no portable view.
type InformationSchemaIntrospector struct {
	db      *sql.DB
	dialect string
}

// NewInformationSchemaIntrospector creates an introspector for dialect
// "mysql", "postgres" or "duckdb".
func NewInformationSchemaIntrospector(db *sql.DB, dialect string) *InformationSchemaIntrospector {
	if dialect == "pgx" {
		dialect = "postgres"
	}
	return &InformationSchemaIntrospector{db: db, dialect: dialect}
}

// currentSchema is the SQL expression naming the connection's schema.
func (s *InformationSchemaIntrospector) currentSchema() string {
	if s.dialect == "mysql" {
		return "DATABASE()"
	}
	return "current_schema()"
}

// bind rewrites '?' placeholders to $n for PostgreSQL.
func (s *InformationSchemaIntrospector) bind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// TableExists implements domain.SchemaIntrospector.
func (s *InformationSchemaIntrospector) TableExists(ctx context.Context, table string) (bool, error) {
	q := s.bind(`SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = ` + s.currentSchema() + ` AND table_name = ?`)
	var n int
	if err := s.db.QueryRowContext(ctx, q, table).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup table: %w", err)
	}
	return n > 0, nil
}

// Columns implements domain.SchemaIntrospector.
func (s *InformationSchemaIntrospector) Columns(ctx context.Context, table string) ([]domain.Column, error) {
	typeCol := "data_type"
	if s.dialect == "mysql" {
		typeCol = "column_type"
	}
	q := s.bind(`SELECT column_name, ` + typeCol + `, is_nullable FROM information_schema.columns
		WHERE table_schema = ` + s.currentSchema() + ` AND table_name = ?
		ORDER BY ordinal_position`)
	rows, err := s.db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var cols []domain.Column
	for rows.Next() {
		var (
			c        domain.Column
			nullable string
		)
		if err := rows.Scan(&c.Name, &c.Type, &nullable); err != nil {
			return nil, err
		}
		c.Nullable = strings.EqualFold(nullable, "YES")
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// Indexes implements domain.SchemaIntrospector.
func (s *InformationSchemaIntrospector) Indexes(ctx context.Context, table string) ([]domain.Index, error) {
	var q string
	switch s.dialect {
	case "mysql":
		q = `SELECT index_name, non_unique = 0, column_name FROM information_schema.statistics
			WHERE table_schema = DATABASE() AND table_name = ?
			ORDER BY index_name, seq_in_index`
	case "postgres":
		q = `SELECT i.relname, ix.indisunique, a.attname
			FROM pg_class t
			JOIN pg_index ix ON t.oid = ix.indrelid
			JOIN pg_class i ON i.oid = ix.indexrelid
			JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
			WHERE t.relname = $1 AND t.relnamespace = current_schema()::regnamespace
			ORDER BY i.relname, array_position(ix.indkey, a.attnum)`
	default:
		return nil, ErrUnsupported
	}
	rows, err := s.db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var indexes []domain.Index
	for rows.Next() {
		var (
			name, col string
			unique    bool
		)
		if err := rows.Scan(&name, &unique, &col); err != nil {
			return nil, err
		}
		if len(indexes) == 0 || indexes[len(indexes)-1].Name != name {
			indexes = append(indexes, domain.Index{Name: name, Unique: unique})
		}
		idx := &indexes[len(indexes)-1]
		idx.Columns = append(idx.Columns, col)
	}
	return indexes, rows.Err()
}

// ForeignKeys implements domain.SchemaIntrospector.
func (s *InformationSchemaIntrospector) ForeignKeys(ctx context.Context, table string) ([]domain.ForeignKey, error) {
	var q string
	switch s.dialect {
	case "mysql":
		q = `SELECT constraint_name, column_name, referenced_table_name, referenced_column_name
			FROM information_schema.key_column_usage
			WHERE table_schema = DATABASE() AND table_name = ? AND referenced_table_name IS NOT NULL
			ORDER BY constraint_name, ordinal_position`
	case "postgres":
		q = `SELECT tc.constraint_name, kcu.column_name, ccu.table_name, ccu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
			  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
			JOIN information_schema.constraint_column_usage ccu
			  ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
			WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = current_schema()
			  AND tc.table_name = $1
			ORDER BY tc.constraint_name, kcu.ordinal_position`
	default:
		return nil, ErrUnsupported
	}
	rows, err := s.db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var (
		fks  []domain.ForeignKey
		last string
	)
	for rows.Next() {
		var name, col, refTable, refCol string
		if err := rows.Scan(&name, &col, &refTable, &refCol); err != nil {
			return nil, err
		}
		if len(fks) == 0 || name != last {
			fks = append(fks, domain.ForeignKey{ForeignTable: refTable})
			last = name
		}
		fk := &fks[len(fks)-1]
		fk.Columns = append(fk.Columns, col)
		fk.ForeignColumns = append(fk.ForeignColumns, refCol)
	}
	return fks, rows.Err()
}

var _ domain.SchemaIntrospector = (*InformationSchemaIntrospector)(nil)

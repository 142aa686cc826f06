package schema

import (
	"database/sql"
	"errors"

	"dynaquery/internal/domain"
)

// ErrUnsupported is returned by introspectors for metadata a dialect cannot
// report. The provider treats it as an empty result.
var ErrUnsupported = errors.New("not supported by this dialect")

// NewIntrospector returns the introspector for a database dialect.
func NewIntrospector(db *sql.DB, dialect string) domain.SchemaIntrospector {
	if dialect == "sqlite3" || dialect == "sqlite" {
		return NewSQLiteIntrospector(db)
	}
	return NewInformationSchemaIntrospector(db, dialect)
}

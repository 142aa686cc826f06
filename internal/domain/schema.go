package domain

import (
	"sort"
	"time"
)

// Column describes a single table column exposed to the generator.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Index describes a table index.
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

// ForeignKey describes a foreign key from local columns to another table.
type ForeignKey struct {
	Columns        []string `json:"columns"`
	ForeignTable   string   `json:"foreign_table"`
	ForeignColumns []string `json:"foreign_columns"`
}

// TableSchema is the introspected shape of one allowlisted table.
type TableSchema struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"` // ordinal order
	Indexes     []Index      `json:"indexes"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
}

// SchemaSnapshot is the immutable set of tables the generator may reference.
// It is built once per cache fill and never mutated afterwards.
type SchemaSnapshot struct {
	Tenant  TenantID               `json:"tenant"`
	Tables  map[string]TableSchema `json:"tables"`
	BuiltAt time.Time              `json:"built_at"`
}

// TableNames returns the snapshot's table names in sorted order.
func (s *SchemaSnapshot) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SchemaChange signals that the live schema changed. A nil Tenant means every
// cached snapshot is stale.
type SchemaChange struct {
	Tenant *TenantID `json:"tenant,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

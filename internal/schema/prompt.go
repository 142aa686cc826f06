package schema

import (
	"context"
	"strings"

	"dynaquery/internal/domain"
)

// GetSchemaForPrompt renders the tenant's snapshot as compact text for a
// generation prompt.
func (p *Provider) GetSchemaForPrompt(ctx context.Context, tenant domain.TenantID) (string, error) {
	snap, err := p.GetSchema(ctx, tenant)
	if err != nil {
		return "", err
	}
	return RenderPrompt(snap), nil
}

// RenderPrompt formats a snapshot deterministically: tables in name order,
// columns in ordinal order with nullability, then foreign keys as
// "local_cols -> foreign_table.foreign_cols".
func RenderPrompt(snap *domain.SchemaSnapshot) string {
	if snap == nil || len(snap.Tables) == 0 {
		return "No tables are available.\n"
	}
	var b strings.Builder
	for i, name := range snap.TableNames() {
		if i > 0 {
			b.WriteByte('\n')
		}
		t := snap.Tables[name]
		b.WriteString("Table: " + name + "\n")
		b.WriteString("Columns:\n")
		for _, c := range t.Columns {
			null := "NOT NULL"
			if c.Nullable {
				null = "NULL"
			}
			b.WriteString("  - " + c.Name)
			if c.Type != "" {
				b.WriteString(" " + strings.ToUpper(c.Type))
			}
			b.WriteString(" " + null + "\n")
		}
		if len(t.ForeignKeys) > 0 {
			b.WriteString("Foreign keys:\n")
			for _, fk := range t.ForeignKeys {
				b.WriteString("  - " + strings.Join(fk.Columns, ", ") + " -> " +
					fk.ForeignTable + "." + strings.Join(fk.ForeignColumns, ", ") + "\n")
			}
		}
	}
	return b.String()
}

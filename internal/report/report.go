// Package report renders query results for the display, voice, email, csv
// and summary channels.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"dynaquery/internal/domain"
)

const (
	voiceMaxRows    = 5
	voiceMaxColumns = 4
)

// Compile-time check.
var _ domain.ReportFormatter = (*Formatter)(nil)

// Formatter implements domain.ReportFormatter. It is stateless and safe for
// concurrent use.
type Formatter struct{}

// NewFormatter creates a Formatter.
func NewFormatter() *Formatter {
	return &Formatter{}
}

// Format renders rows in the requested format. Unknown formats fall back to
// display.
func (f *Formatter) Format(rows []domain.Row, expectedColumns []string, format domain.ReportFormat) domain.FormattedReport {
	out := domain.FormattedReport{Format: format, Summary: Summary(len(rows))}
	switch format {
	case domain.FormatVoice:
		out.Text = voice(rows)
	case domain.FormatEmail:
		out.Table = buildTable(rows, expectedColumns)
		out.HTML = renderEmail(out.Table, out.Summary)
	case domain.FormatCSV:
		out.Text = toCSV(rows)
	case domain.FormatSummary:
		out.Text = out.Summary
	default:
		out.Format = domain.FormatDisplay
		out.Table = buildTable(rows, expectedColumns)
	}
	return out
}

// Summary returns the result-count sentence.
func Summary(n int) string {
	switch n {
	case 0:
		return "No results found"
	case 1:
		return "1 result found"
	default:
		return fmt.Sprintf("%d results found", n)
	}
}

// headers come from the first row, or expectedColumns when there are no rows.
func headers(rows []domain.Row, expectedColumns []string) []string {
	if len(rows) > 0 {
		return rows[0].Columns()
	}
	if expectedColumns == nil {
		return []string{}
	}
	return append([]string(nil), expectedColumns...)
}

func buildTable(rows []domain.Row, expectedColumns []string) *domain.ReportTable {
	hdr := headers(rows, expectedColumns)
	t := &domain.ReportTable{Headers: hdr, Rows: make([][]string, 0, len(rows))}
	for _, r := range rows {
		cells := make([]string, len(hdr))
		for i, h := range hdr {
			v, _ := r.Get(h)
			cells[i] = DisplayValue(v)
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

func voice(rows []domain.Row) string {
	if len(rows) == 0 {
		return "No results found for your query."
	}

	title := cases.Title(language.English)
	var b strings.Builder
	if len(rows) == 1 {
		b.WriteString("I found 1 result.")
	} else {
		fmt.Fprintf(&b, "I found %d results.", len(rows))
	}

	for i, r := range rows {
		if i == voiceMaxRows {
			break
		}
		parts := make([]string, 0, voiceMaxColumns)
		for j, fld := range r {
			if j == voiceMaxColumns {
				break
			}
			parts = append(parts, readableKey(title, fld.Name)+": "+DisplayValue(fld.Value))
		}
		b.WriteString(" ")
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString(".")
	}

	if extra := len(rows) - voiceMaxRows; extra > 0 {
		if extra == 1 {
			b.WriteString(" And 1 more result.")
		} else {
			fmt.Fprintf(&b, " And %d more results.", extra)
		}
	}
	return b.String()
}

// readableKey turns order_id into "Order Id".
func readableKey(title cases.Caser, key string) string {
	key = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(key)
	return title.String(strings.Join(strings.Fields(key), " "))
}

func toCSV(rows []domain.Row) string {
	if len(rows) == 0 {
		return ""
	}
	hdr := rows[0].Columns()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(hdr)
	for _, r := range rows {
		rec := make([]string, len(hdr))
		for i, h := range hdr {
			v, _ := r.Get(h)
			rec[i] = RawValue(v)
		}
		_ = w.Write(rec)
	}
	w.Flush()
	return buf.String()
}

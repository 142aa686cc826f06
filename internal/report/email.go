package report

import (
	"strings"

	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"

	"dynaquery/internal/domain"
)

const (
	tableStyle   = "border-collapse:collapse;width:100%;font-family:Arial,Helvetica,sans-serif;font-size:14px;"
	headerStyle  = "background-color:#1f2937;color:#ffffff;text-align:left;padding:8px 12px;border:1px solid #d1d5db;"
	cellStyle    = "padding:8px 12px;border:1px solid #e5e7eb;"
	stripeEven   = "background-color:#ffffff;"
	stripeOdd    = "background-color:#f3f4f6;"
	summaryStyle = "font-family:Arial,Helvetica,sans-serif;font-size:14px;color:#374151;margin:0 0 12px 0;"
)

// renderEmail renders t as a self-contained HTML fragment with inline styles.
func renderEmail(t *domain.ReportTable, summary string) string {
	var b strings.Builder
	_ = emailNode(t, summary).Render(&b)
	return b.String()
}

func emailNode(t *domain.ReportTable, summary string) gomponents.Node {
	heads := make([]gomponents.Node, 0, len(t.Headers))
	for _, h := range t.Headers {
		heads = append(heads, html.Th(html.Style(headerStyle), gomponents.Text(h)))
	}

	rows := make([]gomponents.Node, 0, len(t.Rows))
	for i, r := range t.Rows {
		stripe := stripeEven
		if i%2 == 1 {
			stripe = stripeOdd
		}
		cells := make([]gomponents.Node, 0, len(r))
		for _, c := range r {
			cells = append(cells, html.Td(html.Style(cellStyle), gomponents.Text(c)))
		}
		rows = append(rows, html.Tr(html.Style(stripe), gomponents.Group(cells)))
	}

	return html.Div(
		html.P(html.Style(summaryStyle), gomponents.Text(summary)),
		gomponents.If(len(heads) > 0,
			html.Table(html.Style(tableStyle),
				html.THead(html.Tr(gomponents.Group(heads))),
				html.TBody(gomponents.Group(rows)),
			),
		),
	)
}

package domain

// ReportFormat names a channel-specific report representation.
type ReportFormat string

// Supported report formats.
const (
	FormatDisplay ReportFormat = "display"
	FormatVoice   ReportFormat = "voice"
	FormatEmail   ReportFormat = "email"
	FormatCSV     ReportFormat = "csv"
	FormatSummary ReportFormat = "summary"
)

// ReportTable is the display-ready grid shared by the display and email formats.
type ReportTable struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// FormattedReport is derived, stateless output of the report formatter.
// Table is set for display and email, HTML for email, Text for voice, csv and
// summary. Summary is always the count sentence.
type FormattedReport struct {
	Format  ReportFormat `json:"format"`
	Table   *ReportTable `json:"table,omitempty"`
	Text    string       `json:"text,omitempty"`
	HTML    string       `json:"html,omitempty"`
	Summary string       `json:"summary"`
}

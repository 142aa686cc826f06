package domain

import (
	"context"
)

// SchemaIntrospector reads live table metadata from the target database.
// Implemented by schema.SQLiteIntrospector and schema.InformationSchemaIntrospector.
type SchemaIntrospector interface {
	// TableExists reports whether the named table is present.
	TableExists(ctx context.Context, table string) (bool, error)
	// Columns returns the table's columns in ordinal order.
	Columns(ctx context.Context, table string) ([]Column, error)
	// Indexes and ForeignKeys are best-effort; drivers that cannot
	// introspect them may return an error which callers treat as empty.
	Indexes(ctx context.Context, table string) ([]Index, error)
	ForeignKeys(ctx context.Context, table string) ([]ForeignKey, error)
}

// SchemaSource supplies snapshots and their prompt rendering.
// Implemented by schema.Provider.
type SchemaSource interface {
	GetSchema(ctx context.Context, tenant TenantID) (*SchemaSnapshot, error)
	GetSchemaForPrompt(ctx context.Context, tenant TenantID) (string, error)
}

// TextGenerator sends a prompt to an external text-generation service and
// returns its raw completion. Implemented by generator.OpenAIClient.
type TextGenerator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// QueryGenerator turns a natural-language request into untrusted SQL.
// Implemented by generator.Generator.
type QueryGenerator interface {
	Generate(ctx context.Context, request string, tenant TenantID) (GeneratedQuery, error)
}

// QueryValidator enforces the read-only, allowlist and tenant-scoping rules.
// Implemented by sqlrewrite.Validator.
type QueryValidator interface {
	Validate(sql string, tenant TenantID) ValidationResult
}

// QueryExecutor runs validated SQL. Implemented by engine.Executor.
type QueryExecutor interface {
	Execute(ctx context.Context, sql string) ExecutionResult
}

// ReportFormatter renders rows for a delivery channel.
// Implemented by report.Formatter.
type ReportFormatter interface {
	Format(rows []Row, expectedColumns []string, format ReportFormat) FormattedReport
}

// Mailer delivers an email message. Implemented by delivery.SMTPMailer.
type Mailer interface {
	Send(ctx context.Context, msg *EmailMessage) error
}

// EmailMessage is the payload handed to a Mailer.
type EmailMessage struct {
	To            string
	Subject       string
	HTMLBody      string
	CSVAttachment []byte
	CSVFilename   string
}

// QueryRunRepository persists the query run history.
// Implemented by repository.QueryRunRepo.
type QueryRunRepository interface {
	Insert(ctx context.Context, run *QueryRun) error
	List(ctx context.Context, filter QueryRunFilter) ([]QueryRun, int64, error)
}

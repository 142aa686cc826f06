// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"dynaquery/internal/domain"
)

// DiscardLogger returns a logger that drops all output.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// === Schema Introspector Mock ===

// MockIntrospector implements domain.SchemaIntrospector for testing.
type MockIntrospector struct {
	TableExistsFn func(ctx context.Context, table string) (bool, error)
	ColumnsFn     func(ctx context.Context, table string) ([]domain.Column, error)
	IndexesFn     func(ctx context.Context, table string) ([]domain.Index, error)
	ForeignKeysFn func(ctx context.Context, table string) ([]domain.ForeignKey, error)

	Calls atomic.Int64 // total method calls
}

// TableExists implements the interface method for testing.
func (m *MockIntrospector) TableExists(ctx context.Context, table string) (bool, error) {
	m.Calls.Add(1)
	if m.TableExistsFn != nil {
		return m.TableExistsFn(ctx, table)
	}
	panic("unexpected call to MockIntrospector.TableExists")
}

// Columns implements the interface method for testing.
func (m *MockIntrospector) Columns(ctx context.Context, table string) ([]domain.Column, error) {
	m.Calls.Add(1)
	if m.ColumnsFn != nil {
		return m.ColumnsFn(ctx, table)
	}
	panic("unexpected call to MockIntrospector.Columns")
}

// Indexes implements the interface method for testing. A nil IndexesFn
// reports no indexes.
func (m *MockIntrospector) Indexes(ctx context.Context, table string) ([]domain.Index, error) {
	m.Calls.Add(1)
	if m.IndexesFn != nil {
		return m.IndexesFn(ctx, table)
	}
	return nil, nil
}

// ForeignKeys implements the interface method for testing. A nil
// ForeignKeysFn reports no foreign keys.
func (m *MockIntrospector) ForeignKeys(ctx context.Context, table string) ([]domain.ForeignKey, error) {
	m.Calls.Add(1)
	if m.ForeignKeysFn != nil {
		return m.ForeignKeysFn(ctx, table)
	}
	return nil, nil
}

var _ domain.SchemaIntrospector = (*MockIntrospector)(nil)

// === Schema Source Mock ===

// MockSchemaSource implements domain.SchemaSource for testing.
type MockSchemaSource struct {
	GetSchemaFn          func(ctx context.Context, tenant domain.TenantID) (*domain.SchemaSnapshot, error)
	GetSchemaForPromptFn func(ctx context.Context, tenant domain.TenantID) (string, error)
}

// GetSchema implements the interface method for testing.
func (m *MockSchemaSource) GetSchema(ctx context.Context, tenant domain.TenantID) (*domain.SchemaSnapshot, error) {
	if m.GetSchemaFn != nil {
		return m.GetSchemaFn(ctx, tenant)
	}
	panic("unexpected call to MockSchemaSource.GetSchema")
}

// GetSchemaForPrompt implements the interface method for testing.
func (m *MockSchemaSource) GetSchemaForPrompt(ctx context.Context, tenant domain.TenantID) (string, error) {
	if m.GetSchemaForPromptFn != nil {
		return m.GetSchemaForPromptFn(ctx, tenant)
	}
	panic("unexpected call to MockSchemaSource.GetSchemaForPrompt")
}

var _ domain.SchemaSource = (*MockSchemaSource)(nil)

// === Text Generator Mock ===

// MockTextGenerator implements domain.TextGenerator for testing.
type MockTextGenerator struct {
	CompleteFn func(ctx context.Context, system, user string) (string, error)
}

// Complete implements the interface method for testing.
func (m *MockTextGenerator) Complete(ctx context.Context, system, user string) (string, error) {
	if m.CompleteFn != nil {
		return m.CompleteFn(ctx, system, user)
	}
	panic("unexpected call to MockTextGenerator.Complete")
}

var _ domain.TextGenerator = (*MockTextGenerator)(nil)

// === Query Generator Mock ===

// MockQueryGenerator implements domain.QueryGenerator for testing.
type MockQueryGenerator struct {
	GenerateFn func(ctx context.Context, request string, tenant domain.TenantID) (domain.GeneratedQuery, error)
}

// Generate implements the interface method for testing.
func (m *MockQueryGenerator) Generate(ctx context.Context, request string, tenant domain.TenantID) (domain.GeneratedQuery, error) {
	if m.GenerateFn != nil {
		return m.GenerateFn(ctx, request, tenant)
	}
	panic("unexpected call to MockQueryGenerator.Generate")
}

var _ domain.QueryGenerator = (*MockQueryGenerator)(nil)

// === Query Validator Mock ===

// MockValidator implements domain.QueryValidator for testing.
type MockValidator struct {
	ValidateFn func(sql string, tenant domain.TenantID) domain.ValidationResult
}

// Validate implements the interface method for testing.
func (m *MockValidator) Validate(sql string, tenant domain.TenantID) domain.ValidationResult {
	if m.ValidateFn != nil {
		return m.ValidateFn(sql, tenant)
	}
	panic("unexpected call to MockValidator.Validate")
}

var _ domain.QueryValidator = (*MockValidator)(nil)

// === Query Executor Mock ===

// MockExecutor implements domain.QueryExecutor for testing. Executed
// collects every statement it was asked to run.
type MockExecutor struct {
	ExecuteFn func(ctx context.Context, sql string) domain.ExecutionResult

	mu       sync.Mutex
	Executed []string
}

// Execute implements the interface method for testing.
func (m *MockExecutor) Execute(ctx context.Context, sql string) domain.ExecutionResult {
	m.mu.Lock()
	m.Executed = append(m.Executed, sql)
	m.mu.Unlock()
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, sql)
	}
	panic("unexpected call to MockExecutor.Execute")
}

var _ domain.QueryExecutor = (*MockExecutor)(nil)

// === Mailer Mock ===

// MockMailer implements domain.Mailer for testing.
type MockMailer struct {
	SendFn func(ctx context.Context, msg *domain.EmailMessage) error
	Sent   []*domain.EmailMessage // collected messages for assertions
}

// Send implements the interface method for testing.
func (m *MockMailer) Send(ctx context.Context, msg *domain.EmailMessage) error {
	if m.SendFn != nil {
		if err := m.SendFn(ctx, msg); err != nil {
			return err
		}
	}
	m.Sent = append(m.Sent, msg)
	return nil
}

var _ domain.Mailer = (*MockMailer)(nil)

// === Query Run Repository Mock ===

// MockQueryRunRepo implements domain.QueryRunRepository for testing.
type MockQueryRunRepo struct {
	InsertFn func(ctx context.Context, run *domain.QueryRun) error
	ListFn   func(ctx context.Context, filter domain.QueryRunFilter) ([]domain.QueryRun, int64, error)
	Runs     []*domain.QueryRun // collected runs for assertions
}

// Insert implements the interface method for testing.
func (m *MockQueryRunRepo) Insert(ctx context.Context, run *domain.QueryRun) error {
	if m.InsertFn != nil {
		if err := m.InsertFn(ctx, run); err != nil {
			return err
		}
	}
	m.Runs = append(m.Runs, run)
	return nil
}

// List implements the interface method for testing.
func (m *MockQueryRunRepo) List(ctx context.Context, filter domain.QueryRunFilter) ([]domain.QueryRun, int64, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, filter)
	}
	panic("unexpected call to MockQueryRunRepo.List")
}

// LastRun returns the last collected run, or nil if none.
func (m *MockQueryRunRepo) LastRun() *domain.QueryRun {
	if len(m.Runs) == 0 {
		return nil
	}
	return m.Runs[len(m.Runs)-1]
}

var _ domain.QueryRunRepository = (*MockQueryRunRepo)(nil)

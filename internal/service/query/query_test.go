package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynaquery/internal/domain"
	"dynaquery/internal/engine"
	"dynaquery/internal/report"
	"dynaquery/internal/sqlrewrite"
	"dynaquery/internal/testutil"
)

func generated(sql string) *testutil.MockQueryGenerator {
	return &testutil.MockQueryGenerator{
		GenerateFn: func(_ context.Context, _ string, _ domain.TenantID) (domain.GeneratedQuery, error) {
			return domain.GeneratedQuery{SQL: sql, Explanation: "Orders for your store.", ExpectedColumns: []string{"id", "total"}}, nil
		},
	}
}

func validAs(sql string) *testutil.MockValidator {
	return &testutil.MockValidator{
		ValidateFn: func(_ string, _ domain.TenantID) domain.ValidationResult {
			return domain.ValidationResult{Valid: true, SQL: sql, Errors: []string{}}
		},
	}
}

func okExecution(rows ...domain.Row) *testutil.MockExecutor {
	return &testutil.MockExecutor{
		ExecuteFn: func(_ context.Context, _ string) domain.ExecutionResult {
			return domain.ExecutionResult{Success: true, Columns: []string{"id"}, Data: rows, RowCount: len(rows)}
		},
	}
}

// === Stage handling ===

func TestService_Run_Stages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		gen       *testutil.MockQueryGenerator
		val       *testutil.MockValidator
		exec      *testutil.MockExecutor
		wantStage Stage
		wantErr   string
		check     func(t *testing.T, res *Result, exec *testutil.MockExecutor)
	}{
		{
			name: "generation failure",
			gen: &testutil.MockQueryGenerator{
				GenerateFn: func(context.Context, string, domain.TenantID) (domain.GeneratedQuery, error) {
					return domain.GeneratedQuery{}, domain.ErrGeneration(errors.New("boom"), "failed to generate SQL: boom")
				},
			},
			val:       &testutil.MockValidator{},
			exec:      &testutil.MockExecutor{},
			wantStage: StageGenerate,
			wantErr:   "failed to generate SQL: boom",
		},
		{
			name: "untyped generator error is wrapped",
			gen: &testutil.MockQueryGenerator{
				GenerateFn: func(context.Context, string, domain.TenantID) (domain.GeneratedQuery, error) {
					return domain.GeneratedQuery{}, errors.New("network down")
				},
			},
			val:       &testutil.MockValidator{},
			exec:      &testutil.MockExecutor{},
			wantStage: StageGenerate,
			wantErr:   "failed to generate SQL: network down",
		},
		{
			name:      "empty sql is a generation failure",
			gen:       generated("   "),
			val:       &testutil.MockValidator{},
			exec:      &testutil.MockExecutor{},
			wantStage: StageGenerate,
			wantErr:   "failed to generate SQL: empty query",
		},
		{
			name: "validation failure carries reasons",
			gen:  generated("DELETE FROM orders"),
			val: &testutil.MockValidator{
				ValidateFn: func(sql string, _ domain.TenantID) domain.ValidationResult {
					return domain.ValidationResult{SQL: sql, Errors: []string{"dangerous keyword DELETE is not allowed"}}
				},
			},
			exec:      &testutil.MockExecutor{},
			wantStage: StageValidate,
			wantErr:   "query validation failed",
			check: func(t *testing.T, res *Result, exec *testutil.MockExecutor) {
				t.Helper()
				assert.Equal(t, []string{"dangerous keyword DELETE is not allowed"}, res.Errors)
				assert.Empty(t, exec.Executed)
				var ve *domain.ValidationError
				require.True(t, errors.As(res.Err(), &ve))
			},
		},
		{
			name: "execution failure",
			gen:  generated("SELECT id FROM orders"),
			val:  validAs("SELECT id FROM orders WHERE orders.store_id = 1 LIMIT 1000"),
			exec: &testutil.MockExecutor{
				ExecuteFn: func(context.Context, string) domain.ExecutionResult {
					msg := "query timed out"
					return domain.ExecutionResult{Error: &msg}
				},
			},
			wantStage: StageExecute,
			wantErr:   "query timed out",
			check: func(t *testing.T, res *Result, exec *testutil.MockExecutor) {
				t.Helper()
				assert.Equal(t, []string{"SELECT id FROM orders WHERE orders.store_id = 1 LIMIT 1000"}, exec.Executed)
				assert.Nil(t, res.Report)
				var ee *domain.ExecutionError
				require.True(t, errors.As(res.Err(), &ee))
			},
		},
		{
			name: "format panic is converted",
			gen:  generated("SELECT id FROM orders"),
			val:  validAs("SELECT id FROM orders LIMIT 1"),
			exec: okExecution(domain.Row{{Name: "id", Value: int64(1)}}),
			// formatter panics; see below
			wantStage: StageFormat,
			wantErr:   "internal error",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var f domain.ReportFormatter = report.NewFormatter()
			if tc.wantStage == StageFormat {
				f = panicFormatter{}
			}
			svc := NewService(tc.gen, tc.val, tc.exec, f, testutil.DiscardLogger())
			runs := &testutil.MockQueryRunRepo{}
			svc.SetRunRepository(runs)

			res := svc.Run(context.Background(), Request{Tenant: 1, Question: "orders", Format: domain.FormatDisplay})

			require.NotNil(t, res)
			assert.False(t, res.Success)
			assert.Equal(t, tc.wantStage, res.FailedStage)
			assert.Equal(t, tc.wantErr, res.Error)
			assert.NotEmpty(t, res.RunID)

			run := runs.LastRun()
			require.NotNil(t, run)
			assert.Equal(t, domain.RunStatusFailed, run.Status)
			require.NotNil(t, run.FailedStage)
			assert.Equal(t, string(tc.wantStage), *run.FailedStage)
			assert.Equal(t, res.RunID, run.ID)

			if tc.check != nil {
				tc.check(t, res, tc.exec)
			}
		})
	}
}

type panicFormatter struct{}

func (panicFormatter) Format([]domain.Row, []string, domain.ReportFormat) domain.FormattedReport {
	panic("formatter exploded")
}

func TestService_Run_InvalidTenant(t *testing.T) {
	t.Parallel()
	svc := NewService(&testutil.MockQueryGenerator{}, &testutil.MockValidator{}, &testutil.MockExecutor{}, report.NewFormatter(), testutil.DiscardLogger())

	res := svc.Run(context.Background(), Request{Tenant: 0, Question: "anything"})

	assert.False(t, res.Success)
	assert.Equal(t, StageValidate, res.FailedStage)
}

// === Delivery ===

func TestService_Run_DeliveryIsSeparateOutcome(t *testing.T) {
	t.Parallel()

	rows := []domain.Row{{{Name: "id", Value: int64(1)}, {Name: "total", Value: 12.5}}}

	t.Run("delivered", func(t *testing.T) {
		t.Parallel()
		mailer := &testutil.MockMailer{}
		svc := NewService(generated("SELECT id FROM orders"), validAs("SELECT 1"), okExecution(rows...), report.NewFormatter(), testutil.DiscardLogger())
		svc.SetMailer(mailer)

		res := svc.Run(context.Background(), Request{Tenant: 1, Question: "show   my\norders", Format: domain.FormatVoice, DeliverTo: "ops@example.com"})

		require.True(t, res.Success)
		require.NotNil(t, res.Delivery)
		assert.True(t, res.Delivery.Delivered)
		require.Len(t, mailer.Sent, 1)
		msg := mailer.Sent[0]
		assert.Equal(t, "ops@example.com", msg.To)
		assert.Equal(t, "Query results: show my orders", msg.Subject)
		assert.Contains(t, msg.HTMLBody, "<p>Orders for your store.</p>")
		assert.Contains(t, msg.HTMLBody, "<table")
		assert.Equal(t, "id,total\n1,12.5\n", string(msg.CSVAttachment))
		assert.Equal(t, domain.FormatVoice, res.Report.Format)
	})

	t.Run("delivery failure keeps query success", func(t *testing.T) {
		t.Parallel()
		mailer := &testutil.MockMailer{SendFn: func(context.Context, *domain.EmailMessage) error {
			return domain.ErrDelivery(errors.New("550"), "send email")
		}}
		runs := &testutil.MockQueryRunRepo{}
		svc := NewService(generated("SELECT id FROM orders"), validAs("SELECT 1"), okExecution(rows...), report.NewFormatter(), testutil.DiscardLogger())
		svc.SetMailer(mailer)
		svc.SetRunRepository(runs)

		res := svc.Run(context.Background(), Request{Tenant: 1, Question: "orders", DeliverTo: "ops@example.com"})

		assert.True(t, res.Success)
		assert.Empty(t, res.FailedStage)
		require.NotNil(t, res.Delivery)
		assert.False(t, res.Delivery.Delivered)
		assert.Equal(t, "send email", res.Delivery.Error)

		run := runs.LastRun()
		require.NotNil(t, run)
		assert.Equal(t, domain.RunStatusSucceeded, run.Status)
		require.NotNil(t, run.DeliveryStatus)
		assert.Equal(t, "FAILED", *run.DeliveryStatus)
	})

	t.Run("no mailer configured", func(t *testing.T) {
		t.Parallel()
		svc := NewService(generated("SELECT id FROM orders"), validAs("SELECT 1"), okExecution(rows...), report.NewFormatter(), testutil.DiscardLogger())

		res := svc.Run(context.Background(), Request{Tenant: 1, Question: "orders", DeliverTo: "ops@example.com"})

		assert.True(t, res.Success)
		require.NotNil(t, res.Delivery)
		assert.False(t, res.Delivery.Delivered)
		assert.Equal(t, "email delivery is not configured", res.Delivery.Error)
	})
}

func TestService_Run_AuditFailureIsIgnored(t *testing.T) {
	t.Parallel()
	runs := &testutil.MockQueryRunRepo{InsertFn: func(context.Context, *domain.QueryRun) error {
		return errors.New("disk full")
	}}
	svc := NewService(generated("SELECT id FROM orders"), validAs("SELECT 1"), okExecution(), report.NewFormatter(), testutil.DiscardLogger())
	svc.SetRunRepository(runs)

	res := svc.Run(context.Background(), Request{Tenant: 1, Question: "orders", Format: domain.FormatVoice})

	assert.True(t, res.Success)
	assert.Equal(t, "No results found for your query.", res.Report.Text)
}

// === End to end over sqlite ===

func openStoreDB(t *testing.T, n int) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE orders (id INTEGER PRIMARY KEY, store_id INTEGER NOT NULL, customer_id INTEGER, total REAL);
		CREATE TABLE customers (id INTEGER PRIMARY KEY, store_id INTEGER NOT NULL, name TEXT);
	`)
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		store := 42
		if i%2 == 0 {
			store = 7
		}
		_, err = db.Exec(`INSERT INTO orders (id, store_id, customer_id, total) VALUES (?, ?, ?, ?)`, i, store, i, float64(i)+0.25)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO customers (id, store_id, name) VALUES (?, ?, ?)`, i, store, fmt.Sprintf("c%d", i))
		require.NoError(t, err)
	}
	return db
}

func pipeline(t *testing.T, db *sql.DB, allowed []string, maxRows int, sql string) (*Service, *testutil.MockQueryRunRepo) {
	t.Helper()
	val := sqlrewrite.NewValidator(sqlrewrite.Config{AllowedTables: allowed, MaxRows: maxRows, Dialect: "sqlite3"}, testutil.DiscardLogger())
	exec := engine.NewExecutor(db, engine.Config{Dialect: "sqlite3", MaxRows: maxRows}, testutil.DiscardLogger())
	svc := NewService(generated(sql), val, exec, report.NewFormatter(), testutil.DiscardLogger())
	runs := &testutil.MockQueryRunRepo{}
	svc.SetRunRepository(runs)
	return svc, runs
}

func TestService_Run_EmptyAllowlistRejects(t *testing.T) {
	t.Parallel()
	gen := generated("SELECT SUM(total) FROM orders")
	val := sqlrewrite.NewValidator(sqlrewrite.Config{MaxRows: 1000, Dialect: "sqlite3"}, testutil.DiscardLogger())
	exec := &testutil.MockExecutor{}
	svc := NewService(gen, val, exec, report.NewFormatter(), testutil.DiscardLogger())

	res := svc.Run(context.Background(), Request{Tenant: 42, Question: "how much did we sell last week"})

	assert.False(t, res.Success)
	assert.Equal(t, StageValidate, res.FailedStage)
	assert.Empty(t, exec.Executed)
}

func TestService_Run_ScopesToTenant(t *testing.T) {
	t.Parallel()
	db := openStoreDB(t, 10)
	svc, runs := pipeline(t, db, []string{"orders", "customers"}, 1000,
		"SELECT o.id, o.total FROM orders o JOIN customers c ON c.id=o.customer_id ORDER BY o.id")

	res := svc.Run(context.Background(), Request{Tenant: 42, Question: "orders", Format: domain.FormatDisplay})

	require.True(t, res.Success, "error: %s %v", res.Error, res.Errors)
	assert.Contains(t, res.SQL, "o.store_id = 42")
	assert.Equal(t, 5, res.Execution.RowCount)
	assert.False(t, res.Execution.Truncated)
	require.NotNil(t, res.Report.Table)
	assert.Equal(t, []string{"id", "total"}, res.Report.Table.Headers)
	assert.Equal(t, []string{"1", "$1.25"}, res.Report.Table.Rows[0])

	run := runs.LastRun()
	require.NotNil(t, run)
	assert.Equal(t, domain.RunStatusSucceeded, run.Status)
	require.NotNil(t, run.RowCount)
	assert.Equal(t, int64(5), *run.RowCount)
	require.NotNil(t, run.ExecutedSQL)
	assert.Equal(t, res.SQL, *run.ExecutedSQL)
}

func TestService_Run_CapsRows(t *testing.T) {
	t.Parallel()
	db := openStoreDB(t, 40)
	svc, _ := pipeline(t, db, []string{"orders"}, 10, "SELECT * FROM orders WHERE store_id = ? LIMIT 50000")

	res := svc.Run(context.Background(), Request{Tenant: 42, Question: "all orders", Format: domain.FormatSummary})

	require.True(t, res.Success, "error: %s %v", res.Error, res.Errors)
	assert.True(t, strings.HasSuffix(res.SQL, "LIMIT 10"))
	assert.Equal(t, 10, res.Execution.RowCount)
	assert.True(t, res.Execution.Truncated)
	assert.Equal(t, "10 results found", res.Report.Text)
	for _, row := range res.Execution.Data {
		v, _ := row.Get("store_id")
		assert.Equal(t, int64(42), v)
	}
}

func TestService_Run_MultiStatementNeverExecutes(t *testing.T) {
	t.Parallel()
	db := openStoreDB(t, 2)
	svc, _ := pipeline(t, db, []string{"orders"}, 10, "SELECT * FROM orders; DROP TABLE orders;")

	res := svc.Run(context.Background(), Request{Tenant: 42, Question: "drop it"})

	assert.False(t, res.Success)
	assert.Equal(t, StageValidate, res.FailedStage)
	var n int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM orders").Scan(&n))
	assert.Equal(t, 2, n)
}

// === History ===

func TestService_History(t *testing.T) {
	t.Parallel()
	svc := NewService(&testutil.MockQueryGenerator{}, &testutil.MockValidator{}, &testutil.MockExecutor{}, report.NewFormatter(), testutil.DiscardLogger())

	_, _, err := svc.History(context.Background(), domain.QueryRunFilter{Tenant: 1})
	var nf *domain.NotFoundError
	require.True(t, errors.As(err, &nf))

	svc.SetRunRepository(&testutil.MockQueryRunRepo{
		ListFn: func(_ context.Context, f domain.QueryRunFilter) ([]domain.QueryRun, int64, error) {
			assert.Equal(t, domain.TenantID(9), f.Tenant)
			return []domain.QueryRun{{ID: "r1"}}, 1, nil
		},
	})
	got, total, err := svc.History(context.Background(), domain.QueryRunFilter{Tenant: 9})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, got, 1)
}

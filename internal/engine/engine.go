// Package engine executes validated SELECT statements against the target
// database with a hard row cap, a statement timeout and sanitized errors.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/duckdb/duckdb-go/v2"

	"dynaquery/internal/domain"
	"dynaquery/internal/sqllex"
	"dynaquery/internal/sqlrewrite"
)

// Defaults applied by NewExecutor.
const (
	DefaultMaxRows = 1000
	DefaultTimeout = 10 * time.Second
)

// clientGrace is added to the statement timeout for the client-side deadline
// so server-side limits fire first where they exist.
const clientGrace = time.Second

// Config configures an Executor.
type Config struct {
	// Dialect is the database family: mysql, postgres, sqlite3 or duckdb.
	Dialect        string
	MaxRows        int
	Timeout        time.Duration
	BlockedColumns []string
}

// Executor runs validated SQL. Callers must only pass statements returned by
// the validator.
type Executor struct {
	db      *sql.DB
	dialect string
	maxRows int
	timeout time.Duration
	blocked map[string]bool
	lexOpts sqllex.Options
	logger  *slog.Logger
}

// NewExecutor creates an Executor over db.
func NewExecutor(db *sql.DB, cfg Config, logger *slog.Logger) *Executor {
	e := &Executor{
		db:      db,
		dialect: normalizeDialect(cfg.Dialect),
		maxRows: cfg.MaxRows,
		timeout: cfg.Timeout,
		blocked: make(map[string]bool, len(cfg.BlockedColumns)),
		logger:  logger.With("component", "executor"),
	}
	e.lexOpts = sqllex.OptionsFor(e.dialect)
	if e.maxRows <= 0 {
		e.maxRows = DefaultMaxRows
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	for _, c := range cfg.BlockedColumns {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			e.blocked[c] = true
		}
	}
	return e
}

func normalizeDialect(d string) string {
	switch strings.ToLower(d) {
	case "pgx", "postgresql", "postgres":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite3"
	default:
		return strings.ToLower(d)
	}
}

// MaxRows returns the configured row cap.
func (e *Executor) MaxRows() int { return e.maxRows }

// Execute runs query and materializes at most MaxRows rows. Failures are
// reported in the result with a sanitized message; the raw driver error is
// only logged.
func (e *Executor) Execute(ctx context.Context, query string) domain.ExecutionResult {
	start := time.Now()
	res := domain.ExecutionResult{Columns: []string{}, Data: []domain.Row{}}

	capped, err := sqlrewrite.CapLimit(query, e.maxRows, e.lexOpts)
	if err != nil {
		return e.fail(ctx, res, start, err, query)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout+clientGrace)
	defer cancel()

	cols, data, err := e.run(ctx, capped)
	if err != nil {
		return e.fail(ctx, res, start, err, capped)
	}

	res.Success = true
	res.Columns = cols
	res.Data = data
	res.RowCount = len(data)
	res.Truncated = res.RowCount == e.maxRows
	res.ExecutionTimeMs = time.Since(start).Milliseconds()
	e.logger.Debug("query executed", "rows", res.RowCount, "truncated", res.Truncated, "duration_ms", res.ExecutionTimeMs)
	return res
}

func (e *Executor) fail(ctx context.Context, res domain.ExecutionResult, start time.Time, err error, query string) domain.ExecutionResult {
	msg := e.classify(ctx, err, query)
	e.logger.Warn("query execution failed", "error", err, "reported", msg)
	res.Success = false
	res.Error = &msg
	res.ExecutionTimeMs = time.Since(start).Milliseconds()
	return res
}

// run executes on a dedicated connection so session settings stay scoped to
// this statement.
func (e *Executor) run(ctx context.Context, query string) ([]string, []domain.Row, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close() //nolint:errcheck

	switch e.dialect {
	case "mysql", "postgres":
		tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if err != nil {
			return nil, nil, fmt.Errorf("begin read-only transaction: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		if _, err := tx.ExecContext(ctx, timeoutStatement(e.dialect, e.timeout)); err != nil {
			return nil, nil, fmt.Errorf("set statement timeout: %w", err)
		}
		rows, err := tx.QueryContext(ctx, query)
		if err != nil {
			return nil, nil, err
		}
		defer rows.Close() //nolint:errcheck
		return e.scanRows(rows)

	case "sqlite3":
		if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
			return nil, nil, fmt.Errorf("enable query_only: %w", err)
		}
		defer func() {
			_, _ = conn.ExecContext(context.Background(), "PRAGMA query_only = OFF")
		}()
		// A prepared statement compiles only the first statement; Query
		// would run any that follow.
		stmt, err := conn.PrepareContext(ctx, query)
		if err != nil {
			return nil, nil, err
		}
		defer stmt.Close() //nolint:errcheck
		rows, err := stmt.QueryContext(ctx)
		if err != nil {
			return nil, nil, err
		}
		defer rows.Close() //nolint:errcheck
		return e.scanRows(rows)

	case "duckdb":
		if err := checkDuckDBSelect(conn, query); err != nil {
			return nil, nil, err
		}
		fallthrough

	default:
		// No server-side statement timeout; the context deadline applies.
		rows, err := conn.QueryContext(ctx, query)
		if err != nil {
			return nil, nil, err
		}
		defer rows.Close() //nolint:errcheck
		return e.scanRows(rows)
	}
}

var errNotSingleSelect = errors.New("only a single SELECT statement can be executed")

// checkDuckDBSelect has DuckDB parse query and refuses anything other than
// one SELECT. The driver-level Prepare extracts statements without running
// them; database/sql's PrepareContext would run all but the last.
func checkDuckDBSelect(conn *sql.Conn, query string) error {
	return conn.Raw(func(driverConn any) error {
		dc, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("unexpected duckdb connection %T", driverConn)
		}
		st, err := dc.Prepare(query)
		if err != nil {
			return fmt.Errorf("%w: %v", errNotSingleSelect, err)
		}
		defer st.Close() //nolint:errcheck

		ds, ok := st.(*duckdb.Stmt)
		if !ok {
			return fmt.Errorf("unexpected duckdb statement %T", st)
		}
		typ, err := ds.StatementType()
		if err != nil {
			return err
		}
		if typ != duckdb.STATEMENT_TYPE_SELECT {
			return errNotSingleSelect
		}
		return nil
	})
}

// timeoutStatement returns the session statement that bounds execution time
// for dialects that support one.
func timeoutStatement(dialect string, d time.Duration) string {
	switch dialect {
	case "mysql":
		return fmt.Sprintf("SET SESSION MAX_EXECUTION_TIME = %d", d.Milliseconds())
	case "postgres":
		return fmt.Sprintf("SET LOCAL statement_timeout = %d", d.Milliseconds())
	default:
		return ""
	}
}

// scanRows materializes up to maxRows rows, dropping blocked columns.
func (e *Executor) scanRows(rows *sql.Rows) ([]string, []domain.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	keep := make([]int, 0, len(cols))
	names := make([]string, 0, len(cols))
	for i, c := range cols {
		if e.blocked[strings.ToLower(c)] {
			continue
		}
		keep = append(keep, i)
		names = append(names, c)
	}

	data := []domain.Row{}
	for len(data) < e.maxRows && rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make(domain.Row, len(keep))
		for j, i := range keep {
			row[j] = domain.Field{Name: cols[i], Value: normalizeValue(vals[i])}
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return names, data, nil
}

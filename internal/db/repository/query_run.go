package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"dynaquery/internal/domain"
)

// Compile-time check.
var _ domain.QueryRunRepository = (*QueryRunRepo)(nil)

// QueryRunRepo implements domain.QueryRunRepository using SQLite.
type QueryRunRepo struct {
	db *sql.DB
}

// NewQueryRunRepo creates a new QueryRunRepo.
func NewQueryRunRepo(db *sql.DB) *QueryRunRepo {
	return &QueryRunRepo{db: db}
}

// Insert records a completed run.
func (r *QueryRunRepo) Insert(ctx context.Context, run *domain.QueryRun) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO query_runs (
			id, tenant_id, request, generated_sql, executed_sql, status, failed_stage,
			error_message, row_count, truncated, duration_ms, delivery_status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, int64(run.Tenant), run.Request,
		nullString(run.GeneratedSQL), nullString(run.ExecutedSQL),
		run.Status, nullString(run.FailedStage), nullString(run.ErrorMessage),
		nullInt64(run.RowCount), boolToInt(run.Truncated), nullInt64(run.DurationMs),
		nullString(run.DeliveryStatus), run.CreatedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("insert query run: %w", mapDBError(err))
	}
	return nil
}

// List returns one page of the tenant's runs, newest first, with the total
// number of matching runs.
func (r *QueryRunRepo) List(ctx context.Context, filter domain.QueryRunFilter) ([]domain.QueryRun, int64, error) {
	where := []string{"tenant_id = ?"}
	args := []interface{}{int64(filter.Tenant)}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, filter.From.UTC().Format(timestampLayout))
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM query_runs WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count query runs: %w", err)
	}

	pageArgs := append(append([]interface{}{}, args...), filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, request, generated_sql, executed_sql, status, failed_stage,
			error_message, row_count, truncated, duration_ms, delivery_status, created_at
		FROM query_runs
		WHERE `+cond+`
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list query runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	runs := []domain.QueryRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list query runs: %w", err)
	}
	return runs, total, nil
}

func scanRun(rows *sql.Rows) (domain.QueryRun, error) {
	var (
		run                            domain.QueryRun
		tenant, truncated              int64
		genSQL, execSQL, stage, errMsg sql.NullString
		delivery                       sql.NullString
		rowCount, duration             sql.NullInt64
		created                        string
	)
	if err := rows.Scan(&run.ID, &tenant, &run.Request, &genSQL, &execSQL, &run.Status, &stage,
		&errMsg, &rowCount, &truncated, &duration, &delivery, &created); err != nil {
		return run, fmt.Errorf("scan query run: %w", err)
	}
	run.Tenant = domain.TenantID(tenant)
	run.GeneratedSQL = stringPtr(genSQL)
	run.ExecutedSQL = stringPtr(execSQL)
	run.FailedStage = stringPtr(stage)
	run.ErrorMessage = stringPtr(errMsg)
	run.RowCount = int64Ptr(rowCount)
	run.Truncated = truncated != 0
	run.DurationMs = int64Ptr(duration)
	run.DeliveryStatus = stringPtr(delivery)
	if t, err := time.Parse(timestampLayout, created); err == nil {
		run.CreatedAt = t.UTC()
	}
	return run, nil
}

package domain

import "time"

// Query run statuses.
const (
	RunStatusSucceeded = "SUCCEEDED"
	RunStatusFailed    = "FAILED"
)

// QueryRun represents a single pipeline execution record.
type QueryRun struct {
	ID             string
	Tenant         TenantID
	Request        string
	GeneratedSQL   *string
	ExecutedSQL    *string
	Status         string
	FailedStage    *string
	ErrorMessage   *string
	RowCount       *int64
	Truncated      bool
	DurationMs     *int64
	DeliveryStatus *string
	CreatedAt      time.Time
}

// QueryRunFilter holds filter parameters for listing query runs.
type QueryRunFilter struct {
	Tenant TenantID
	Status *string
	From   *time.Time
	Page   PageRequest
}

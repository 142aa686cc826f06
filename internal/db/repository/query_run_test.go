package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "dynaquery/internal/db"
	"dynaquery/internal/domain"
)

func setupQueryRunRepo(t *testing.T) *QueryRunRepo {
	t.Helper()
	return NewQueryRunRepo(internaldb.OpenTestAuditStore(t))
}

func ptrStr(s string) *string { return &s }
func ptrInt64(i int64) *int64 { return &i }

func TestQueryRunRepo_InsertAndList(t *testing.T) {
	repo := setupQueryRunRepo(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run := &domain.QueryRun{
		ID:             uuid.NewString(),
		Tenant:         42,
		Request:        "top customers",
		GeneratedSQL:   ptrStr("SELECT name FROM customers"),
		ExecutedSQL:    ptrStr("SELECT name FROM customers WHERE customers.store_id = 42 LIMIT 1000"),
		Status:         domain.RunStatusSucceeded,
		RowCount:       ptrInt64(1000),
		Truncated:      true,
		DurationMs:     ptrInt64(87),
		DeliveryStatus: ptrStr("DELIVERED"),
		CreatedAt:      created,
	}
	require.NoError(t, repo.Insert(ctx, run))

	runs, total, err := repo.List(ctx, domain.QueryRunFilter{Tenant: 42})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, runs, 1)

	got := runs[0]
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, domain.TenantID(42), got.Tenant)
	assert.Equal(t, "top customers", got.Request)
	assert.Equal(t, *run.ExecutedSQL, *got.ExecutedSQL)
	assert.Nil(t, got.FailedStage)
	assert.Nil(t, got.ErrorMessage)
	assert.Equal(t, int64(1000), *got.RowCount)
	assert.True(t, got.Truncated)
	assert.Equal(t, "DELIVERED", *got.DeliveryStatus)
	assert.Equal(t, created, got.CreatedAt)
}

func TestQueryRunRepo_TenantIsolation(t *testing.T) {
	repo := setupQueryRunRepo(t)
	ctx := context.Background()

	for _, tenant := range []domain.TenantID{1, 1, 2} {
		require.NoError(t, repo.Insert(ctx, &domain.QueryRun{
			ID: uuid.NewString(), Tenant: tenant, Request: "q", Status: domain.RunStatusSucceeded,
		}))
	}

	runs, total, err := repo.List(ctx, domain.QueryRunFilter{Tenant: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.TenantID(2), runs[0].Tenant)
}

func TestQueryRunRepo_Filters(t *testing.T) {
	repo := setupQueryRunRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		status := domain.RunStatusSucceeded
		var stage *string
		if i%3 == 0 {
			status = domain.RunStatusFailed
			stage = ptrStr("validate")
		}
		require.NoError(t, repo.Insert(ctx, &domain.QueryRun{
			ID:          uuid.NewString(),
			Tenant:      5,
			Request:     "q",
			Status:      status,
			FailedStage: stage,
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		}))
	}

	failed := domain.RunStatusFailed
	runs, total, err := repo.List(ctx, domain.QueryRunFilter{Tenant: 5, Status: &failed})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, r := range runs {
		assert.Equal(t, domain.RunStatusFailed, r.Status)
		assert.Equal(t, "validate", *r.FailedStage)
	}

	from := base.Add(3 * time.Hour)
	runs, total, err = repo.List(ctx, domain.QueryRunFilter{Tenant: 5, From: &from})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, runs, 3)
	assert.Equal(t, base.Add(5*time.Hour), runs[0].CreatedAt, "newest first")
}

func TestQueryRunRepo_Pagination(t *testing.T) {
	repo := setupQueryRunRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Insert(ctx, &domain.QueryRun{
			ID: uuid.NewString(), Tenant: 3, Request: "q", Status: domain.RunStatusSucceeded,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	page1, total, err := repo.List(ctx, domain.QueryRunFilter{Tenant: 3, Page: domain.PageRequest{MaxResults: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page1, 2)

	token := domain.NextPageToken(0, 2, total)
	require.NotEmpty(t, token)
	page2, _, err := repo.List(ctx, domain.QueryRunFilter{Tenant: 3, Page: domain.PageRequest{MaxResults: 2, PageToken: token}})
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.True(t, page1[1].CreatedAt.After(page2[0].CreatedAt))
}

func TestQueryRunRepo_DuplicateID(t *testing.T) {
	repo := setupQueryRunRepo(t)
	ctx := context.Background()

	run := &domain.QueryRun{ID: "dup", Tenant: 1, Request: "q", Status: domain.RunStatusSucceeded}
	require.NoError(t, repo.Insert(ctx, run))
	err := repo.Insert(ctx, run)
	require.Error(t, err)
	var ve *domain.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestQueryRunRepo_InsertDuplicateID(t *testing.T) {
	repo := setupQueryRunRepo(t)
	ctx := context.Background()

	run := &domain.QueryRun{
		ID:      domain.NewID(),
		Tenant:  7,
		Request: "refunds this week",
		Status:  domain.RunStatusFailed,
	}
	require.NoError(t, repo.Insert(ctx, run))

	err := repo.Insert(ctx, run)
	require.Error(t, err)
	var verr *domain.ValidationError
	assert.True(t, errors.As(err, &verr))
}

package schema

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynaquery/internal/domain"
	"dynaquery/internal/testutil"
)

func storeIntrospector() *testutil.MockIntrospector {
	return &testutil.MockIntrospector{
		TableExistsFn: func(_ context.Context, table string) (bool, error) {
			return table != "missing", nil
		},
		ColumnsFn: func(_ context.Context, table string) ([]domain.Column, error) {
			switch table {
			case "orders":
				return []domain.Column{
					{Name: "id", Type: "integer"},
					{Name: "store_id", Type: "integer"},
					{Name: "customer_id", Type: "integer", Nullable: true},
					{Name: "total", Type: "decimal(10,2)"},
				}, nil
			case "customers":
				return []domain.Column{
					{Name: "id", Type: "integer"},
					{Name: "email", Type: "varchar"},
					{Name: "password", Type: "varchar"},
				}, nil
			case "broken":
				return nil, errors.New("permission denied")
			}
			return nil, nil
		},
		IndexesFn: func(_ context.Context, table string) ([]domain.Index, error) {
			if table == "customers" {
				return []domain.Index{
					{Name: "customers_email", Columns: []string{"email"}, Unique: true},
					{Name: "customers_password", Columns: []string{"password"}},
				}, nil
			}
			return nil, ErrUnsupported
		},
		ForeignKeysFn: func(_ context.Context, table string) ([]domain.ForeignKey, error) {
			if table == "orders" {
				return []domain.ForeignKey{{Columns: []string{"customer_id"}, ForeignTable: "customers", ForeignColumns: []string{"id"}}}, nil
			}
			return nil, nil
		},
	}
}

func newTestProvider(in domain.SchemaIntrospector, tables ...string) *Provider {
	return NewProvider(in, Config{
		AllowedTables:  tables,
		BlockedColumns: []string{"password"},
		TTL:            time.Minute,
	}, testutil.DiscardLogger())
}

func TestGetSchema_BuildsFilteredSnapshot(t *testing.T) {
	t.Parallel()
	p := newTestProvider(storeIntrospector(), "orders", "customers", "missing", "broken")

	snap, err := p.GetSchema(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, domain.TenantID(42), snap.Tenant)
	assert.Equal(t, []string{"customers", "orders"}, snap.TableNames(), "missing and failing tables are skipped")

	customers := snap.Tables["customers"]
	for _, c := range customers.Columns {
		assert.NotEqual(t, "password", c.Name)
	}
	require.Len(t, customers.Indexes, 1, "indexes over blocked columns are hidden")
	assert.Equal(t, "customers_email", customers.Indexes[0].Name)

	orders := snap.Tables["orders"]
	assert.Empty(t, orders.Indexes, "unsupported index introspection is treated as empty")
	require.Len(t, orders.ForeignKeys, 1)
	assert.Equal(t, "customers", orders.ForeignKeys[0].ForeignTable)
}

func TestGetSchema_EmptyAllowlistMakesNoDatabaseCalls(t *testing.T) {
	t.Parallel()
	in := &testutil.MockIntrospector{}
	p := newTestProvider(in)

	snap, err := p.GetSchema(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, snap.Tables)
	assert.Equal(t, int64(0), in.Calls.Load())
}

func TestGetSchema_CachesUntilTTL(t *testing.T) {
	t.Parallel()
	in := storeIntrospector()
	p := newTestProvider(in, "orders")
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	first, err := p.GetSchema(context.Background(), 1)
	require.NoError(t, err)
	calls := in.Calls.Load()

	second, err := p.GetSchema(context.Background(), 1)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, calls, in.Calls.Load())

	// Different tenants are cached independently.
	_, err = p.GetSchema(context.Background(), 2)
	require.NoError(t, err)
	assert.Greater(t, in.Calls.Load(), calls)

	now = now.Add(2 * time.Minute)
	third, err := p.GetSchema(context.Background(), 1)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestClearCache(t *testing.T) {
	t.Parallel()
	p := newTestProvider(storeIntrospector(), "orders")
	ctx := context.Background()

	a1, err := p.GetSchema(ctx, 1)
	require.NoError(t, err)
	b1, err := p.GetSchema(ctx, 2)
	require.NoError(t, err)

	p.ClearCache(1)
	a2, err := p.GetSchema(ctx, 1)
	require.NoError(t, err)
	b2, err := p.GetSchema(ctx, 2)
	require.NoError(t, err)
	assert.NotSame(t, a1, a2)
	assert.Same(t, b1, b2)

	p.ClearAll()
	b3, err := p.GetSchema(ctx, 2)
	require.NoError(t, err)
	assert.NotSame(t, b2, b3)
}

func TestGetSchema_ConcurrentMissesShareOneBuild(t *testing.T) {
	t.Parallel()
	var (
		mu     sync.Mutex
		builds int
	)
	release := make(chan struct{})
	in := storeIntrospector()
	in.TableExistsFn = func(_ context.Context, _ string) (bool, error) {
		mu.Lock()
		builds++
		mu.Unlock()
		<-release
		return true, nil
	}
	p := newTestProvider(in, "orders")

	var wg sync.WaitGroup
	snaps := make([]*domain.SchemaSnapshot, 8)
	for i := range snaps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := p.GetSchema(context.Background(), 5)
			assert.NoError(t, err)
			snaps[i] = snap
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, builds)
	for _, s := range snaps {
		assert.Same(t, snaps[0], s)
	}
}

func TestGetSchema_InvalidationSkipsInFlightBuild(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		clear func(*Provider)
	}{
		{"one tenant", func(p *Provider) { p.ClearCache(5) }},
		{"all tenants", func(p *Provider) { p.ClearAll() }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var calls atomic.Int32
			started := make(chan struct{})
			release := make(chan struct{})
			in := storeIntrospector()
			in.TableExistsFn = func(_ context.Context, _ string) (bool, error) {
				if calls.Add(1) == 1 {
					close(started)
					<-release
				}
				return true, nil
			}
			p := newTestProvider(in, "orders")
			ctx := context.Background()

			staleCh := make(chan *domain.SchemaSnapshot, 1)
			go func() {
				snap, err := p.GetSchema(ctx, 5)
				assert.NoError(t, err)
				staleCh <- snap
			}()
			<-started
			tc.clear(p)

			freshCh := make(chan *domain.SchemaSnapshot, 1)
			go func() {
				snap, err := p.GetSchema(ctx, 5)
				assert.NoError(t, err)
				freshCh <- snap
			}()
			var fresh *domain.SchemaSnapshot
			select {
			case fresh = <-freshCh:
			case <-time.After(2 * time.Second):
				close(release)
				t.Fatal("GetSchema after invalidation waited on the earlier build")
			}
			close(release)
			stale := <-staleCh

			assert.NotSame(t, stale, fresh)
			assert.Equal(t, int32(2), calls.Load())

			cached, err := p.GetSchema(ctx, 5)
			require.NoError(t, err)
			assert.Same(t, fresh, cached)
		})
	}
}

func TestGetSchema_CanceledContext(t *testing.T) {
	t.Parallel()
	p := newTestProvider(storeIntrospector(), "orders")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.GetSchema(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWatch_InvalidatesOnSchemaChange(t *testing.T) {
	t.Parallel()
	p := newTestProvider(storeIntrospector(), "orders")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a1, err := p.GetSchema(ctx, 1)
	require.NoError(t, err)
	b1, err := p.GetSchema(ctx, 2)
	require.NoError(t, err)

	changes := make(chan domain.SchemaChange)
	done := make(chan struct{})
	go func() {
		p.Watch(ctx, changes)
		close(done)
	}()

	tenant := domain.TenantID(1)
	changes <- domain.SchemaChange{Tenant: &tenant, Reason: "migration 42"}
	changes <- domain.SchemaChange{} // synchronizes with the first event
	close(changes)
	<-done

	a2, err := p.GetSchema(ctx, 1)
	require.NoError(t, err)
	b2, err := p.GetSchema(ctx, 2)
	require.NoError(t, err)
	assert.NotSame(t, a1, a2)
	assert.NotSame(t, b1, b2, "a change without tenant clears everything")
}

func TestRenderPrompt(t *testing.T) {
	t.Parallel()
	p := newTestProvider(storeIntrospector(), "orders", "customers")

	got, err := p.GetSchemaForPrompt(context.Background(), 9)
	require.NoError(t, err)
	want := "Table: customers\n" +
		"Columns:\n" +
		"  - id INTEGER NOT NULL\n" +
		"  - email VARCHAR NOT NULL\n" +
		"\n" +
		"Table: orders\n" +
		"Columns:\n" +
		"  - id INTEGER NOT NULL\n" +
		"  - store_id INTEGER NOT NULL\n" +
		"  - customer_id INTEGER NULL\n" +
		"  - total DECIMAL(10,2) NOT NULL\n" +
		"Foreign keys:\n" +
		"  - customer_id -> customers.id\n"
	assert.Equal(t, want, got)

	again, err := p.GetSchemaForPrompt(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	assert.Equal(t, "No tables are available.\n", RenderPrompt(&domain.SchemaSnapshot{}))
}

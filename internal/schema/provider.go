// Package schema introspects the allowlisted tables of the target database
// and serves cached snapshots of them to the query generator.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/singleflight"

	"dynaquery/internal/domain"
)

// DefaultTTL is the snapshot lifetime when Config.TTL is zero.
const DefaultTTL = time.Hour

// Config configures a Provider.
type Config struct {
	AllowedTables  []string
	BlockedColumns []string
	TTL            time.Duration
}

// Provider builds and caches per-tenant schema snapshots. Snapshots are
// immutable once stored; concurrent misses for one tenant share one build.
type Provider struct {
	introspector domain.SchemaIntrospector
	tables       []string
	blocked      map[string]bool
	ttl          time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu      sync.RWMutex
	entries map[domain.TenantID]*domain.SchemaSnapshot
	gen     map[domain.TenantID]uint64 // bumped on invalidation
	epoch   uint64                     // bumped by ClearAll
	group   singleflight.Group
}

// NewProvider creates a Provider over the given introspector.
func NewProvider(introspector domain.SchemaIntrospector, cfg Config, logger *slog.Logger) *Provider {
	p := &Provider{
		introspector: introspector,
		blocked:      make(map[string]bool, len(cfg.BlockedColumns)),
		ttl:          cfg.TTL,
		logger:       logger.With("component", "schema"),
		now:          time.Now,
		entries:      make(map[domain.TenantID]*domain.SchemaSnapshot),
		gen:          make(map[domain.TenantID]uint64),
	}
	if p.ttl <= 0 {
		p.ttl = DefaultTTL
	}
	seen := make(map[string]bool)
	for _, t := range cfg.AllowedTables {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !seen[t] {
			seen[t] = true
			p.tables = append(p.tables, t)
		}
	}
	sort.Strings(p.tables)
	for _, c := range cfg.BlockedColumns {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			p.blocked[c] = true
		}
	}
	return p
}

// GetSchema returns the tenant's snapshot, building it on a miss or after
// the TTL has expired.
func (p *Provider) GetSchema(ctx context.Context, tenant domain.TenantID) (*domain.SchemaSnapshot, error) {
	if snap := p.cached(tenant); snap != nil {
		return snap, nil
	}

	// Keying flights by generation keeps callers that arrive after an
	// invalidation from joining a build that started before it.
	p.mu.RLock()
	gen, epoch := p.gen[tenant], p.epoch
	p.mu.RUnlock()
	key := fmt.Sprintf("%d:%d:%d", tenant, gen, epoch)

	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		// Another caller may have filled the cache while we waited.
		if snap := p.cached(tenant); snap != nil {
			return snap, nil
		}

		snap, err := p.build(ctx, tenant)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		if p.gen[tenant] == gen && p.epoch == epoch {
			p.entries[tenant] = snap
		}
		p.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.SchemaSnapshot), nil
}

func (p *Provider) cached(tenant domain.TenantID) *domain.SchemaSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap, ok := p.entries[tenant]
	if !ok || p.now().Sub(snap.BuiltAt) >= p.ttl {
		return nil
	}
	return snap
}

// ClearCache drops the tenant's snapshot so the next call rebuilds it.
func (p *Provider) ClearCache(tenant domain.TenantID) {
	p.mu.Lock()
	delete(p.entries, tenant)
	p.gen[tenant]++
	p.mu.Unlock()
	p.logger.Info("schema cache cleared", "tenant", int64(tenant))
}

// ClearAll drops every cached snapshot.
func (p *Provider) ClearAll() {
	p.mu.Lock()
	p.entries = make(map[domain.TenantID]*domain.SchemaSnapshot)
	p.epoch++
	p.mu.Unlock()
	p.logger.Info("schema cache cleared for all tenants")
}

// build introspects every allowlisted table. Missing tables are skipped and
// a failure on one table never drops the others.
func (p *Provider) build(ctx context.Context, tenant domain.TenantID) (*domain.SchemaSnapshot, error) {
	snap := &domain.SchemaSnapshot{
		Tenant: tenant,
		Tables: make(map[string]domain.TableSchema, len(p.tables)),
	}

	var merr *multierror.Error
	for _, name := range p.tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		exists, err := p.introspector.TableExists(ctx, name)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("table %s: %w", name, err))
			continue
		}
		if !exists {
			p.logger.Debug("allowlisted table not found", "table", name)
			continue
		}
		table, err := p.describe(ctx, name)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("table %s: %w", name, err))
			continue
		}
		snap.Tables[name] = table
	}
	if err := merr.ErrorOrNil(); err != nil {
		p.logger.Warn("schema introspection incomplete", "tenant", int64(tenant), "error", err)
	}

	snap.BuiltAt = p.now()
	p.logger.Debug("schema snapshot built", "tenant", int64(tenant), "tables", len(snap.Tables))
	return snap, nil
}

func (p *Provider) describe(ctx context.Context, name string) (domain.TableSchema, error) {
	table := domain.TableSchema{Name: name}

	cols, err := p.introspector.Columns(ctx, name)
	if err != nil {
		return table, fmt.Errorf("columns: %w", err)
	}
	for _, c := range cols {
		if !p.blocked[strings.ToLower(c.Name)] {
			table.Columns = append(table.Columns, c)
		}
	}

	indexes, err := p.introspector.Indexes(ctx, name)
	if err != nil {
		p.logger.Debug("index introspection unavailable", "table", name, "error", err)
		indexes = nil
	}
	for _, idx := range indexes {
		if !p.touchesBlocked(idx.Columns) {
			table.Indexes = append(table.Indexes, idx)
		}
	}

	fks, err := p.introspector.ForeignKeys(ctx, name)
	if err != nil {
		p.logger.Debug("foreign key introspection unavailable", "table", name, "error", err)
		fks = nil
	}
	for _, fk := range fks {
		if !p.touchesBlocked(fk.Columns) && !p.touchesBlocked(fk.ForeignColumns) {
			table.ForeignKeys = append(table.ForeignKeys, fk)
		}
	}
	return table, nil
}

func (p *Provider) touchesBlocked(cols []string) bool {
	for _, c := range cols {
		if p.blocked[strings.ToLower(c)] {
			return true
		}
	}
	return false
}

// Watch invalidates cached snapshots on schema-change events until ctx is
// done or changes is closed. A change without a tenant clears every tenant.
func (p *Provider) Watch(ctx context.Context, changes <-chan domain.SchemaChange) {
	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-changes:
			if !ok {
				return
			}
			if ch.Tenant == nil {
				p.ClearAll()
			} else {
				p.ClearCache(*ch.Tenant)
			}
			if ch.Reason != "" {
				p.logger.Info("schema change received", "reason", ch.Reason)
			}
		}
	}
}

package domain

import (
	"context"
	"fmt"
	"strconv"
)

// TenantID identifies a store. Every generated statement and every result
// row belongs to exactly one TenantID.
type TenantID int64

// String renders the tenant as the decimal literal used in SQL.
func (t TenantID) String() string {
	return strconv.FormatInt(int64(t), 10)
}

// Valid reports whether t is a usable tenant identifier.
func (t TenantID) Valid() bool { return t > 0 }

// ParseTenantID parses a decimal tenant identifier. Zero and negative values
// are rejected.
func ParseTenantID(s string) (TenantID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid tenant id %q", s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid tenant id %q: must be positive", s)
	}
	return TenantID(n), nil
}

type tenantKey struct{}

// WithTenant stores the authenticated tenant in the context.
func WithTenant(ctx context.Context, t TenantID) context.Context {
	return context.WithValue(ctx, tenantKey{}, t)
}

// TenantFromContext extracts the authenticated tenant from the context.
func TenantFromContext(ctx context.Context) (TenantID, bool) {
	t, ok := ctx.Value(tenantKey{}).(TenantID)
	return t, ok
}

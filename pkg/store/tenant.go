package store

import (
	"context"

	"gorm.io/gorm"
)

type tenantKey struct{}

// WithTenant stamps the tenant identifier onto the context. Every
// request/worker boundary establishes this before touching the store.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// TenantID extracts the tenant from the context, empty when unset.
func TenantID(ctx context.Context) string {
	if v, ok := ctx.Value(tenantKey{}).(string); ok {
		return v
	}
	return ""
}

// Scoped returns a query filtered to the context tenant and excluding
// soft-deleted rows. All reads in the core go through this.
func Scoped(ctx context.Context, conn *gorm.DB) *gorm.DB {
	q := conn.WithContext(ctx).Where("is_deleted = ?", false)
	if tenant := TenantID(ctx); tenant != "" {
		q = q.Where("tenant_id = ?", tenant)
	}
	return q
}

package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/school-auth/internal/domain"
)

type TenantRepository interface {
	Create(ctx context.Context, t *domain.Tenant) (*domain.Tenant, error)
	FindByID(ctx context.Context, id string) (*domain.Tenant, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	// AdvanceStatus moves the tenant to status only from one of
	// status.Predecessors(). It reports false, without error, when the tenant
	// is already at or past status.
	AdvanceStatus(ctx context.Context, id string, status domain.TenantStatus) (bool, error)
	Delete(ctx context.Context, id string) error

	// DeleteStalePending removes tenants (and their accounts) that never left
	// the pending state and were created before cutoff.
	DeleteStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/school-auth/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const tenantColumns = `id, name, type, curricula, admin_email, ges_code, digital_address,
	region, city, status, created_at, updated_at`

type TenantRepository struct {
	pool *pgxpool.Pool
}

func NewTenantRepository(pool *pgxpool.Pool) *TenantRepository {
	return &TenantRepository{pool: pool}
}

func (r *TenantRepository) Create(ctx context.Context, t *domain.Tenant) (*domain.Tenant, error) {
	curricula := make([]string, len(t.Curricula))
	for i, c := range t.Curricula {
		curricula[i] = string(c)
	}

	query := `
		INSERT INTO tenants (name, type, curricula, admin_email, ges_code,
		                     digital_address, region, city, status)
		VALUES ($1, $2, $3, LOWER($4), $5, $6, $7, $8, $9)
		RETURNING ` + tenantColumns

	row := r.pool.QueryRow(ctx, query,
		t.Name,
		t.Type,
		curricula,
		t.AdminEmail,
		t.GESCode,
		t.DigitalAddress,
		t.Region,
		t.City,
		t.Status,
	)

	created, err := scanTenant(row)
	if err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return nil, domain.ErrTenantNameTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *TenantRepository) FindByID(ctx context.Context, id string) (*domain.Tenant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	return scanTenant(row)
}

func (r *TenantRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM tenants WHERE name = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("tenant exists: %w", err)
	}
	return exists, nil
}

func (r *TenantRepository) AdvanceStatus(ctx context.Context, id string, status domain.TenantStatus) (bool, error) {
	from := make([]string, 0, 2)
	for _, s := range status.Predecessors() {
		from = append(from, string(s))
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE tenants SET status = $2, updated_at = NOW() WHERE id = $1 AND status = ANY($3)`,
		id, status, from,
	)
	if err != nil {
		if malformedID(err) {
			return false, domain.ErrTenantAbsent
		}
		return false, fmt.Errorf("advance tenant status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM tenants WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("tenant exists: %w", err)
	}
	if !exists {
		return false, domain.ErrTenantAbsent
	}
	return false, nil
}

func (r *TenantRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	return nil
}

func (r *TenantRepository) DeleteStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	// SKIP LOCKED lets several reapers run without blocking on each other.
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM tenants
		WHERE id IN (
			SELECT id FROM tenants
			WHERE  status     = 'pending'
			  AND  created_at < $1
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("delete stale pending tenants: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanTenant(row pgx.Row) (*domain.Tenant, error) {
	var (
		t         domain.Tenant
		curricula []string
	)
	err := row.Scan(
		&t.ID, &t.Name, &t.Type, &curricula, &t.AdminEmail, &t.GESCode,
		&t.DigitalAddress, &t.Region, &t.City, &t.Status, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || malformedID(err) {
			return nil, domain.ErrTenantAbsent
		}
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	for _, c := range curricula {
		t.Curricula = append(t.Curricula, domain.Curriculum(c))
	}
	return &t, nil
}

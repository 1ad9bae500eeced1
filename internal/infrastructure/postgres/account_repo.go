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

const accountColumns = `id, COALESCE(tenant_id::text, ''), first_name, last_name, email, phone,
	password_hash, role, active, token_version, password_changed_at, created_at, updated_at`

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) (*domain.Account, error) {
	query := `
		INSERT INTO accounts (tenant_id, first_name, last_name, email, phone,
		                      password_hash, role, active, token_version)
		VALUES (NULLIF($1, '')::uuid, $2, $3, LOWER($4), $5, $6, $7, $8, $9)
		RETURNING ` + accountColumns

	row := r.pool.QueryRow(ctx, query,
		a.TenantID,
		a.FirstName,
		a.LastName,
		a.Email,
		a.Phone,
		a.PasswordHash,
		a.Role,
		a.Active,
		a.TokenVersion,
	)

	created, err := scanAccount(row)
	if err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return nil, domain.ErrEmailTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = LOWER($1)`, email)
	return scanAccount(row)
}

func (r *AccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE LOWER(email) = LOWER($1))`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("account exists: %w", err)
	}
	return exists, nil
}

func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// UpdatePassword is a compare-and-swap on token_version: of two callers that
// read the same version, only the first UPDATE matches a row.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time, expectedVersion int64) (int64, error) {
	var version int64
	err := r.pool.QueryRow(ctx, `
		UPDATE accounts
		SET    password_hash       = $2,
		       password_changed_at = $3,
		       token_version       = token_version + 1,
		       updated_at          = NOW()
		WHERE  id = $1 AND token_version = $4
		RETURNING token_version`,
		id, passwordHash, changedAt, expectedVersion,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || malformedID(err) {
			return 0, domain.ErrVersionChanged
		}
		return 0, fmt.Errorf("update password: %w", err)
	}
	return version, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID, &a.TenantID, &a.FirstName, &a.LastName, &a.Email, &a.Phone,
		&a.PasswordHash, &a.Role, &a.Active, &a.TokenVersion, &a.PasswordChangedAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || malformedID(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

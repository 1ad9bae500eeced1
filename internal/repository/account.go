package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/school-auth/internal/domain"
)

type AccountRepository interface {
	Create(ctx context.Context, a *domain.Account) (*domain.Account, error)
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Delete(ctx context.Context, id string) error

	// UpdatePassword stores the new hash and bumps the token version in one
	// statement, returning the new version. It only applies while the stored
	// version still equals expectedVersion; otherwise it returns
	// domain.ErrVersionChanged.
	UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time, expectedVersion int64) (int64, error)
}

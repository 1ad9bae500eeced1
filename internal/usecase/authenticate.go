package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/ErlanBelekov/school-auth/internal/domain"
	"github.com/ErlanBelekov/school-auth/internal/metrics"
	"github.com/ErlanBelekov/school-auth/internal/repository"
	"github.com/ErlanBelekov/school-auth/internal/token"
)

// Authenticator is the request-time gate. Every call re-reads the account
// and tenant; nothing is cached between requests.
type Authenticator struct {
	accounts repository.AccountRepository
	tenants  repository.TenantRepository
	tokens   *token.Issuer
}

func NewAuthenticator(accounts repository.AccountRepository, tenants repository.TenantRepository, tokens *token.Issuer) *Authenticator {
	return &Authenticator{accounts: accounts, tenants: tenants, tokens: tokens}
}

// Authenticate resolves a bearer token to the caller's identity. Rejections
// are domain errors of class ErrUnauthorized or ErrForbidden.
func (a *Authenticator) Authenticate(ctx context.Context, rawToken string) (*domain.Identity, error) {
	if rawToken == "" {
		return nil, reject("missing", domain.ErrMissingToken)
	}

	claims, err := a.tokens.VerifySession(rawToken)
	if err != nil {
		return nil, reject("invalid_token", domain.ErrTokenInvalid)
	}

	account, err := a.accounts.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, reject("unknown_account", domain.ErrAccountInactive)
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	if !account.Active {
		return nil, reject("inactive_account", domain.ErrAccountInactive)
	}

	if epoch, ok := claims.Epoch(); ok && epoch != account.TokenVersion {
		return nil, reject("stale_token", domain.ErrStaleToken)
	}

	if account.TenantID != "" {
		tenant, err := a.tenants.FindByID(ctx, account.TenantID)
		if err != nil {
			if errors.Is(err, domain.ErrTenantAbsent) {
				return nil, reject("tenant_missing", domain.ErrTenantMissing)
			}
			return nil, fmt.Errorf("find tenant: %w", err)
		}
		if !tenant.Verified() {
			return nil, reject("tenant_unverified", domain.ErrTenantUnverified)
		}
	}

	return &domain.Identity{
		ID:       account.ID,
		Email:    account.Email,
		Role:     account.Role,
		TenantID: account.TenantID,
		Epoch:    account.TokenVersion,
	}, nil
}

func reject(reason string, err error) error {
	metrics.GateRejectionsTotal.WithLabelValues(reason).Inc()
	return err
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ErlanBelekov/school-auth/internal/domain"
	"github.com/ErlanBelekov/school-auth/internal/otp"
	"github.com/ErlanBelekov/school-auth/internal/repository"
	"github.com/ErlanBelekov/school-auth/internal/token"
)

type SessionUsecase struct {
	accounts repository.AccountRepository
	tenants  repository.TenantRepository
	hasher   passwordHasher
	tokens   *token.Issuer
	logger   *slog.Logger
}

func NewSessionUsecase(
	accounts repository.AccountRepository,
	tenants repository.TenantRepository,
	hasher passwordHasher,
	tokens *token.Issuer,
	logger *slog.Logger,
) *SessionUsecase {
	return &SessionUsecase{
		accounts: accounts,
		tenants:  tenants,
		hasher:   hasher,
		tokens:   tokens,
		logger:   logger.With("component", "session"),
	}
}

type LoginResult struct {
	Token   string
	Account *domain.Account
}

// Login exchanges email and password for a session token at the account's
// current epoch. Only accounts of verified tenants may sign in.
func (u *SessionUsecase) Login(ctx context.Context, emailAddr, password string) (*LoginResult, error) {
	account, err := u.accounts.FindByEmail(ctx, otp.NormalizeEmail(emailAddr))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidLogin
		}
		return nil, fmt.Errorf("find account: %w", err)
	}

	tenant, err := u.tenants.FindByID(ctx, account.TenantID)
	if err != nil {
		if errors.Is(err, domain.ErrTenantAbsent) {
			return nil, domain.ErrLoginUnverified
		}
		return nil, fmt.Errorf("find tenant: %w", err)
	}
	if !tenant.Verified() {
		return nil, domain.ErrLoginUnverified
	}

	ok, err := u.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		u.logger.ErrorContext(ctx, "corrupt stored password hash", "account_id", account.ID, "error", err)
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok || !account.Active {
		return nil, domain.ErrInvalidLogin
	}

	signed, err := u.tokens.IssueSession(account)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	return &LoginResult{Token: signed, Account: account}, nil
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/ErlanBelekov/school-auth/internal/domain"
	"github.com/ErlanBelekov/school-auth/internal/email"
	"github.com/ErlanBelekov/school-auth/internal/metrics"
	"github.com/ErlanBelekov/school-auth/internal/otp"
	"github.com/ErlanBelekov/school-auth/internal/repository"
	"github.com/ErlanBelekov/school-auth/internal/token"
	"github.com/jonboulle/clockwork"
)

const (
	minPasswordLength = 8

	// ForgotPasswordMessage is returned for every forgot-password request.
	ForgotPasswordMessage = "If the email exists, a reset link has been sent."
)

type RecoveryUsecase struct {
	accounts repository.AccountRepository
	tenants  repository.TenantRepository
	hasher   passwordHasher
	mail     mailer
	tokens   *token.Issuer
	clock    clockwork.Clock
	settings Settings
	logger   *slog.Logger
}

func NewRecoveryUsecase(
	accounts repository.AccountRepository,
	tenants repository.TenantRepository,
	hasher passwordHasher,
	mail mailer,
	tokens *token.Issuer,
	clock clockwork.Clock,
	settings Settings,
	logger *slog.Logger,
) *RecoveryUsecase {
	return &RecoveryUsecase{
		accounts: accounts,
		tenants:  tenants,
		hasher:   hasher,
		mail:     mail,
		tokens:   tokens,
		clock:    clock,
		settings: settings,
		logger:   logger.With("component", "recovery"),
	}
}

// ForgotPassword mails a reset link when the account exists and its tenant is
// verified. It has no result: the caller answers ForgotPasswordMessage either way.
func (u *RecoveryUsecase) ForgotPassword(ctx context.Context, emailAddr string) {
	emailAddr = otp.NormalizeEmail(emailAddr)

	account, err := u.accounts.FindByEmail(ctx, emailAddr)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			u.logger.ErrorContext(ctx, "forgot password: find account", "error", err)
		}
		return
	}

	tenant, err := u.tenants.FindByID(ctx, account.TenantID)
	if err != nil || !tenant.Verified() {
		if err != nil && !errors.Is(err, domain.ErrTenantAbsent) {
			u.logger.ErrorContext(ctx, "forgot password: find tenant", "error", err)
		}
		return
	}

	resetToken, err := u.tokens.IssuePurpose(account.ID, token.PurposePasswordReset, account.TokenVersion, token.PasswordResetTTL)
	if err != nil {
		u.logger.ErrorContext(ctx, "forgot password: issue reset token", "error", err)
		return
	}

	resetURL := u.settings.ResetPasswordURL + "?token=" + url.QueryEscape(resetToken)
	sendBestEffort(ctx, u.mail, u.logger, u.settings.mailTimeout(), account.Email,
		"Password Reset Request", email.TemplatePasswordReset, map[string]any{
			"firstName":   account.FirstName,
			"resetUrl":    resetURL,
			"currentYear": u.clock.Now().Year(),
		})
}

// ResetPassword sets a new password using a reset token. The token is bound
// to the epoch it was issued at, so it stops working once any password change
// (including this one) bumps the epoch. The epoch read here is also the
// version the update is conditioned on, so one token resets at most once.
func (u *RecoveryUsecase) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	claims, err := u.tokens.VerifyPurpose(rawToken)
	if err != nil {
		return domain.ErrResetTokenBad
	}
	if claims.Purpose != token.PurposePasswordReset {
		return domain.ErrResetTokenScope
	}

	account, err := u.accounts.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrResetTokenScope
		}
		return fmt.Errorf("find account: %w", err)
	}
	if epoch, ok := claims.Epoch(); ok && epoch != account.TokenVersion {
		return domain.ErrResetTokenBad
	}

	_, err = u.setPassword(ctx, account, newPassword, "reset")
	if errors.Is(err, domain.ErrVersionChanged) {
		// A concurrent reset with the same token got there first.
		return domain.ErrResetTokenBad
	}
	return err
}

// ChangePassword is the authenticated variant of ResetPassword.
func (u *RecoveryUsecase) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	account, err := u.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrAccountNotFound
		}
		return fmt.Errorf("find account: %w", err)
	}

	ok, err := u.hasher.Verify(currentPassword, account.PasswordHash)
	if err != nil {
		u.logger.ErrorContext(ctx, "corrupt stored password hash", "account_id", account.ID, "error", err)
		return fmt.Errorf("verify current password: %w", err)
	}
	if !ok {
		return domain.ErrWrongPassword
	}

	_, err = u.setPassword(ctx, account, newPassword, "change")
	if errors.Is(err, domain.ErrVersionChanged) {
		// The caller's session predates a password change that just landed.
		return domain.ErrStaleToken
	}
	return err
}

func (u *RecoveryUsecase) setPassword(ctx context.Context, account *domain.Account, newPassword, flow string) (int64, error) {
	if len(newPassword) < minPasswordLength {
		return 0, domain.ErrPasswordTooShort
	}

	passwordHash, err := u.hasher.Hash(newPassword)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	version, err := u.accounts.UpdatePassword(ctx, account.ID, passwordHash, u.clock.Now(), account.TokenVersion)
	if err != nil {
		return 0, fmt.Errorf("update password: %w", err)
	}
	metrics.PasswordChangesTotal.WithLabelValues(flow).Inc()
	u.logger.InfoContext(ctx, "password changed", "account_id", account.ID, "flow", flow, "token_version", version)

	sendBestEffort(ctx, u.mail, u.logger, u.settings.mailTimeout(), account.Email,
		"Your password has been changed", email.TemplatePasswordChanged, map[string]any{
			"firstName":   account.FirstName,
			"currentYear": u.clock.Now().Year(),
		})
	return version, nil
}

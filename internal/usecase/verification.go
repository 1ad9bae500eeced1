package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ErlanBelekov/school-auth/internal/domain"
	"github.com/ErlanBelekov/school-auth/internal/email"
	"github.com/ErlanBelekov/school-auth/internal/metrics"
	"github.com/ErlanBelekov/school-auth/internal/otp"
	"github.com/ErlanBelekov/school-auth/internal/repository"
	"github.com/ErlanBelekov/school-auth/internal/token"
	"github.com/jonboulle/clockwork"
)

type VerificationUsecase struct {
	accounts repository.AccountRepository
	tenants  repository.TenantRepository
	ledger   otpLedger
	resends  repository.ResendCounterStore
	mail     mailer
	tokens   *token.Issuer
	clock    clockwork.Clock
	settings Settings
	logger   *slog.Logger
}

func NewVerificationUsecase(
	accounts repository.AccountRepository,
	tenants repository.TenantRepository,
	ledger otpLedger,
	resends repository.ResendCounterStore,
	mail mailer,
	tokens *token.Issuer,
	clock clockwork.Clock,
	settings Settings,
	logger *slog.Logger,
) *VerificationUsecase {
	return &VerificationUsecase{
		accounts: accounts,
		tenants:  tenants,
		ledger:   ledger,
		resends:  resends,
		mail:     mail,
		tokens:   tokens,
		clock:    clock,
		settings: settings,
		logger:   logger.With("component", "verification"),
	}
}

type VerifyResult struct {
	Token   string
	Account *domain.Account
	Tenant  *domain.Tenant
}

// SendCode issues a fresh OTP for emailAddr and mails it. The stored code is
// replaced even when the email later fails to go out.
func (u *VerificationUsecase) SendCode(ctx context.Context, emailAddr, firstName, schoolName string, isResend bool) error {
	code, err := u.ledger.Issue(ctx, emailAddr)
	if err != nil {
		return fmt.Errorf("issue otp: %w", err)
	}

	templateID := email.TemplateInitialVerification
	subject := "Verify Your Account - " + schoolName
	if isResend {
		templateID = email.TemplateResendVerification
		subject = "New Verification Code - " + schoolName
	}

	sendCtx, cancel := context.WithTimeout(ctx, u.settings.mailTimeout())
	defer cancel()

	err = u.mail.Send(sendCtx, emailAddr, subject, templateID, map[string]any{
		"firstName":   firstName,
		"schoolName":  schoolName,
		"otpCode":     code,
		"currentYear": u.clock.Now().Year(),
		"loginUrl":    u.settings.LoginURL,
	})
	if err != nil {
		metrics.EmailFailuresTotal.WithLabelValues(templateID).Inc()
		return fmt.Errorf("%w: %w", domain.ErrDispatchFailed, err)
	}
	return nil
}

// CancelCode drops the pending OTP for emailAddr, if any.
func (u *VerificationUsecase) CancelCode(ctx context.Context, emailAddr string) error {
	return u.ledger.Invalidate(ctx, emailAddr)
}

// Verify consumes the OTP for emailAddr, marks the tenant verified and
// returns a session token for the founding account.
func (u *VerificationUsecase) Verify(ctx context.Context, emailAddr, code string) (*VerifyResult, error) {
	emailAddr = otp.NormalizeEmail(emailAddr)

	// The code is consumed before anything else: of two concurrent requests
	// with the same code only one gets past this point.
	if err := u.ledger.Consume(ctx, emailAddr, code); err != nil {
		metrics.OTPVerificationsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	account, tenant, err := u.lookup(ctx, emailAddr)
	if err != nil {
		return nil, err
	}

	if !tenant.Verified() {
		if _, err := u.tenants.AdvanceStatus(ctx, tenant.ID, domain.TenantVerified); err != nil {
			return nil, fmt.Errorf("mark tenant verified: %w", err)
		}
		tenant.Status = domain.TenantVerified
	}

	if err := u.resends.Delete(ctx, emailAddr); err != nil {
		u.logger.WarnContext(ctx, "clear resend counter", "email", emailAddr, "error", err)
	}

	signed, err := u.tokens.IssueSession(account)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	metrics.OTPVerificationsTotal.WithLabelValues("verified").Inc()

	sendBestEffort(ctx, u.mail, u.logger, u.settings.mailTimeout(), account.Email,
		"Welcome to "+tenant.Name+"!", email.TemplateWelcome, map[string]any{
			"firstName":    account.FirstName,
			"schoolName":   tenant.Name,
			"currentYear":  u.clock.Now().Year(),
			"loginUrl":     u.settings.LoginURL,
			"supportEmail": u.settings.SupportEmail,
		})

	return &VerifyResult{Token: signed, Account: account, Tenant: tenant}, nil
}

// Resend issues a new code, at most domain.MaxResends times per cooldown window.
func (u *VerificationUsecase) Resend(ctx context.Context, emailAddr string) error {
	emailAddr = otp.NormalizeEmail(emailAddr)

	account, tenant, err := u.lookup(ctx, emailAddr)
	if err != nil {
		return err
	}
	if tenant.Verified() {
		return domain.ErrAlreadyVerified
	}

	_, err = u.resends.Update(ctx, emailAddr, domain.ResendCounterTTL, func(a domain.ResendAttempts) (domain.ResendAttempts, error) {
		return a.Next(u.clock.Now(), domain.MaxResends, domain.ResendCooldown)
	})
	if err != nil {
		if errors.Is(err, domain.ErrResendThrottled) {
			metrics.OTPResendsTotal.WithLabelValues("throttled").Inc()
			return err
		}
		return fmt.Errorf("update resend counter: %w", err)
	}

	if err := u.SendCode(ctx, emailAddr, account.FirstName, tenant.Name, true); err != nil {
		metrics.OTPResendsTotal.WithLabelValues("failed").Inc()
		return err
	}
	metrics.OTPResendsTotal.WithLabelValues("sent").Inc()
	return nil
}

func (u *VerificationUsecase) lookup(ctx context.Context, emailAddr string) (*domain.Account, *domain.Tenant, error) {
	account, err := u.accounts.FindByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, nil, domain.ErrAccountNotFound
		}
		return nil, nil, fmt.Errorf("find account: %w", err)
	}

	tenant, err := u.tenants.FindByID(ctx, account.TenantID)
	if err != nil {
		if errors.Is(err, domain.ErrTenantAbsent) {
			return nil, nil, domain.ErrTenantNotFound
		}
		return nil, nil, fmt.Errorf("find tenant: %w", err)
	}
	return account, tenant, nil
}

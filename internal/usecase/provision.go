package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/school-auth/internal/domain"
	"github.com/ErlanBelekov/school-auth/internal/metrics"
	"github.com/ErlanBelekov/school-auth/internal/otp"
	"github.com/ErlanBelekov/school-auth/internal/repository"
	"golang.org/x/sync/errgroup"
)

const rollbackTimeout = 5 * time.Second

// codeSender is satisfied by *VerificationUsecase.
type codeSender interface {
	SendCode(ctx context.Context, email, firstName, schoolName string, isResend bool) error
	CancelCode(ctx context.Context, email string) error
}

type ProvisionUsecase struct {
	tenants  repository.TenantRepository
	accounts repository.AccountRepository
	hasher   passwordHasher
	codes    codeSender
	logger   *slog.Logger
}

func NewProvisionUsecase(
	tenants repository.TenantRepository,
	accounts repository.AccountRepository,
	hasher passwordHasher,
	codes codeSender,
	logger *slog.Logger,
) *ProvisionUsecase {
	return &ProvisionUsecase{
		tenants:  tenants,
		accounts: accounts,
		hasher:   hasher,
		codes:    codes,
		logger:   logger.With("component", "provision"),
	}
}

type RegisterInput struct {
	SchoolName     string
	Type           domain.SchoolType
	Curricula      []domain.Curriculum
	GESCode        *string
	DigitalAddress string
	Region         string
	City           string

	AdminFirstName string
	AdminLastName  string
	AdminEmail     string
	AdminPhone     string
	Password       string
}

type RegisterResult struct {
	TenantID string
}

// Register creates an unverified tenant and its SUPER_ADMIN, then mails the
// first OTP. If the email cannot be sent both records are deleted again.
func (u *ProvisionUsecase) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	adminEmail := otp.NormalizeEmail(in.AdminEmail)

	var nameTaken, emailTaken bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		nameTaken, err = u.tenants.ExistsByName(gctx, in.SchoolName)
		return err
	})
	g.Go(func() error {
		var err error
		emailTaken, err = u.accounts.ExistsByEmail(gctx, adminEmail)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("check existing registration: %w", err)
	}
	if nameTaken {
		metrics.RegistrationsTotal.WithLabelValues("conflict").Inc()
		return nil, domain.ErrTenantNameTaken
	}
	if emailTaken {
		metrics.RegistrationsTotal.WithLabelValues("conflict").Inc()
		return nil, domain.ErrEmailTaken
	}

	passwordHash, err := u.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	curricula := in.Curricula
	if len(curricula) == 0 {
		curricula = []domain.Curriculum{domain.CurriculumGESStandard}
	}

	tenant, err := u.tenants.Create(ctx, &domain.Tenant{
		Name:           in.SchoolName,
		Type:           in.Type,
		Curricula:      curricula,
		AdminEmail:     adminEmail,
		GESCode:        in.GESCode,
		DigitalAddress: in.DigitalAddress,
		Region:         in.Region,
		City:           in.City,
		Status:         domain.TenantPending,
	})
	if err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}

	account, err := u.accounts.Create(ctx, &domain.Account{
		TenantID:     tenant.ID,
		FirstName:    in.AdminFirstName,
		LastName:     in.AdminLastName,
		Email:        adminEmail,
		Phone:        in.AdminPhone,
		PasswordHash: passwordHash,
		Role:         domain.RoleSuperAdmin,
		Active:       true,
		TokenVersion: 0,
	})
	if err != nil {
		u.rollback(ctx, tenant.ID, "", "")
		return nil, fmt.Errorf("create account: %w", err)
	}

	if err := u.codes.SendCode(ctx, adminEmail, in.AdminFirstName, in.SchoolName, false); err != nil {
		u.logger.ErrorContext(ctx, "verification email failed, rolling back registration",
			"tenant_id", tenant.ID, "error", err)
		u.rollback(ctx, tenant.ID, account.ID, adminEmail)
		metrics.RegistrationsTotal.WithLabelValues("dispatch_failed").Inc()
		return nil, fmt.Errorf("send verification code: %w", err)
	}

	// The code is already in the admin's inbox, so nothing is undone from
	// here on. The admin may even have verified already, in which case the
	// tenant stays verified. A tenant left pending is still advanced by
	// verification.
	if _, err := u.tenants.AdvanceStatus(ctx, tenant.ID, domain.TenantProvisioned); err != nil {
		u.logger.WarnContext(ctx, "mark tenant provisioned", "tenant_id", tenant.ID, "error", err)
	}

	metrics.RegistrationsTotal.WithLabelValues("created").Inc()
	return &RegisterResult{TenantID: tenant.ID}, nil
}

// rollback deletes what Register created, including a code that was issued
// but never delivered. It is best effort: failures are logged and left for the
// reaper, which removes tenants stuck in pending.
func (u *ProvisionUsecase) rollback(ctx context.Context, tenantID, accountID, adminEmail string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	result := "ok"
	if adminEmail != "" {
		if err := u.codes.CancelCode(ctx, adminEmail); err != nil {
			result = "failed"
			u.logger.ErrorContext(ctx, "rollback: cancel otp", "error", err)
		}
	}
	if accountID != "" {
		if err := u.accounts.Delete(ctx, accountID); err != nil {
			result = "failed"
			u.logger.ErrorContext(ctx, "rollback: delete account", "account_id", accountID, "error", err)
		}
	}
	if err := u.tenants.Delete(ctx, tenantID); err != nil {
		result = "failed"
		u.logger.ErrorContext(ctx, "rollback: delete tenant", "tenant_id", tenantID, "error", err)
	}
	metrics.RollbacksTotal.WithLabelValues(result).Inc()
}

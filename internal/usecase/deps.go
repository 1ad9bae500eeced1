package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/school-auth/internal/metrics"
)

const defaultMailTimeout = 10 * time.Second

// mailer is the subset of email.Mailer the usecases need.
type mailer interface {
	Send(ctx context.Context, to, subject, templateID string, data map[string]any) error
}

type passwordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) (bool, error)
}

type otpLedger interface {
	Issue(ctx context.Context, email string) (string, error)
	Consume(ctx context.Context, email, code string) error
	Invalidate(ctx context.Context, email string) error
}

// Settings holds the links and limits shared by the flows.
type Settings struct {
	LoginURL         string
	ResetPasswordURL string
	SupportEmail     string
	// MailTimeout bounds every dispatch so a hung provider cannot hold a request.
	MailTimeout time.Duration
}

func (s Settings) mailTimeout() time.Duration {
	if s.MailTimeout <= 0 {
		return defaultMailTimeout
	}
	return s.MailTimeout
}

// sendBestEffort dispatches an email whose failure must not affect the caller.
func sendBestEffort(ctx context.Context, m mailer, logger *slog.Logger, timeout time.Duration, to, subject, templateID string, data map[string]any) {
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := m.Send(sendCtx, to, subject, templateID, data); err != nil {
		metrics.EmailFailuresTotal.WithLabelValues(templateID).Inc()
		logger.WarnContext(ctx, "best-effort email failed", "template", templateID, "to", to, "error", err)
	}
}

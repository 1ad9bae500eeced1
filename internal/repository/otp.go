package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/school-auth/internal/domain"
)

// OTPStore holds at most one pending verification per email.
// Put overwrites; Get returns domain.ErrOTPNotFound when nothing is stored.
type OTPStore interface {
	Put(ctx context.Context, email string, entry domain.PendingVerification, ttl time.Duration) error
	Get(ctx context.Context, email string) (*domain.PendingVerification, error)
	Delete(ctx context.Context, email string) error

	// Consume reads the entry and, if accept returns nil, deletes it in the
	// same atomic step, so two callers can never both consume one entry.
	// When accept returns an error the entry is left in place and that error
	// is returned. Consume returns domain.ErrOTPNotFound when nothing is stored.
	Consume(ctx context.Context, email string, accept func(domain.PendingVerification) error) error
}

// ResendCounterStore holds resend bookkeeping per email.
type ResendCounterStore interface {
	// Update runs fn against the current counter (zero value when absent) and
	// persists its result with ttl. The read-modify-write is atomic per email.
	// If fn returns an error nothing is written and the error is returned.
	Update(ctx context.Context, email string, ttl time.Duration, fn func(domain.ResendAttempts) (domain.ResendAttempts, error)) (domain.ResendAttempts, error)
	Delete(ctx context.Context, email string) error
}

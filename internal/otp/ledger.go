package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ErlanBelekov/school-auth/internal/domain"
	"github.com/ErlanBelekov/school-auth/internal/repository"
	"github.com/jonboulle/clockwork"
)

const (
	codeMin = 100000
	codeMax = 999999
)

// Ledger issues and checks the pending verification code for an email.
// Only the most recently issued code for an email is ever valid.
type Ledger struct {
	store  repository.OTPStore
	clock  clockwork.Clock
	ttl    time.Duration
	random io.Reader
}

func NewLedger(store repository.OTPStore, clock clockwork.Clock) *Ledger {
	return &Ledger{
		store:  store,
		clock:  clock,
		ttl:    domain.OTPTTL,
		random: rand.Reader,
	}
}

// Issue generates a fresh code for email, replacing any pending one.
func (l *Ledger) Issue(ctx context.Context, email string) (string, error) {
	code, err := l.generate()
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}

	entry := domain.PendingVerification{
		Code:      code,
		ExpiresAt: l.clock.Now().Add(l.ttl),
	}
	if err := l.store.Put(ctx, NormalizeEmail(email), entry, l.ttl); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	return code, nil
}

// Consume checks code against the pending entry and removes the entry in the
// same step when it matches, so a code is accepted at most once. Missing,
// expired and mismatched codes all yield domain.ErrInvalidOTP; a mismatch
// leaves the pending code usable.
func (l *Ledger) Consume(ctx context.Context, email, code string) error {
	now := l.clock.Now()
	err := l.store.Consume(ctx, NormalizeEmail(email), func(entry domain.PendingVerification) error {
		if entry.Expired(now) {
			return domain.ErrInvalidOTP
		}
		if subtle.ConstantTimeCompare([]byte(entry.Code), []byte(code)) != 1 {
			return domain.ErrInvalidOTP
		}
		return nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrOTPNotFound), errors.Is(err, domain.ErrInvalidOTP):
		return domain.ErrInvalidOTP
	default:
		return fmt.Errorf("consume otp: %w", err)
	}
}

func (l *Ledger) Invalidate(ctx context.Context, email string) error {
	if err := l.store.Delete(ctx, NormalizeEmail(email)); err != nil {
		return fmt.Errorf("invalidate otp: %w", err)
	}
	return nil
}

func (l *Ledger) generate() (string, error) {
	n, err := rand.Int(l.random, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

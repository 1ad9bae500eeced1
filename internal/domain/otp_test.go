package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ErlanBelekov/school-auth/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestResendAttempts_ThreeAllowedFourthThrottled(t *testing.T) {
	var a domain.ResendAttempts
	var err error

	for i := 0; i < domain.MaxResends; i++ {
		a, err = a.Next(t0.Add(time.Duration(i)*time.Minute), domain.MaxResends, domain.ResendCooldown)
		if err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", i+1, err)
		}
	}
	if a.Count != 3 {
		t.Fatalf("count = %d, want 3", a.Count)
	}

	_, err = a.Next(t0.Add(3*time.Minute), domain.MaxResends, domain.ResendCooldown)
	if !errors.Is(err, domain.ErrResendThrottled) {
		t.Fatalf("want ErrResendThrottled, got %v", err)
	}
	if !errors.Is(err, domain.ErrBadRequest) {
		t.Errorf("throttle error should classify as bad request")
	}
}

func TestResendAttempts_MinutesLeftIsCeiling(t *testing.T) {
	a := domain.ResendAttempts{Count: 3, LastAttempt: t0}

	_, err := a.Next(t0.Add(4*time.Minute+30*time.Second), domain.MaxResends, domain.ResendCooldown)

	var throttled *domain.ResendThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("want *ResendThrottledError, got %v", err)
	}
	// 10m30s remaining rounds up to 11.
	if throttled.MinutesLeft != 11 {
		t.Errorf("minutes left = %d, want 11", throttled.MinutesLeft)
	}
	msg, ok := domain.PublicMessage(err)
	if !ok || msg != "Too many resend attempts. Please try again in 11 minutes." {
		t.Errorf("public message = %q", msg)
	}
}

func TestResendAttempts_ResetsAfterCooldown(t *testing.T) {
	a := domain.ResendAttempts{Count: 3, LastAttempt: t0}

	next, err := a.Next(t0.Add(domain.ResendCooldown+time.Second), domain.MaxResends, domain.ResendCooldown)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Count != 1 {
		t.Errorf("count = %d, want 1 after reset", next.Count)
	}
}

func TestPendingVerification_Expired(t *testing.T) {
	p := domain.PendingVerification{Code: "123456", ExpiresAt: t0.Add(domain.OTPTTL)}

	if p.Expired(t0.Add(domain.OTPTTL)) {
		t.Error("entry should still be valid at its expiry instant")
	}
	if !p.Expired(t0.Add(domain.OTPTTL + time.Millisecond)) {
		t.Error("entry should be expired after its expiry instant")
	}
}

func TestPublicMessage_WrappedDomainError(t *testing.T) {
	err := errors.Join(errors.New("context"), domain.ErrTenantNameTaken)

	msg, ok := domain.PublicMessage(err)
	if !ok || msg != "A school with this name is already registered." {
		t.Errorf("public message = %q, %v", msg, ok)
	}
	if !errors.Is(err, domain.ErrConflict) {
		t.Error("want conflict class")
	}
	if _, ok := domain.PublicMessage(domain.ErrDispatchFailed); ok {
		t.Error("internal errors must not expose a public message")
	}
}

package domain

import (
	"math"
	"time"
)

const (
	OTPLength      = 6
	OTPTTL         = 10 * time.Minute
	MaxResends     = 3
	ResendCooldown = 15 * time.Minute

	// ResendCounterTTL outlives the cooldown so the counter is never evicted
	// before ResendAttempts.Next itself resets it.
	ResendCounterTTL = ResendCooldown + time.Minute
)

// PendingVerification is the single live OTP for an email.
type PendingVerification struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (p *PendingVerification) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// ResendAttempts is the per-email resend bookkeeping. The zero value means
// no resend has been requested.
type ResendAttempts struct {
	Count       int       `json:"count"`
	LastAttempt time.Time `json:"last_attempt"`
}

// Next applies the resend policy at now. It returns the updated counter, or a
// *ResendThrottledError when the caller has used up its attempts and the
// cooldown since the last attempt has not elapsed.
func (a ResendAttempts) Next(now time.Time, limit int, cooldown time.Duration) (ResendAttempts, error) {
	cooldownExpired := now.Sub(a.LastAttempt) > cooldown

	if a.Count >= limit && !cooldownExpired {
		remaining := a.LastAttempt.Add(cooldown).Sub(now)
		minutes := int(math.Ceil(float64(remaining.Milliseconds()) / 60000))
		return a, &ResendThrottledError{MinutesLeft: minutes}
	}

	if cooldownExpired {
		a.Count = 0
	}
	a.Count++
	a.LastAttempt = now
	return a, nil
}

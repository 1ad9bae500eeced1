// Package memory holds process-local implementations of the ephemeral stores.
// They are only correct for single-instance deployments and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ErlanBelekov/school-auth/internal/domain"
	"github.com/jonboulle/clockwork"
)

type otpRecord struct {
	entry   domain.PendingVerification
	evictAt time.Time
}

type OTPStore struct {
	mu      sync.Mutex
	entries map[string]otpRecord
	clock   clockwork.Clock
}

func NewOTPStore(clock clockwork.Clock) *OTPStore {
	return &OTPStore{
		entries: make(map[string]otpRecord),
		clock:   clock,
	}
}

func (s *OTPStore) Put(_ context.Context, email string, entry domain.PendingVerification, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	s.pruneLocked(now)
	s.entries[email] = otpRecord{entry: entry, evictAt: now.Add(ttl)}
	return nil
}

func (s *OTPStore) Get(_ context.Context, email string) (*domain.PendingVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.entries[email]
	if !ok {
		return nil, domain.ErrOTPNotFound
	}
	if s.clock.Now().After(rec.evictAt) {
		delete(s.entries, email)
		return nil, domain.ErrOTPNotFound
	}
	entry := rec.entry
	return &entry, nil
}

func (s *OTPStore) Consume(_ context.Context, email string, accept func(domain.PendingVerification) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.entries[email]
	if !ok || s.clock.Now().After(rec.evictAt) {
		delete(s.entries, email)
		return domain.ErrOTPNotFound
	}
	if err := accept(rec.entry); err != nil {
		return err
	}
	delete(s.entries, email)
	return nil
}

func (s *OTPStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, email)
	return nil
}

func (s *OTPStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *OTPStore) pruneLocked(now time.Time) {
	for k, rec := range s.entries {
		if now.After(rec.evictAt) {
			delete(s.entries, k)
		}
	}
}

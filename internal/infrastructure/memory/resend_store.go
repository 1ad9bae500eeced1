package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ErlanBelekov/school-auth/internal/domain"
	"github.com/jonboulle/clockwork"
)

type resendRecord struct {
	attempts domain.ResendAttempts
	evictAt  time.Time
}

type ResendCounterStore struct {
	mu       sync.Mutex
	counters map[string]resendRecord
	clock    clockwork.Clock
}

func NewResendCounterStore(clock clockwork.Clock) *ResendCounterStore {
	return &ResendCounterStore{
		counters: make(map[string]resendRecord),
		clock:    clock,
	}
}

// Update holds the store lock across fn so concurrent resends for the same
// email are serialized.
func (s *ResendCounterStore) Update(_ context.Context, email string, ttl time.Duration, fn func(domain.ResendAttempts) (domain.ResendAttempts, error)) (domain.ResendAttempts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var cur domain.ResendAttempts
	if rec, ok := s.counters[email]; ok && !now.After(rec.evictAt) {
		cur = rec.attempts
	}

	next, err := fn(cur)
	if err != nil {
		return cur, err
	}
	s.counters[email] = resendRecord{attempts: next, evictAt: now.Add(ttl)}
	return next, nil
}

func (s *ResendCounterStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, email)
	return nil
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/school-auth/internal/domain"
	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 5

var ErrCounterContention = errors.New("resend counter: too much contention")

type ResendCounterStore struct {
	client redis.UniversalClient
	prefix string
}

func NewResendCounterStore(client redis.UniversalClient, prefix string) *ResendCounterStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &ResendCounterStore{client: client, prefix: prefix}
}

func (s *ResendCounterStore) key(email string) string {
	return s.prefix + ":resend:" + email
}

// Update uses WATCH/MULTI so two instances updating the same counter cannot
// both read the old value.
func (s *ResendCounterStore) Update(ctx context.Context, email string, ttl time.Duration, fn func(domain.ResendAttempts) (domain.ResendAttempts, error)) (domain.ResendAttempts, error) {
	key := s.key(email)
	var result domain.ResendAttempts

	txf := func(tx *redis.Tx) error {
		var cur domain.ResendAttempts
		b, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("redis get resend counter: %w", err)
		default:
			if err := json.Unmarshal(b, &cur); err != nil {
				return fmt.Errorf("decode resend counter: %w", err)
			}
		}

		next, err := fn(cur)
		if err != nil {
			result = cur
			return err
		}

		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode resend counter: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, ttl)
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return result, err
	}
	return result, ErrCounterContention
}

func (s *ResendCounterStore) Delete(ctx context.Context, email string) error {
	if err := s.client.Del(ctx, s.key(email)).Err(); err != nil {
		return fmt.Errorf("redis del resend counter: %w", err)
	}
	return nil
}

// Package redis backs the OTP ledger and resend counters with Redis so they
// survive restarts and are shared between instances.
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

const defaultPrefix = "schoolauth"

type OTPStore struct {
	client redis.UniversalClient
	prefix string
}

func NewOTPStore(client redis.UniversalClient, prefix string) *OTPStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &OTPStore{client: client, prefix: prefix}
}

func (s *OTPStore) key(email string) string {
	return s.prefix + ":otp:" + email
}

func (s *OTPStore) Put(ctx context.Context, email string, entry domain.PendingVerification, ttl time.Duration) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode otp: %w", err)
	}
	if err := s.client.Set(ctx, s.key(email), b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set otp: %w", err)
	}
	return nil
}

func (s *OTPStore) Get(ctx context.Context, email string) (*domain.PendingVerification, error) {
	b, err := s.client.Get(ctx, s.key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrOTPNotFound
		}
		return nil, fmt.Errorf("redis get otp: %w", err)
	}

	var entry domain.PendingVerification
	if err := json.Unmarshal(b, &entry); err != nil {
		return nil, fmt.Errorf("decode otp: %w", err)
	}
	return &entry, nil
}

// Consume watches the key so a concurrent consume, reissue or delete between
// the read and the DEL aborts this transaction; the retry then sees the new
// state.
func (s *OTPStore) Consume(ctx context.Context, email string, accept func(domain.PendingVerification) error) error {
	key := s.key(email)

	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return domain.ErrOTPNotFound
			}
			return fmt.Errorf("redis get otp: %w", err)
		}

		var entry domain.PendingVerification
		if err := json.Unmarshal(b, &entry); err != nil {
			return fmt.Errorf("decode otp: %w", err)
		}
		if err := accept(entry); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("consume otp: %w", redis.TxFailedErr)
}

func (s *OTPStore) Delete(ctx context.Context, email string) error {
	if err := s.client.Del(ctx, s.key(email)).Err(); err != nil {
		return fmt.Errorf("redis del otp: %w", err)
	}
	return nil
}

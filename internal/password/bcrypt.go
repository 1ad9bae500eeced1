package password

import (
	"errors"
	"fmt"

	"github.com/ErlanBelekov/school-auth/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

const DefaultCost = 12

// Hasher hashes and checks passwords with bcrypt. It holds no state besides
// the cost and is safe for concurrent use.
type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches digest. A mismatch is (false, nil);
// a digest that bcrypt cannot parse is reported as domain.ErrMalformedDigest.
func (h *Hasher) Verify(plaintext, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", domain.ErrMalformedDigest, err)
	}
}

package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/school-auth/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

const (
	PurposePasswordReset = "password-reset"

	DefaultSessionTTL = 24 * time.Hour
	PasswordResetTTL  = time.Hour
)

// Claims is the payload of both session and purpose tokens. Purpose is empty
// for session tokens.
type Claims struct {
	Email        string      `json:"email,omitempty"`
	Role         domain.Role `json:"role,omitempty"`
	TenantID     string      `json:"tenantId,omitempty"`
	TokenVersion *int64      `json:"tokenVersion,omitempty"`
	Purpose      string      `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// Epoch returns the embedded token version, if the token carries one.
func (c *Claims) Epoch() (int64, bool) {
	if c.TokenVersion == nil {
		return 0, false
	}
	return *c.TokenVersion, true
}

type Config struct {
	SessionSecret []byte
	// PurposeSecret signs purpose-scoped tokens. Empty means SessionSecret.
	PurposeSecret []byte
	SessionTTL    time.Duration
	Issuer        string
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	sessionKey []byte
	purposeKey []byte
	sessionTTL time.Duration
	issuer     string
	clock      clockwork.Clock
}

func NewIssuer(cfg Config, clock clockwork.Clock) *Issuer {
	purposeKey := cfg.PurposeSecret
	if len(purposeKey) == 0 {
		purposeKey = cfg.SessionSecret
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Issuer{
		sessionKey: cfg.SessionSecret,
		purposeKey: purposeKey,
		sessionTTL: ttl,
		issuer:     cfg.Issuer,
		clock:      clock,
	}
}

// IssueSession signs a session token for the account at its current epoch.
func (i *Issuer) IssueSession(a *domain.Account) (string, error) {
	epoch := a.TokenVersion
	claims := Claims{
		Email:            a.Email,
		Role:             a.Role,
		TenantID:         a.TenantID,
		TokenVersion:     &epoch,
		RegisteredClaims: i.registered(a.ID, i.sessionTTL),
	}
	return i.sign(claims, i.sessionKey)
}

// IssuePurpose signs a token that is only good for one operation.
func (i *Issuer) IssuePurpose(accountID, purpose string, epoch int64, ttl time.Duration) (string, error) {
	if purpose == "" {
		return "", errors.New("purpose token requires a purpose")
	}
	claims := Claims{
		TokenVersion:     &epoch,
		Purpose:          purpose,
		RegisteredClaims: i.registered(accountID, ttl),
	}
	return i.sign(claims, i.purposeKey)
}

// VerifySession parses a session token. Any failure, including a token that
// carries a purpose, is reported as domain.ErrTokenInvalid.
func (i *Issuer) VerifySession(raw string) (*Claims, error) {
	claims, err := i.parse(raw, i.sessionKey)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != "" {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

// VerifyPurpose parses a purpose token signed with the purpose key. Checking
// the purpose itself is left to the caller.
func (i *Issuer) VerifyPurpose(raw string) (*Claims, error) {
	return i.parse(raw, i.purposeKey)
}

func (i *Issuer) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := i.clock.Now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    i.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (i *Issuer) sign(claims Claims, key []byte) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

func (i *Issuer) parse(raw string, key []byte) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	claims := &Claims{}
	t, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, opts...)
	if err != nil || !t.Valid || claims.Subject == "" {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

package domain

import (
	"context"
	"time"
)

type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleTeacher    Role = "TEACHER"
	RoleStudent    Role = "STUDENT"
	RoleParent     Role = "PARENT"
)

// Account is a user of a tenant. TokenVersion is the epoch embedded in every
// token issued for the account; it only ever increases.
type Account struct {
	ID                string
	TenantID          string
	FirstName         string
	LastName          string
	Email             string
	Phone             string
	PasswordHash      string
	Role              Role
	Active            bool
	TokenVersion      int64
	PasswordChangedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Identity is what the authentication gate attaches to a request.
type Identity struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	TenantID string `json:"tenantId"`
	Epoch    int64  `json:"tokenVersion"`
}

func (i *Identity) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying the authenticated identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity set by WithIdentity, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

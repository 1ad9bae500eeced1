package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ErlanBelekov/school-auth/internal/domain"
	"github.com/gin-gonic/gin"
)

// IdentityKey is the gin context key holding the caller's *domain.Identity.
const IdentityKey = "identity"

const errInternalServer = "Internal server error"

// authenticator is satisfied by *usecase.Authenticator.
type authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (*domain.Identity, error)
}

// Auth resolves the Bearer token through the gate and stores the identity in
// both the gin context and the request context. Unauthorized rejections are
// 401, forbidden ones 403.
func Auth(gate authenticator, logger *slog.Logger) gin.HandlerFunc {
	logger = logger.With("component", "auth_middleware")

	return func(c *gin.Context) {
		identity, err := gate.Authenticate(c.Request.Context(), bearerToken(c.GetHeader("Authorization")))
		if err != nil {
			msg, _ := domain.PublicMessage(err)
			switch {
			case domain.IsUnauthorized(err):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			case domain.IsForbidden(err):
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": msg})
			default:
				logger.ErrorContext(c.Request.Context(), "authenticate request", "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
			}
			return
		}

		c.Set(IdentityKey, identity)
		c.Request = c.Request.WithContext(domain.WithIdentity(c.Request.Context(), identity))
		c.Next()
	}
}

// RequireRole rejects callers whose role is not in roles. It must run after Auth.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := Identity(c)
		if !ok || !identity.HasRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": domain.ErrInsufficientRole.Error()})
			return
		}
		c.Next()
	}
}

// Identity returns the identity stored by Auth.
func Identity(c *gin.Context) (*domain.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*domain.Identity)
	return identity, ok && identity != nil
}

// bearerToken extracts the token from an Authorization header. Anything other
// than a non-empty Bearer credential yields "".
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

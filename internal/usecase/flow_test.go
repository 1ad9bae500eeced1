package usecase_test

import (
	"context"
	"testing"

	"github.com/ErlanBelekov/school-auth/internal/domain"
)

// TestOnboardingFlow walks a school from registration to an authenticated
// request, then revokes the session with a password change.
func TestOnboardingFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	reg, code := h.register(t, "Wesley Girls", "head@wesley.edu.gh")

	res, err := h.verification.Verify(ctx, "head@wesley.edu.gh", code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	claims, err := h.tokens.VerifySession(res.Token)
	if err != nil {
		t.Fatalf("session token does not parse: %v", err)
	}
	if claims.TenantID != reg.TenantID {
		t.Errorf("tenantId claim = %q, want %q", claims.TenantID, reg.TenantID)
	}
	if epoch, ok := claims.Epoch(); !ok || epoch != 0 {
		t.Errorf("tokenVersion claim = %d (present=%v), want 0", epoch, ok)
	}
	if claims.Role != domain.RoleSuperAdmin {
		t.Errorf("role claim = %q", claims.Role)
	}

	id, err := h.gate.Authenticate(ctx, res.Token)
	if err != nil {
		t.Fatalf("gate rejected fresh session: %v", err)
	}
	if id.TenantID != reg.TenantID {
		t.Errorf("identity tenant = %q", id.TenantID)
	}

	if err := h.recovery.ChangePassword(ctx, id.ID, testPassword, "another-Passw0rd"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := h.gate.Authenticate(ctx, res.Token); err == nil {
		t.Fatal("session survived a password change")
	}
}

package usecase_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ErlanBelekov/school-auth/internal/domain"
	"github.com/ErlanBelekov/school-auth/internal/email"
	"github.com/ErlanBelekov/school-auth/internal/token"
)

// resetToken pulls the token out of the most recent reset link.
func (h *harness) resetToken(t *testing.T) string {
	t.Helper()
	link, _ := h.mail.last(t, email.TemplatePasswordReset).data["resetUrl"].(string)
	if !strings.HasPrefix(link, testSettings.ResetPasswordURL+"?token=") {
		t.Fatalf("unexpected reset link %q", link)
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse reset link: %v", err)
	}
	return u.Query().Get("token")
}

func TestForgotPassword_MailsLinkForVerifiedAccount(t *testing.T) {
	h := newHarness(t)
	h.verified(t, "Achimota Prep", "a@x.com")

	h.recovery.ForgotPassword(context.Background(), " A@X.com")

	if h.resetToken(t) == "" {
		t.Fatal("reset link carries no token")
	}
}

func TestForgotPassword_SilentForUnknownOrUnverified(t *testing.T) {
	h := newHarness(t)
	h.register(t, "Pending School", "pending@x.com")

	h.recovery.ForgotPassword(context.Background(), "ghost@x.com")
	h.recovery.ForgotPassword(context.Background(), "pending@x.com")

	if n := h.mail.count(email.TemplatePasswordReset); n != 0 {
		t.Errorf("sent %d reset emails, want 0", n)
	}
}

func TestResetPassword_ChangesPasswordAndRevokesSessions(t *testing.T) {
	h := newHarness(t)
	verified := h.verified(t, "Achimota Prep", "a@x.com")
	ctx := context.Background()

	h.recovery.ForgotPassword(ctx, "a@x.com")
	if err := h.recovery.ResetPassword(ctx, h.resetToken(t), "n3w-password"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if _, err := h.gate.Authenticate(ctx, verified.Token); !errors.Is(err, domain.ErrStaleToken) {
		t.Errorf("old session: got %v, want ErrStaleToken", err)
	}
	if _, err := h.session.Login(ctx, "a@x.com", testPassword); !errors.Is(err, domain.ErrInvalidLogin) {
		t.Errorf("old password: got %v, want ErrInvalidLogin", err)
	}
	login, err := h.session.Login(ctx, "a@x.com", "n3w-password")
	if err != nil {
		t.Fatalf("new password: %v", err)
	}
	id, err := h.gate.Authenticate(ctx, login.Token)
	if err != nil {
		t.Fatalf("fresh session rejected: %v", err)
	}
	if id.Epoch != 1 {
		t.Errorf("epoch = %d, want 1", id.Epoch)
	}
	if h.mail.count(email.TemplatePasswordChanged) != 1 {
		t.Error("no password-changed notice sent")
	}
}

func TestResetPassword_TokenIsSingleUse(t *testing.T) {
	h := newHarness(t)
	h.verified(t, "Achimota Prep", "a@x.com")
	ctx := context.Background()

	h.recovery.ForgotPassword(ctx, "a@x.com")
	raw := h.resetToken(t)
	if err := h.recovery.ResetPassword(ctx, raw, "n3w-password"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	err := h.recovery.ResetPassword(ctx, raw, "another-password")
	if !errors.Is(err, domain.ErrResetTokenBad) {
		t.Fatalf("reuse: got %v, want ErrResetTokenBad", err)
	}
}

func TestResetPassword_ConcurrentUseOfOneToken(t *testing.T) {
	h := newHarness(t)
	h.verified(t, "Achimota Prep", "a@x.com")
	ctx := context.Background()

	h.recovery.ForgotPassword(ctx, "a@x.com")
	raw := h.resetToken(t)

	// Both resets load the account before either writes.
	var read sync.WaitGroup
	read.Add(2)
	h.accounts.onFindByID = func(string) {
		read.Done()
		read.Wait()
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, pw := range []string{"first-password", "second-password"} {
		wg.Add(1)
		go func(pw string) {
			defer wg.Done()
			errs <- h.recovery.ResetPassword(ctx, raw, pw)
		}(pw)
	}
	wg.Wait()
	close(errs)
	h.accounts.onFindByID = nil

	accepted, rejected := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, domain.ErrResetTokenBad):
			rejected++
		default:
			t.Fatalf("reset: %v", err)
		}
	}
	if accepted != 1 || rejected != 1 {
		t.Errorf("accepted %d, rejected %d; want 1 and 1", accepted, rejected)
	}

	account, err := h.accounts.FindByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if account.TokenVersion != 1 {
		t.Errorf("epoch = %d, want 1", account.TokenVersion)
	}
	if h.mail.count(email.TemplatePasswordChanged) != 1 {
		t.Errorf("password-changed notices = %d, want 1", h.mail.count(email.TemplatePasswordChanged))
	}
}

func TestResetPassword_Rejections(t *testing.T) {
	h := newHarness(t)
	verified := h.verified(t, "Achimota Prep", "a@x.com")
	accountID := verified.Account.ID
	ctx := context.Background()

	otherPurpose, err := h.tokens.IssuePurpose(accountID, "email-change", 0, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	ghost, err := h.tokens.IssuePurpose("account-999", token.PurposePasswordReset, 0, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"garbage", "not-a-jwt", domain.ErrResetTokenBad},
		{"session token", verified.Token, domain.ErrResetTokenBad},
		{"wrong purpose", otherPurpose, domain.ErrResetTokenScope},
		{"unknown account", ghost, domain.ErrResetTokenScope},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.recovery.ResetPassword(ctx, tt.token, "n3w-password")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	h := newHarness(t)
	h.verified(t, "Achimota Prep", "a@x.com")

	h.recovery.ForgotPassword(context.Background(), "a@x.com")
	raw := h.resetToken(t)
	h.clock.Advance(token.PasswordResetTTL + time.Minute)

	err := h.recovery.ResetPassword(context.Background(), raw, "n3w-password")
	if !errors.Is(err, domain.ErrResetTokenBad) {
		t.Fatalf("got %v, want ErrResetTokenBad", err)
	}
}

func TestResetPassword_ShortPassword(t *testing.T) {
	h := newHarness(t)
	h.verified(t, "Achimota Prep", "a@x.com")

	h.recovery.ForgotPassword(context.Background(), "a@x.com")
	err := h.recovery.ResetPassword(context.Background(), h.resetToken(t), "short")
	if !errors.Is(err, domain.ErrPasswordTooShort) {
		t.Fatalf("got %v, want ErrPasswordTooShort", err)
	}
}

func TestChangePassword_WrongCurrentPassword(t *testing.T) {
	h := newHarness(t)
	verified := h.verified(t, "Achimota Prep", "a@x.com")

	err := h.recovery.ChangePassword(context.Background(), verified.Account.ID, "not-it", "n3w-password")
	if !errors.Is(err, domain.ErrWrongPassword) {
		t.Fatalf("got %v, want ErrWrongPassword", err)
	}

	account, _ := h.accounts.FindByID(context.Background(), verified.Account.ID)
	if account.TokenVersion != 0 {
		t.Error("failed change bumped the epoch")
	}
}

func TestChangePassword_BumpsEpoch(t *testing.T) {
	h := newHarness(t)
	verified := h.verified(t, "Achimota Prep", "a@x.com")
	ctx := context.Background()

	if err := h.recovery.ChangePassword(ctx, verified.Account.ID, testPassword, "n3w-password"); err != nil {
		t.Fatalf("change: %v", err)
	}

	account, _ := h.accounts.FindByID(ctx, verified.Account.ID)
	if account.TokenVersion != 1 {
		t.Errorf("epoch = %d, want 1", account.TokenVersion)
	}
	if account.PasswordChangedAt == nil || !account.PasswordChangedAt.Equal(h.clock.Now()) {
		t.Errorf("password changed at = %v", account.PasswordChangedAt)
	}
	if _, err := h.gate.Authenticate(ctx, verified.Token); !errors.Is(err, domain.ErrStaleToken) {
		t.Errorf("old session: got %v, want ErrStaleToken", err)
	}
}

func TestChangePassword_ConcurrentChangesFromOneEpoch(t *testing.T) {
	h := newHarness(t)
	verified := h.verified(t, "Achimota Prep", "a@x.com")
	ctx := context.Background()

	// Hold every caller until all of them have read the account at epoch 0.
	const n = 3
	var read sync.WaitGroup
	read.Add(n)
	h.accounts.onFindByID = func(string) {
		read.Done()
		read.Wait()
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.recovery.ChangePassword(ctx, verified.Account.ID, testPassword, "n3w-password")
		}()
	}
	wg.Wait()
	close(errs)
	h.accounts.onFindByID = nil

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrStaleToken):
		default:
			t.Fatalf("change: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d changes applied from the same epoch, want 1", succeeded)
	}

	account, _ := h.accounts.FindByID(ctx, verified.Account.ID)
	if account.TokenVersion != 1 {
		t.Errorf("epoch = %d, want 1", account.TokenVersion)
	}
}

func TestChangePassword_UnknownAccount(t *testing.T) {
	h := newHarness(t)

	err := h.recovery.ChangePassword(context.Background(), "account-404", testPassword, "n3w-password")
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("got %v, want ErrAccountNotFound", err)
	}
}

func TestChangePassword_CorruptDigestIsInternal(t *testing.T) {
	h := newHarness(t)
	verified := h.verified(t, "Achimota Prep", "a@x.com")
	h.accounts.mutate(verified.Account.ID, func(a *domain.Account) { a.PasswordHash = "not-bcrypt" })

	err := h.recovery.ChangePassword(context.Background(), verified.Account.ID, testPassword, "n3w-password")
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := domain.PublicMessage(err); ok {
		t.Errorf("corrupt digest leaked a client message: %v", err)
	}
}


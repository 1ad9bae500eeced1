package usecase_test

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ErlanBelekov/school-auth/internal/domain"
	"github.com/ErlanBelekov/school-auth/internal/infrastructure/memory"
	"github.com/ErlanBelekov/school-auth/internal/otp"
	"github.com/ErlanBelekov/school-auth/internal/password"
	"github.com/ErlanBelekov/school-auth/internal/token"
	"github.com/ErlanBelekov/school-auth/internal/usecase"
	"github.com/jonboulle/clockwork"
)

// ---- fakes ----

// fakeTenantRepo is an in-memory TenantRepository. The optional hooks run
// before the default behaviour and short-circuit it when they return an error.
type fakeTenantRepo struct {
	mu      sync.Mutex
	seq     int
	tenants map[string]*domain.Tenant

	onCreate    func(t *domain.Tenant) error
	onAdvance   func(id string, status domain.TenantStatus) error
	onDelete    func(ctx context.Context, id string) error
}

func newFakeTenantRepo() *fakeTenantRepo {
	return &fakeTenantRepo{tenants: make(map[string]*domain.Tenant)}
}

func (r *fakeTenantRepo) Create(_ context.Context, t *domain.Tenant) (*domain.Tenant, error) {
	if r.onCreate != nil {
		if err := r.onCreate(t); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tenants {
		if existing.Name == t.Name {
			return nil, domain.ErrTenantNameTaken
		}
	}
	r.seq++
	c := *t
	c.ID = "tenant-" + strconv.Itoa(r.seq)
	r.tenants[c.ID] = &c
	out := c
	return &out, nil
}

func (r *fakeTenantRepo) FindByID(_ context.Context, id string) (*domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, domain.ErrTenantAbsent
	}
	c := *t
	return &c, nil
}

func (r *fakeTenantRepo) ExistsByName(_ context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeTenantRepo) AdvanceStatus(_ context.Context, id string, status domain.TenantStatus) (bool, error) {
	if r.onAdvance != nil {
		if err := r.onAdvance(id, status); err != nil {
			return false, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return false, domain.ErrTenantAbsent
	}
	if !slices.Contains(status.Predecessors(), t.Status) {
		return false, nil
	}
	t.Status = status
	return true, nil
}

// setStatus overwrites the stored status, bypassing the forward-only rule.
func (r *fakeTenantRepo) setStatus(id string, status domain.TenantStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[id].Status = status
}

func (r *fakeTenantRepo) Delete(ctx context.Context, id string) error {
	if r.onDelete != nil {
		if err := r.onDelete(ctx, id); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tenants, id)
	return nil
}

func (r *fakeTenantRepo) DeleteStalePending(_ context.Context, cutoff time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, t := range r.tenants {
		if n == limit {
			break
		}
		if t.Status == domain.TenantPending && t.CreatedAt.Before(cutoff) {
			delete(r.tenants, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeTenantRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tenants)
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	seq      int
	accounts map[string]*domain.Account

	onCreate func(a *domain.Account) error
	// onFindByID runs before every FindByID lookup.
	onFindByID func(id string)
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[string]*domain.Account)}
}

func (r *fakeAccountRepo) Create(_ context.Context, a *domain.Account) (*domain.Account, error) {
	if r.onCreate != nil {
		if err := r.onCreate(a); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if strings.EqualFold(existing.Email, a.Email) {
			return nil, domain.ErrEmailTaken
		}
	}
	r.seq++
	c := *a
	c.ID = "account-" + strconv.Itoa(r.seq)
	r.accounts[c.ID] = &c
	out := c
	return &out, nil
}

func (r *fakeAccountRepo) FindByID(_ context.Context, id string) (*domain.Account, error) {
	if r.onFindByID != nil {
		r.onFindByID(id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	c := *a
	return &c, nil
}

func (r *fakeAccountRepo) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if strings.EqualFold(a.Email, email) {
			c := *a
			return &c, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *fakeAccountRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	_, err := r.FindByEmail(context.Background(), email)
	return err == nil, nil
}

func (r *fakeAccountRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, id)
	return nil
}

func (r *fakeAccountRepo) UpdatePassword(_ context.Context, id, passwordHash string, changedAt time.Time, expectedVersion int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok || a.TokenVersion != expectedVersion {
		return 0, domain.ErrVersionChanged
	}
	a.PasswordHash = passwordHash
	a.TokenVersion++
	a.PasswordChangedAt = &changedAt
	return a.TokenVersion, nil
}

func (r *fakeAccountRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}

// mutate edits the stored account in place.
func (r *fakeAccountRepo) mutate(id string, fn func(a *domain.Account)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.accounts[id])
}

type sentMail struct {
	to, subject, templateID string
	data                    map[string]any
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	// fail, when set, decides per template whether Send errors.
	fail func(templateID string) error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, templateID string, data map[string]any) error {
	if m.fail != nil {
		if err := m.fail(templateID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, subject: subject, templateID: templateID, data: data})
	return nil
}

func (m *fakeMailer) last(t *testing.T, templateID string) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].templateID == templateID {
			return m.sent[i]
		}
	}
	t.Fatalf("no %q email was sent", templateID)
	return sentMail{}
}

func (m *fakeMailer) count(templateID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.templateID == templateID {
			n++
		}
	}
	return n
}

// ---- harness ----

const (
	testSessionSecret = "test-session-secret-at-least-32-chars!"
	testResetSecret   = "test-reset-secret-at-least-32-chars!!!"
	testPassword      = "Passw0rd!"
)

var testSettings = usecase.Settings{
	LoginURL:         "http://localhost:3000/login",
	ResetPasswordURL: "http://localhost:3000/reset-password",
	SupportEmail:     "support@example.com",
	MailTimeout:      time.Second,
}

type harness struct {
	clock    *clockwork.FakeClock
	tenants  *fakeTenantRepo
	accounts *fakeAccountRepo
	mail     *fakeMailer
	otps     *memory.OTPStore
	hasher   *password.Hasher
	tokens   *token.Issuer

	verification *usecase.VerificationUsecase
	provision    *usecase.ProvisionUsecase
	recovery     *usecase.RecoveryUsecase
	session      *usecase.SessionUsecase
	gate         *usecase.Authenticator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		clock:    clockwork.NewFakeClockAt(time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)),
		tenants:  newFakeTenantRepo(),
		accounts: newFakeAccountRepo(),
		mail:     &fakeMailer{},
		hasher:   password.NewHasher(4),
	}
	h.otps = memory.NewOTPStore(h.clock)
	h.tokens = token.NewIssuer(token.Config{
		SessionSecret: []byte(testSessionSecret),
		PurposeSecret: []byte(testResetSecret),
		Issuer:        "school-auth-test",
	}, h.clock)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := otp.NewLedger(h.otps, h.clock)

	h.verification = usecase.NewVerificationUsecase(h.accounts, h.tenants, ledger,
		memory.NewResendCounterStore(h.clock), h.mail, h.tokens, h.clock, testSettings, logger)
	h.provision = usecase.NewProvisionUsecase(h.tenants, h.accounts, h.hasher, h.verification, logger)
	h.recovery = usecase.NewRecoveryUsecase(h.accounts, h.tenants, h.hasher, h.mail, h.tokens, h.clock, testSettings, logger)
	h.session = usecase.NewSessionUsecase(h.accounts, h.tenants, h.hasher, h.tokens, logger)
	h.gate = usecase.NewAuthenticator(h.accounts, h.tenants, h.tokens)
	return h
}

func registerInput(school, adminEmail string) usecase.RegisterInput {
	return usecase.RegisterInput{
		SchoolName:     school,
		Type:           domain.SchoolPrivateJHS,
		DigitalAddress: "GA-123-4567",
		Region:         "Greater Accra",
		City:           "Accra",
		AdminFirstName: "Ama",
		AdminLastName:  "Mensah",
		AdminEmail:     adminEmail,
		AdminPhone:     "+233200000000",
		Password:       testPassword,
	}
}

// register provisions a school and returns the OTP that was mailed for it.
func (h *harness) register(t *testing.T, school, adminEmail string) (*usecase.RegisterResult, string) {
	t.Helper()
	res, err := h.provision.Register(context.Background(), registerInput(school, adminEmail))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return res, h.lastCode(t)
}

func (h *harness) lastCode(t *testing.T) string {
	t.Helper()
	m := h.mail.sent[len(h.mail.sent)-1]
	code, ok := m.data["otpCode"].(string)
	if !ok {
		t.Fatalf("last email (%s) carries no otp code", m.templateID)
	}
	return code
}

// verified registers and verifies a school, returning the session token.
func (h *harness) verified(t *testing.T, school, adminEmail string) *usecase.VerifyResult {
	t.Helper()
	_, code := h.register(t, school, adminEmail)
	res, err := h.verification.Verify(context.Background(), adminEmail, code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	return res
}

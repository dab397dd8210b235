package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/lumenbank/onboarding/internal/notification"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []notification.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg notification.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) last() notification.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T) (*Service, *recordingMailer, *testClock) {
	t.Helper()
	mailer := &recordingMailer{}
	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(NewMemoryRepository(), mailer, Options{
		CodeTTL:        15 * time.Minute,
		ResendCooldown: 30 * time.Second,
		MaxAttempts:    3,
		HashCost:       bcrypt.MinCost,
		Now:            clock.Now,
		GenerateCode:   func() (string, error) { return "12345678", nil },
	}, nil)
	return svc, mailer, clock
}

func TestCreateSendVerifySignIn(t *testing.T) {
	svc, mailer, _ := newTestService(t)
	ctx := context.Background()

	ident, err := svc.CreateIdentity(ctx, "  A@B.com ", "Aa1!aaaa")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ident.Email != "a@b.com" {
		t.Fatalf("expected normalized email, got %q", ident.Email)
	}
	if _, err := svc.SignIn(ctx, "a@b.com", "Aa1!aaaa"); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed before confirmation, got %v", err)
	}

	if err := svc.SendConfirmationCode(ctx, ident.ID); err != nil {
		t.Fatalf("send code: %v", err)
	}
	msg := mailer.last()
	if msg.Destination != "a@b.com" || msg.Template != TemplateConfirmationCode || msg.Variables["code"] != "12345678" {
		t.Fatalf("unexpected code mail: %+v", msg)
	}

	confirmed, err := svc.VerifyCode(ctx, ident.ID, "12345678")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !confirmed.Confirmed() {
		t.Fatalf("expected identity to be confirmed")
	}
	if _, err := svc.VerifyCode(ctx, ident.ID, "12345678"); !errors.Is(err, ErrAlreadyConfirmed) {
		t.Fatalf("expected ErrAlreadyConfirmed, got %v", err)
	}

	signedIn, err := svc.SignIn(ctx, "A@b.com", "Aa1!aaaa")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if signedIn.LastLogin == nil {
		t.Fatalf("expected last login to be recorded")
	}
	if _, err := svc.SignIn(ctx, "a@b.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestCreateIdentityResumesUnconfirmed(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateIdentity(ctx, "a@b.com", "Aa1!aaaa")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := svc.CreateIdentity(ctx, "a@b.com", "Bb2@bbbb")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected resume to keep id %s, got %s", first.ID, second.ID)
	}
	if bcrypt.CompareHashAndPassword(second.PasswordHash, []byte("Bb2@bbbb")) != nil {
		t.Fatalf("expected password hash to be refreshed")
	}
}

func TestCreateIdentityRejectsConfirmedEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	ident, _ := svc.CreateIdentity(ctx, "a@b.com", "Aa1!aaaa")
	if err := svc.SendConfirmationCode(ctx, ident.ID); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := svc.VerifyCode(ctx, ident.ID, "12345678"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := svc.CreateIdentity(ctx, "a@b.com", "Aa1!aaaa"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if err := svc.SendConfirmationCode(ctx, ident.ID); !errors.Is(err, ErrAlreadyConfirmed) {
		t.Fatalf("expected ErrAlreadyConfirmed, got %v", err)
	}
}

func TestConcurrentCreateConvergesToOneIdentity(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	const workers = 8
	ids := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ident, err := svc.CreateIdentity(ctx, "a@b.com", "Aa1!aaaa")
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			ids <- ident.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]struct{}{}
	for id := range ids {
		seen[id] = struct{}{}
	}
	if len(seen) != 1 {
		t.Fatalf("expected a single identity, got %d", len(seen))
	}
}

func TestVerifyCodeMismatchAndExhaustion(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	ident, _ := svc.CreateIdentity(ctx, "a@b.com", "Aa1!aaaa")
	if err := svc.SendConfirmationCode(ctx, ident.ID); err != nil {
		t.Fatalf("send: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.VerifyCode(ctx, ident.ID, "00000000"); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("attempt %d: expected ErrCodeMismatch, got %v", i, err)
		}
	}
	if _, err := svc.VerifyCode(ctx, ident.ID, "12345678"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected exhausted code to be expired, got %v", err)
	}
}

func TestVerifyCodeExpiry(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	ident, _ := svc.CreateIdentity(ctx, "a@b.com", "Aa1!aaaa")

	if _, err := svc.VerifyCode(ctx, ident.ID, "12345678"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired without a code, got %v", err)
	}
	if err := svc.SendConfirmationCode(ctx, ident.ID); err != nil {
		t.Fatalf("send: %v", err)
	}
	clock.Advance(16 * time.Minute)
	if _, err := svc.VerifyCode(ctx, ident.ID, "12345678"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired after ttl, got %v", err)
	}
}

func TestResendCooldown(t *testing.T) {
	svc, mailer, clock := newTestService(t)
	ctx := context.Background()
	ident, _ := svc.CreateIdentity(ctx, "a@b.com", "Aa1!aaaa")

	if err := svc.SendConfirmationCode(ctx, ident.ID); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := svc.SendConfirmationCode(ctx, ident.ID); !errors.Is(err, ErrResendTooSoon) {
		t.Fatalf("expected ErrResendTooSoon, got %v", err)
	}
	clock.Advance(31 * time.Second)
	if err := svc.SendConfirmationCode(ctx, ident.ID); err != nil {
		t.Fatalf("resend after cooldown: %v", err)
	}
	if len(mailer.sent) != 2 {
		t.Fatalf("expected two code mails, got %d", len(mailer.sent))
	}
}

func TestUndeliveredCodeDoesNotHoldCooldown(t *testing.T) {
	svc, mailer, _ := newTestService(t)
	ctx := context.Background()
	ident, _ := svc.CreateIdentity(ctx, "a@b.com", "Aa1!aaaa")

	mailer.err = errors.New("smtp down")
	if err := svc.SendConfirmationCode(ctx, ident.ID); err == nil {
		t.Fatalf("expected delivery error")
	}
	mailer.err = nil
	if err := svc.SendConfirmationCode(ctx, ident.ID); err != nil {
		t.Fatalf("expected immediate retry to be allowed, got %v", err)
	}
}

func TestBumpTokenVersionAndEmailFor(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	ident, _ := svc.CreateIdentity(ctx, "a@b.com", "Aa1!aaaa")

	version, err := svc.BumpTokenVersion(ctx, ident.ID)
	if err != nil || version != 1 {
		t.Fatalf("expected version 1, got %d (%v)", version, err)
	}
	email, err := svc.EmailFor(ctx, ident.ID)
	if err != nil || email != "a@b.com" {
		t.Fatalf("unexpected email lookup %q (%v)", email, err)
	}
	if _, err := svc.EmailFor(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGenerateCodeWidth(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != codeDigits {
			t.Fatalf("expected %d digits, got %q", codeDigits, code)
		}
	}
}

package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/lumenbank/onboarding/internal/customer"
	"github.com/lumenbank/onboarding/internal/logging"
	"github.com/lumenbank/onboarding/internal/notification"
)

// TemplateConfirmationCode is the mail template carrying a one-time code.
const TemplateConfirmationCode = "confirmation_code"

const codeDigits = 8

// Options tune code issuance. Zero values fall back to the defaults below.
type Options struct {
	CodeTTL        time.Duration
	ResendCooldown time.Duration
	MaxAttempts    int
	HashCost       int
	Now            func() time.Time
	GenerateCode   func() (string, error)
}

func (o Options) withDefaults() Options {
	if o.CodeTTL <= 0 {
		o.CodeTTL = 15 * time.Minute
	}
	if o.ResendCooldown < 0 {
		o.ResendCooldown = 0
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.HashCost == 0 {
		o.HashCost = bcrypt.DefaultCost
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.GenerateCode == nil {
		o.GenerateCode = GenerateCode
	}
	return o
}

// Service is the credential store: it owns identities, password hashes and
// one-time confirmation codes.
type Service struct {
	repo   Repository
	mailer notification.Notifier
	opts   Options
	logger *slog.Logger
}

// NewService creates a new identity service.
func NewService(repo Repository, mailer notification.Notifier, opts Options, logger *slog.Logger) *Service {
	return &Service{repo: repo, mailer: mailer, opts: opts.withDefaults(), logger: logging.OrDiscard(logger)}
}

// CreateIdentity registers an unconfirmed identity for email. An existing
// unconfirmed identity for the same email is resumed with the new password;
// a confirmed one yields ErrEmailTaken.
func (s *Service) CreateIdentity(ctx context.Context, email, password string) (Identity, error) {
	email = customer.NormalizeEmail(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.HashCost)
	if err != nil {
		return Identity{}, err
	}

	now := s.opts.Now().UTC()
	ident, created, err := s.repo.Create(ctx, Identity{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
	})
	if err != nil {
		return Identity{}, fmt.Errorf("create identity: %w", err)
	}
	if created {
		return ident, nil
	}
	if ident.Confirmed() {
		return Identity{}, ErrEmailTaken
	}

	if err := s.repo.UpdatePasswordHash(ctx, ident.ID, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Confirmed between the read and the update.
			return Identity{}, ErrEmailTaken
		}
		return Identity{}, fmt.Errorf("resume identity: %w", err)
	}
	ident.PasswordHash = hash
	s.logger.Info("identity resumed", "identity_id", ident.ID)
	return ident, nil
}

// SendConfirmationCode issues a fresh code, replacing any previous one, and
// mails it to the identity's email.
func (s *Service) SendConfirmationCode(ctx context.Context, identityID string) error {
	ident, err := s.repo.FindByID(ctx, identityID)
	if err != nil {
		return err
	}
	if ident.Confirmed() {
		return ErrAlreadyConfirmed
	}

	now := s.opts.Now().UTC()
	if prev, err := s.repo.FindCode(ctx, identityID); err == nil {
		if now.Before(prev.SentAt.Add(s.opts.ResendCooldown)) {
			return ErrResendTooSoon
		}
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	code, err := s.opts.GenerateCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.opts.HashCost)
	if err != nil {
		return err
	}
	if err := s.repo.SaveCode(ctx, ConfirmationCode{
		IdentityID: identityID,
		CodeHash:   hash,
		ExpiresAt:  now.Add(s.opts.CodeTTL),
		SentAt:     now,
	}); err != nil {
		return fmt.Errorf("save code: %w", err)
	}

	msg := notification.Message{
		Kind:        notification.KindConfirmationCode,
		Destination: ident.Email,
		Template:    TemplateConfirmationCode,
		Variables: map[string]string{
			"code":               code,
			"expires_in_minutes": strconv.Itoa(int(s.opts.CodeTTL / time.Minute)),
		},
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		// An undelivered code must not hold the resend cooldown.
		if delErr := s.repo.DeleteCode(ctx, identityID); delErr != nil {
			s.logger.Warn("drop undelivered code", "identity_id", identityID, "error", delErr)
		}
		return fmt.Errorf("deliver code: %w", err)
	}
	return nil
}

// VerifyCode checks code against the live code for the identity and marks the
// identity confirmed on success.
func (s *Service) VerifyCode(ctx context.Context, identityID, code string) (Identity, error) {
	ident, err := s.repo.FindByID(ctx, identityID)
	if err != nil {
		return Identity{}, err
	}
	if ident.Confirmed() {
		return Identity{}, ErrAlreadyConfirmed
	}

	stored, err := s.repo.FindCode(ctx, identityID)
	if errors.Is(err, ErrNotFound) {
		return Identity{}, ErrCodeExpired
	}
	if err != nil {
		return Identity{}, err
	}
	now := s.opts.Now().UTC()
	if !now.Before(stored.ExpiresAt) || stored.Attempts >= s.opts.MaxAttempts {
		return Identity{}, ErrCodeExpired
	}
	if err := bcrypt.CompareHashAndPassword(stored.CodeHash, []byte(code)); err != nil {
		if incErr := s.repo.IncrementCodeAttempts(ctx, identityID); incErr != nil {
			return Identity{}, incErr
		}
		return Identity{}, ErrCodeMismatch
	}

	if err := s.repo.MarkConfirmed(ctx, identityID, now); err != nil {
		return Identity{}, err
	}
	if err := s.repo.DeleteCode(ctx, identityID); err != nil {
		s.logger.Warn("delete used code", "identity_id", identityID, "error", err)
	}
	ident.ConfirmedAt = &now
	return ident, nil
}

// SignIn checks the password of a confirmed identity.
func (s *Service) SignIn(ctx context.Context, email, password string) (Identity, error) {
	ident, err := s.repo.FindByEmail(ctx, customer.NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, err
	}
	if err := bcrypt.CompareHashAndPassword(ident.PasswordHash, []byte(password)); err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	if !ident.Confirmed() {
		return Identity{}, ErrNotConfirmed
	}
	now := s.opts.Now().UTC()
	if err := s.repo.RecordLogin(ctx, ident.ID, now); err != nil {
		return Identity{}, err
	}
	ident.LastLogin = &now
	return ident, nil
}

// FindByID returns the identity with the given id.
func (s *Service) FindByID(ctx context.Context, id string) (Identity, error) {
	return s.repo.FindByID(ctx, id)
}

// EmailFor returns the email address of an identity.
func (s *Service) EmailFor(ctx context.Context, identityID string) (string, error) {
	ident, err := s.repo.FindByID(ctx, identityID)
	if err != nil {
		return "", err
	}
	return ident.Email, nil
}

// BumpTokenVersion invalidates all sessions of the identity.
func (s *Service) BumpTokenVersion(ctx context.Context, identityID string) (int, error) {
	return s.repo.BumpTokenVersion(ctx, identityID)
}

// GenerateCode returns a random numeric code of fixed width.
func GenerateCode() (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(codeDigits), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n), nil
}

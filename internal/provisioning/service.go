package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lumenbank/onboarding/internal/customer"
	"github.com/lumenbank/onboarding/internal/documents"
	"github.com/lumenbank/onboarding/internal/ledger"
	"github.com/lumenbank/onboarding/internal/logging"
)

// ErrProvisioningFailed is returned when the profile could not be written
// after all attempts.
var ErrProvisioningFailed = errors.New("provisioning failed")

// Options tune the provisioner. Zero values fall back to defaults.
type Options struct {
	DefaultRole           string
	DefaultAccountType    string
	MaxAttempts           int
	Backoff               time.Duration
	Now                   func() time.Time
	GenerateAccountNumber func() (string, error)
}

func (o Options) withDefaults() Options {
	if o.DefaultRole == "" {
		o.DefaultRole = customer.RoleCustomer
	}
	if o.DefaultAccountType == "" {
		o.DefaultAccountType = customer.AccountTypeChecking
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.Backoff < 0 {
		o.Backoff = 0
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.GenerateAccountNumber == nil {
		o.GenerateAccountNumber = GenerateAccountNumber
	}
	return o
}

// Result is the outcome of a provisioning call. Created is true when this call
// inserted the profile. Completed is true when this call finished provisioning,
// which happens exactly once per profile even across retries.
type Result struct {
	Profile       customer.Profile
	Role          string
	AccountNumber string
	Created       bool
	Completed     bool
}

// Service turns a confirmed identity and its signup form into exactly one
// profile, role and account number.
type Service struct {
	repo   Repository
	ledger ledger.Ledger
	docs   documents.Store
	opts   Options
	logger *slog.Logger
}

// NewService creates a provisioner. docs may be nil when document storage is disabled.
func NewService(repo Repository, l ledger.Ledger, docs documents.Store, opts Options, logger *slog.Logger) *Service {
	return &Service{repo: repo, ledger: l, docs: docs, opts: opts.withDefaults(), logger: logging.OrDiscard(logger)}
}

// Get returns the profile of identityID.
func (s *Service) Get(ctx context.Context, identityID string) (customer.Profile, error) {
	return s.repo.FindByIdentity(ctx, identityID)
}

// Provision is safe to call repeatedly: an existing profile is returned
// unchanged and concurrent calls converge on a single row. A profile left
// behind by an interrupted call is finished here, and a document supplied
// for a profile without one is attached.
func (s *Service) Provision(ctx context.Context, identityID string, form customer.Form) (Result, error) {
	var (
		created bool
		lastErr error
	)
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		profile, err := s.repo.FindByIdentity(ctx, identityID)
		if errors.Is(err, ErrNotFound) {
			profile, err = s.insert(ctx, identityID, form)
			if errors.Is(err, ErrAccountNumberTaken) || errors.Is(err, ErrProfileExists) {
				lastErr = err
				continue
			}
			if err == nil {
				created = true
			}
		}
		if err == nil {
			var completed bool
			if profile, completed, err = s.complete(ctx, profile); err == nil {
				profile = s.attachDocument(ctx, profile, form.Document)
				return Result{
					Profile:       profile,
					Role:          profile.Role,
					AccountNumber: profile.AccountNumber,
					Created:       created,
					Completed:     completed,
				}, nil
			}
		}
		lastErr = err

		s.logger.Warn("provisioning attempt failed",
			"identity_id", identityID, "attempt", attempt, "error", lastErr)
		if err := s.sleep(ctx, attempt); err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrProvisioningFailed, err)
		}
	}
	return Result{}, fmt.Errorf("%w after %d attempts: %w", ErrProvisioningFailed, s.opts.MaxAttempts, lastErr)
}

// complete opens the ledger account and stamps the profile as provisioned.
func (s *Service) complete(ctx context.Context, profile customer.Profile) (customer.Profile, bool, error) {
	if err := s.ledger.EnsureAccount(ctx, ledger.AccountCode(profile.AccountNumber)); err != nil {
		return profile, false, fmt.Errorf("open ledger account: %w", err)
	}
	if profile.CompletedAt != nil {
		return profile, false, nil
	}
	now := s.opts.Now().UTC()
	first, err := s.repo.MarkCompleted(ctx, profile.IdentityID, now)
	if err != nil {
		return profile, false, fmt.Errorf("mark profile completed: %w", err)
	}
	profile.CompletedAt = &now
	return profile, first, nil
}

func (s *Service) insert(ctx context.Context, identityID string, form customer.Form) (customer.Profile, error) {
	number, err := s.opts.GenerateAccountNumber()
	if err != nil {
		return customer.Profile{}, fmt.Errorf("generate account number: %w", err)
	}
	if !customer.ValidAccountNumber(number) {
		return customer.Profile{}, fmt.Errorf("generated account number %q has the wrong format", number)
	}
	profile := customer.Profile{
		IdentityID:    identityID,
		Email:         customer.NormalizeEmail(form.Email),
		FirstName:     strings.TrimSpace(form.FirstName),
		LastName:      strings.TrimSpace(form.LastName),
		DisplayName:   form.DisplayName(),
		Phone:         strings.TrimSpace(form.Phone),
		DateOfBirth:   form.DateOfBirth,
		Address:       form.Address,
		AccountType:   customer.NormalizeAccountType(form.AccountType, s.opts.DefaultAccountType),
		AccountNumber: number,
		Role:          s.opts.DefaultRole,
		CreatedAt:     s.opts.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, profile); err != nil {
		return customer.Profile{}, err
	}
	s.logger.Info("profile provisioned", "identity_id", identityID, "account_number", number)
	return profile, nil
}

// attachDocument uploads the identity document of a profile that has none.
// Failures leave the profile without a document key.
func (s *Service) attachDocument(ctx context.Context, profile customer.Profile, doc *customer.Document) customer.Profile {
	if s.docs == nil || doc == nil || profile.DocumentKey != "" {
		return profile
	}
	raw, err := doc.Decode()
	if err != nil {
		s.logger.Warn("identity document unreadable", "identity_id", profile.IdentityID, "error", err)
		return profile
	}
	key := documents.KeyFor(profile.IdentityID, doc.Name)
	if err := s.docs.Put(ctx, key, doc.ContentType, raw); err != nil {
		s.logger.Warn("identity document upload failed", "identity_id", profile.IdentityID, "error", err)
		return profile
	}
	if err := s.repo.SetDocumentKey(ctx, profile.IdentityID, key); err != nil {
		s.logger.Warn("identity document key not saved", "identity_id", profile.IdentityID, "error", err)
		return profile
	}
	profile.DocumentKey = key
	return profile
}

func (s *Service) sleep(ctx context.Context, attempt int) error {
	if s.opts.Backoff == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(time.Duration(attempt) * s.opts.Backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package signup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lumenbank/onboarding/internal/customer"
	"github.com/lumenbank/onboarding/internal/identity"
	"github.com/lumenbank/onboarding/internal/logging"
	"github.com/lumenbank/onboarding/internal/metrics"
	"github.com/lumenbank/onboarding/internal/provisioning"
	"github.com/lumenbank/onboarding/internal/staging"
)

// Next steps returned to the client.
const (
	NextConfirmCode     = "confirm_code"
	NextDashboard       = "dashboard"
	NextCompleteProfile = "complete_profile"
	NextSignIn          = "sign_in"
	NextResendCode      = "resend_code"
)

// CredentialStore owns identities and confirmation codes.
type CredentialStore interface {
	CreateIdentity(ctx context.Context, email, password string) (identity.Identity, error)
	SendConfirmationCode(ctx context.Context, identityID string) error
	VerifyCode(ctx context.Context, identityID, code string) (identity.Identity, error)
	FindByID(ctx context.Context, identityID string) (identity.Identity, error)
}

// Provisioner creates the profile, role and account number of an identity.
type Provisioner interface {
	Provision(ctx context.Context, identityID string, form customer.Form) (provisioning.Result, error)
	Get(ctx context.Context, identityID string) (customer.Profile, error)
}

// WelcomeNotifier sends the welcome mail.
type WelcomeNotifier interface {
	Notify(ctx context.Context, identityID, accountNumber, displayName string) error
}

// Options tune the orchestrator.
type Options struct {
	PasswordPolicy customer.PasswordPolicy
	// NotifyTimeout bounds the background welcome mail.
	NotifyTimeout time.Duration
}

// BeginResult tells the client to show the code entry screen.
type BeginResult struct {
	IdentityID      string `json:"identity_id"`
	Email           string `json:"email"`
	Next            string `json:"next"`
	StagingDegraded bool   `json:"staging_degraded"`
	DocumentDropped bool   `json:"document_dropped"`
}

// Completion is returned once the account exists.
type Completion struct {
	IdentityID    string `json:"identity_id"`
	AccountNumber string `json:"account_number"`
	DisplayName   string `json:"display_name"`
	Role          string `json:"role"`
	Next          string `json:"next"`
}

// Service drives signup from form submission to a provisioned account.
type Service struct {
	creds    CredentialStore
	primary  staging.Store
	cache    staging.Store
	prov     Provisioner
	notifier WelcomeNotifier
	metrics  *metrics.Signup
	opts     Options
	logger   *slog.Logger

	notifications sync.WaitGroup
}

// NewService wires the orchestrator. cache and m may be nil.
func NewService(creds CredentialStore, primary, cache staging.Store, prov Provisioner, notifier WelcomeNotifier,
	m *metrics.Signup, opts Options, logger *slog.Logger) *Service {
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 30 * time.Second
	}
	return &Service{
		creds:    creds,
		primary:  primary,
		cache:    cache,
		prov:     prov,
		notifier: notifier,
		metrics:  m,
		opts:     opts,
		logger:   logging.OrDiscard(logger),
	}
}

// BeginSignup validates the form, creates or resumes the identity, stages the
// form and sends a confirmation code. A failed staging write degrades to the
// cache tier without the document instead of aborting.
func (s *Service) BeginSignup(ctx context.Context, form customer.Form) (BeginResult, error) {
	if err := form.Validate(s.opts.PasswordPolicy); err != nil {
		s.metrics.Begin(metrics.OutcomeInvalid)
		return BeginResult{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	ident, err := s.creds.CreateIdentity(ctx, form.Email, form.Password)
	if errors.Is(err, identity.ErrEmailTaken) {
		s.metrics.Begin(metrics.OutcomeDuplicate)
		return BeginResult{}, ErrDuplicateAccount
	}
	if err != nil {
		s.metrics.Begin(metrics.OutcomeError)
		return BeginResult{}, fmt.Errorf("create identity: %w", err)
	}

	staged := form.WithoutSecrets()
	staged.Email = ident.Email
	result := BeginResult{IdentityID: ident.ID, Email: ident.Email, Next: NextConfirmCode}

	if err := s.primary.Upsert(ctx, staging.PendingSignup{IdentityID: ident.ID, Form: staged}); err != nil {
		s.logger.Warn("staging write failed, using cache tier", "identity_id", ident.ID, "error", err)
		result.StagingDegraded = true
		result.DocumentDropped = staged.Document != nil
		s.stageReduced(ctx, ident.ID, staged)
	}

	if err := s.creds.SendConfirmationCode(ctx, ident.ID); err != nil {
		// A resumed signup may still be inside the resend window; the
		// earlier code stays valid and the user can ask for another.
		if !errors.Is(err, identity.ErrResendTooSoon) {
			s.logger.Warn("confirmation code not sent", "identity_id", ident.ID, "error", err)
		}
	}

	if result.StagingDegraded {
		s.metrics.Begin(metrics.OutcomeDegraded)
	} else {
		s.metrics.Begin(metrics.OutcomeOK)
	}
	return result, nil
}

func (s *Service) stageReduced(ctx context.Context, identityID string, form customer.Form) {
	if s.cache == nil {
		s.logger.Error("no cache tier, signup data lost", "identity_id", identityID)
		return
	}
	reduced := staging.PendingSignup{
		IdentityID:      identityID,
		Form:            form.WithoutDocument(),
		DocumentOmitted: form.Document != nil,
	}
	if err := s.cache.Upsert(ctx, reduced); err != nil {
		s.logger.Error("cache tier write failed, signup data lost", "identity_id", identityID, "error", err)
	}
}

// ConfirmSignup verifies the code and provisions the account from the staged
// form. No profile is created when the staged form cannot be found.
func (s *Service) ConfirmSignup(ctx context.Context, identityID, code string) (Completion, error) {
	if _, err := s.creds.VerifyCode(ctx, identityID, code); err != nil {
		err = mapCredentialError(err)
		s.metrics.Confirm(confirmOutcome(err))
		return Completion{}, err
	}

	pending, err := s.loadStaged(ctx, identityID)
	if err != nil {
		s.metrics.Confirm(metrics.OutcomeStagingMissing)
		return Completion{}, err
	}

	completion, err := s.finish(ctx, identityID, pending.Form)
	if err != nil {
		s.metrics.Confirm(metrics.OutcomeIncomplete)
		return Completion{}, err
	}
	s.metrics.Confirm(metrics.OutcomeOK)
	return completion, nil
}

// ResendCode issues a new code for an unconfirmed identity.
func (s *Service) ResendCode(ctx context.Context, identityID string) error {
	return mapCredentialError(s.creds.SendConfirmationCode(ctx, identityID))
}

// CompleteProvisioning is the manual completion path for a confirmed identity.
// It finishes a missing or interrupted profile from the staged form, falling
// back to form, and attaches a re-collected document to a profile without one.
// Repeated calls return the same account.
func (s *Service) CompleteProvisioning(ctx context.Context, identityID string, form *customer.Form) (Completion, error) {
	ident, err := s.creds.FindByID(ctx, identityID)
	if err != nil {
		return Completion{}, mapCredentialError(err)
	}
	if !ident.Confirmed() {
		return Completion{}, ErrNotConfirmed
	}

	_, err = s.prov.Get(ctx, identityID)
	hasProfile := err == nil
	if err != nil && !errors.Is(err, provisioning.ErrNotFound) {
		return Completion{}, &ProvisioningIncompleteError{IdentityID: identityID, Err: err}
	}

	var source customer.Form
	pending, err := s.loadStaged(ctx, identityID)
	switch {
	case err == nil:
		source = pending.Form
		if form != nil && source.Document == nil && form.Document != nil {
			source.Document = form.Document
		}
	case form != nil:
		source = *form
		source.Email = ident.Email
		if !hasProfile {
			if err := source.ValidateProfile(); err != nil {
				return Completion{}, fmt.Errorf("%w: %w", ErrValidation, err)
			}
		}
	case hasProfile:
		// The existing row wins over any form fields.
		source = customer.Form{Email: ident.Email}
	default:
		return Completion{}, err
	}
	return s.finish(ctx, identityID, source)
}

// loadStaged returns the most recently written record of the two tiers.
func (s *Service) loadStaged(ctx context.Context, identityID string) (staging.PendingSignup, error) {
	pending, err := s.primary.Get(ctx, identityID)
	found := err == nil
	if err != nil && !errors.Is(err, staging.ErrNotFound) {
		s.logger.Warn("staging read failed", "identity_id", identityID, "error", err)
	}
	if s.cache != nil {
		cached, cacheErr := s.cache.Get(ctx, identityID)
		switch {
		case cacheErr == nil:
			if !found || cached.UpdatedAt.After(pending.UpdatedAt) {
				return cached, nil
			}
		case !errors.Is(cacheErr, staging.ErrNotFound):
			s.logger.Warn("cache tier read failed", "identity_id", identityID, "error", cacheErr)
		}
	}
	if found {
		return pending, nil
	}
	return staging.PendingSignup{}, ErrStagingMissing
}

// finish provisions, removes the staged form and sends the welcome mail.
func (s *Service) finish(ctx context.Context, identityID string, form customer.Form) (Completion, error) {
	res, err := s.prov.Provision(ctx, identityID, form)
	if err != nil {
		s.metrics.Provisioning(metrics.OutcomeFailed)
		s.logger.Error("provisioning incomplete", "identity_id", identityID, "error", err)
		return Completion{}, &ProvisioningIncompleteError{IdentityID: identityID, Err: err}
	}
	if res.Created {
		s.metrics.Provisioning(metrics.OutcomeCreated)
	} else {
		s.metrics.Provisioning(metrics.OutcomeExisting)
	}

	s.cleanup(ctx, identityID)
	if res.Completed {
		s.notifyAsync(ctx, identityID, res.AccountNumber, res.Profile.DisplayName)
	}
	return completionFor(res.Profile), nil
}

func (s *Service) cleanup(ctx context.Context, identityID string) {
	if err := s.primary.Delete(ctx, identityID); err != nil {
		s.logger.Warn("staged signup not deleted", "identity_id", identityID, "error", err)
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, identityID); err != nil {
			s.logger.Warn("cached signup not deleted", "identity_id", identityID, "error", err)
		}
	}
}

// notifyAsync makes one welcome mail attempt off the request path. Failures
// are logged only.
func (s *Service) notifyAsync(ctx context.Context, identityID, accountNumber, displayName string) {
	if s.notifier == nil {
		return
	}
	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.NotifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(nctx, identityID, accountNumber, displayName); err != nil {
			s.metrics.Notification(metrics.OutcomeFailed)
			s.logger.Warn("welcome notification failed", "identity_id", identityID, "error", err)
			return
		}
		s.metrics.Notification(metrics.OutcomeOK)
	}()
}

// Wait blocks until in-flight welcome notifications finish.
func (s *Service) Wait() {
	s.notifications.Wait()
}

func completionFor(p customer.Profile) Completion {
	return Completion{
		IdentityID:    p.IdentityID,
		AccountNumber: p.AccountNumber,
		DisplayName:   p.DisplayName,
		Role:          p.Role,
		Next:          NextDashboard,
	}
}

func mapCredentialError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, identity.ErrCodeMismatch):
		return ErrInvalidCode
	case errors.Is(err, identity.ErrCodeExpired):
		return ErrExpiredCode
	case errors.Is(err, identity.ErrResendTooSoon):
		return ErrRateLimited
	case errors.Is(err, identity.ErrNotFound):
		return ErrUnknownIdentity
	case errors.Is(err, identity.ErrAlreadyConfirmed):
		return ErrAlreadyConfirmed
	default:
		return err
	}
}

func confirmOutcome(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCode):
		return metrics.OutcomeInvalidCode
	case errors.Is(err, ErrExpiredCode):
		return metrics.OutcomeExpiredCode
	default:
		return metrics.OutcomeError
	}
}

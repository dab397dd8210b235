package signup

import (
	"errors"
	"fmt"

	"github.com/lumenbank/onboarding/internal/provisioning"
)

// WarningStagingDegraded accompanies a successful BeginSignup whose form only
// reached the ephemeral tier. Any document must be re-collected.
const WarningStagingDegraded = "signup data stored in degraded mode; upload the identity document again after confirming"

var (
	// ErrValidation wraps a *customer.ValidationError for a rejected form.
	ErrValidation = errors.New("signup form invalid")
	// ErrDuplicateAccount means a confirmed identity already owns the email.
	ErrDuplicateAccount = errors.New("an account with this email already exists")
	// ErrInvalidCode means the confirmation code did not match.
	ErrInvalidCode = errors.New("confirmation code is invalid")
	// ErrExpiredCode means the code expired, was used up or was never issued.
	ErrExpiredCode = errors.New("confirmation code has expired")
	// ErrStagingMissing means no staged form exists for a confirmed identity.
	// The profile has to be completed manually.
	ErrStagingMissing = errors.New("no staged signup data for identity")
	// ErrProvisioningFailed is the provisioner's terminal failure.
	ErrProvisioningFailed = provisioning.ErrProvisioningFailed
	// ErrProvisioningIncomplete means the identity is confirmed but has no profile.
	ErrProvisioningIncomplete = errors.New("identity confirmed but account not provisioned")
	// ErrRateLimited means a new code was requested too soon.
	ErrRateLimited = errors.New("too many confirmation code requests")
	// ErrUnknownIdentity means the identity id does not exist.
	ErrUnknownIdentity = errors.New("unknown identity")
	// ErrAlreadyConfirmed means the identity was confirmed earlier.
	ErrAlreadyConfirmed = errors.New("identity already confirmed")
	// ErrNotConfirmed means the identity has not verified its email yet.
	ErrNotConfirmed = errors.New("identity not confirmed")
)

// ProvisioningIncompleteError carries the identity that was confirmed without
// getting a profile, so the caller can route to manual completion.
type ProvisioningIncompleteError struct {
	IdentityID string
	Err        error
}

func (e *ProvisioningIncompleteError) Error() string {
	return fmt.Sprintf("%s (identity %s): %v", ErrProvisioningIncomplete, e.IdentityID, e.Err)
}

// Unwrap exposes both ErrProvisioningIncomplete and the underlying cause.
func (e *ProvisioningIncompleteError) Unwrap() []error {
	return []error{ErrProvisioningIncomplete, e.Err}
}

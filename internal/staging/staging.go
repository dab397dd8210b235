package staging

import (
	"context"
	"errors"
	"time"

	"github.com/lumenbank/onboarding/internal/customer"
)

// ErrNotFound is returned when no pending signup exists for an identity.
var ErrNotFound = errors.New("pending signup not found")

// PendingSignup is the form captured before an identity is confirmed. There is
// at most one per identity.
type PendingSignup struct {
	IdentityID string        `json:"identity_id"`
	Form       customer.Form `json:"form"`
	// DocumentOmitted is set when the identity document was dropped and has to
	// be collected again.
	DocumentOmitted bool      `json:"document_omitted"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Store is a keyed pending-signup store.
type Store interface {
	Upsert(ctx context.Context, pending PendingSignup) error
	Get(ctx context.Context, identityID string) (PendingSignup, error)
	// Delete is idempotent.
	Delete(ctx context.Context, identityID string) error
}

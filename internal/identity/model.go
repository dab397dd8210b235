package identity

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no identity or code matches the lookup.
	ErrNotFound = errors.New("identity not found")
	// ErrEmailTaken is returned when a confirmed identity already owns the email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrAlreadyConfirmed is returned for code operations on a confirmed identity.
	ErrAlreadyConfirmed = errors.New("identity already confirmed")
	// ErrNotConfirmed is returned when a confirmed identity is required.
	ErrNotConfirmed = errors.New("identity not confirmed")
	// ErrCodeMismatch is returned when a submitted code does not match.
	ErrCodeMismatch = errors.New("confirmation code does not match")
	// ErrCodeExpired covers missing, expired and exhausted codes.
	ErrCodeExpired = errors.New("confirmation code expired")
	// ErrResendTooSoon is returned while the resend cooldown is running.
	ErrResendTooSoon = errors.New("confirmation code resent too soon")
	// ErrInvalidCredentials is returned on a failed sign-in.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Identity is a registered login. It starts unconfirmed and is confirmed by a
// one-time code sent to Email.
type Identity struct {
	ID           string
	Email        string
	PasswordHash []byte
	ConfirmedAt  *time.Time
	TokenVersion int
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Confirmed reports whether the identity has verified its email.
func (i Identity) Confirmed() bool {
	return i.ConfirmedAt != nil
}

// ConfirmationCode is the stored form of a one-time code. Only the bcrypt
// hash of the code is kept.
type ConfirmationCode struct {
	IdentityID string
	CodeHash   []byte
	Attempts   int
	ExpiresAt  time.Time
	SentAt     time.Time
}

package notification

import (
	"context"
	"fmt"
)

// Directory resolves the mail address of an identity.
type Directory interface {
	EmailFor(ctx context.Context, identityID string) (string, error)
}

// Dispatcher sends the welcome mail after an account has been provisioned.
type Dispatcher struct {
	directory Directory
	notifier  Notifier
}

// NewDispatcher builds a welcome-mail dispatcher.
func NewDispatcher(directory Directory, notifier Notifier) *Dispatcher {
	return &Dispatcher{directory: directory, notifier: notifier}
}

// Notify makes exactly one delivery attempt. The error is returned for the
// caller to log; it is never retried here.
func (d *Dispatcher) Notify(ctx context.Context, identityID, accountNumber, displayName string) error {
	email, err := d.directory.EmailFor(ctx, identityID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}
	return d.notifier.Send(ctx, Message{
		Kind:        KindWelcome,
		Destination: email,
		Template:    KindWelcome,
		Variables: map[string]string{
			"display_name":   displayName,
			"account_number": accountNumber,
		},
	})
}

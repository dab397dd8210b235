package ledger

import (
	"context"
	"errors"
)

// ErrAccountNotFound is returned when no ledger account has the given code.
var ErrAccountNotFound = errors.New("ledger account not found")

// AccountCode is the ledger code of a customer account.
func AccountCode(accountNumber string) string {
	return "account:" + accountNumber
}

// Ledger defines the contract implemented by ledger backends (e.g. Postgres).
// Balances are in minor units.
type Ledger interface {
	EnsureAccount(ctx context.Context, code string) error
	Balance(ctx context.Context, code string) (int64, error)
}

package customer

import (
	"regexp"
	"strings"
	"time"
)

// Roles attached to a profile at provisioning time.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Account types a new customer may ask for.
const (
	AccountTypeChecking = "checking"
	AccountTypeSavings  = "savings"
)

// AccountNumberLength is the fixed width of every generated account number.
const AccountNumberLength = 12

var accountNumberPattern = regexp.MustCompile(`^\d{12}$`)

// ValidAccountNumber reports whether s has the fixed account number format.
func ValidAccountNumber(s string) bool {
	return accountNumberPattern.MatchString(s)
}

// NormalizeAccountType maps a requested account type onto a supported one,
// falling back to def for empty or unknown values.
func NormalizeAccountType(requested, def string) string {
	switch strings.ToLower(strings.TrimSpace(requested)) {
	case AccountTypeChecking:
		return AccountTypeChecking
	case AccountTypeSavings:
		return AccountTypeSavings
	}
	if def == AccountTypeSavings {
		return AccountTypeSavings
	}
	return AccountTypeChecking
}

// Address is a postal address captured at signup.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Form is everything the signup screen collects before the identity is confirmed.
type Form struct {
	Email           string    `json:"email"`
	Password        string    `json:"password,omitempty"`
	ConfirmPassword string    `json:"confirm_password,omitempty"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	DateOfBirth     string    `json:"date_of_birth,omitempty"`
	Address         Address   `json:"address"`
	AccountType     string    `json:"account_type,omitempty"`
	Document        *Document `json:"document,omitempty"`
}

// DisplayName is the name shown on the dashboard and in the welcome mail.
func (f Form) DisplayName() string {
	return strings.TrimSpace(strings.TrimSpace(f.FirstName) + " " + strings.TrimSpace(f.LastName))
}

// WithoutSecrets drops the password fields. Staged forms never carry them.
func (f Form) WithoutSecrets() Form {
	f.Password = ""
	f.ConfirmPassword = ""
	return f
}

// WithoutDocument returns a copy with the identity document removed.
func (f Form) WithoutDocument() Form {
	f.Document = nil
	return f
}

// Profile is the provisioned customer record, one per identity.
type Profile struct {
	IdentityID    string
	Email         string
	FirstName     string
	LastName      string
	DisplayName   string
	Phone         string
	DateOfBirth   string
	Address       Address
	AccountType   string
	AccountNumber string
	Role          string
	DocumentKey   string
	CreatedAt     time.Time
	// CompletedAt is set once the ledger account is open. Nil means a
	// provisioning call was interrupted after the profile row was written.
	CompletedAt *time.Time
}

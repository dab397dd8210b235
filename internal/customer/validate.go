package customer

import (
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"
	"unicode"
)

// DefaultMinPasswordLength is used when a PasswordPolicy leaves MinLength unset.
const DefaultMinPasswordLength = 8

// PasswordPolicy describes the minimum length and character classes a password needs.
type PasswordPolicy struct {
	MinLength int
}

// ValidationError lists form fields that failed validation, keyed by JSON field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid signup form: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate checks a full signup form, password included.
func (f Form) Validate(policy PasswordPolicy) error {
	verr := &ValidationError{}
	f.validateProfileFields(verr)

	if f.Password == "" {
		verr.add("password", "is required")
	} else if err := policy.Check(f.Password); err != nil {
		verr.add("password", err.Error())
	}
	if f.ConfirmPassword != "" && f.ConfirmPassword != f.Password {
		verr.add("confirm_password", "does not match password")
	}
	return verr.orNil()
}

// ValidateProfile checks a form submitted on the manual completion path, where
// the identity already exists and no password is collected.
func (f Form) ValidateProfile() error {
	verr := &ValidationError{}
	f.validateProfileFields(verr)
	return verr.orNil()
}

func (f Form) validateProfileFields(verr *ValidationError) {
	email := strings.TrimSpace(f.Email)
	if email == "" {
		verr.add("email", "is required")
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		verr.add("email", "is not a valid address")
	}
	if strings.TrimSpace(f.FirstName) == "" {
		verr.add("first_name", "is required")
	}
	if f.DateOfBirth != "" {
		if _, err := time.Parse(time.DateOnly, f.DateOfBirth); err != nil {
			verr.add("date_of_birth", "must be YYYY-MM-DD")
		}
	}
	if f.Document != nil {
		if _, err := f.Document.Decode(); err != nil {
			verr.add("document", "is not valid base64")
		}
	}
}

// Check returns an error describing the first rule password breaks.
func (p PasswordPolicy) Check(password string) error {
	minLen := p.MinLength
	if minLen <= 0 {
		minLen = DefaultMinPasswordLength
	}
	if len([]rune(password)) < minLen {
		return fmt.Errorf("must be at least %d characters", minLen)
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	switch {
	case !upper:
		return fmt.Errorf("must contain an upper-case letter")
	case !lower:
		return fmt.Errorf("must contain a lower-case letter")
	case !digit:
		return fmt.Errorf("must contain a digit")
	case !symbol:
		return fmt.Errorf("must contain a symbol")
	}
	return nil
}

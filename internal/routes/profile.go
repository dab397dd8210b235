package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/lumenbank/onboarding/internal/auth"
	"github.com/lumenbank/onboarding/internal/customer"
	"github.com/lumenbank/onboarding/internal/ledger"
	"github.com/lumenbank/onboarding/internal/provisioning"
	"github.com/lumenbank/onboarding/internal/signup"
)

// ProfileReader loads provisioned profiles.
type ProfileReader interface {
	Get(ctx context.Context, identityID string) (customer.Profile, error)
}

// RegisterProfileRoutes exposes the signed-in customer's profile and balance.
func RegisterProfileRoutes(r fiber.Router, profiles ProfileReader, balances ledger.Ledger) {
	r.Get("/me", func(c *fiber.Ctx) error {
		identityID := auth.IdentityFrom(c)
		if identityID == "" {
			return fiber.NewError(http.StatusUnauthorized, "unauthorized")
		}
		p, err := profiles.Get(c.UserContext(), identityID)
		if errors.Is(err, provisioning.ErrNotFound) {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{
				"error": "profile not provisioned",
				"next":  signup.NextCompleteProfile,
			})
		}
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}

		minor, err := balances.Balance(c.UserContext(), ledger.AccountCode(p.AccountNumber))
		if err != nil && !errors.Is(err, ledger.ErrAccountNotFound) {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"identity_id":    p.IdentityID,
			"email":          p.Email,
			"first_name":     p.FirstName,
			"last_name":      p.LastName,
			"display_name":   p.DisplayName,
			"phone":          p.Phone,
			"date_of_birth":  p.DateOfBirth,
			"address":        p.Address,
			"account_type":   p.AccountType,
			"account_number": p.AccountNumber,
			"role":           p.Role,
			"created_at":     p.CreatedAt,
			"balance":        decimal.New(minor, -2).StringFixed(2),
		})
	})
}

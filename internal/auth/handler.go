package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/lumenbank/onboarding/internal/identity"
)

// Authenticator checks email and password.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (identity.Identity, error)
}

// Handler exposes auth endpoints for login/refresh/logout.
type Handler struct {
	ids Authenticator
	svc *Service
}

func NewHandler(ids Authenticator, svc *Service) *Handler {
	return &Handler{ids: ids, svc: svc}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	IdentityID   string `json:"identity_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Role         string `json:"role,omitempty"`
	Next         string `json:"next"`
}

// Login validates credentials and returns a token pair. Identities without a
// profile are sent to profile completion.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	ident, err := h.ids.SignIn(c.UserContext(), req.Email, req.Password)
	switch {
	case errors.Is(err, identity.ErrNotConfirmed):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case err != nil:
		return fiber.NewError(http.StatusUnauthorized, identity.ErrInvalidCredentials.Error())
	}
	pair, role, err := h.svc.Login(c.UserContext(), ident)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	next := "dashboard"
	if role == "" {
		next = "complete_profile"
	}
	return c.Status(http.StatusOK).JSON(loginResponse{
		IdentityID:   ident.ID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		Role:         role,
		Next:         next,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh issues a new access token using a valid refresh token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	token, exp, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"access_token": token, "expires_in": exp})
}

// Logout invalidates existing tokens of the caller by bumping the token version.
func (h *Handler) Logout(c *fiber.Ctx) error {
	identityID := IdentityFrom(c)
	if identityID == "" {
		return c.SendStatus(http.StatusUnauthorized)
	}
	if err := h.svc.Logout(c.UserContext(), identityID); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}

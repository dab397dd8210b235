package signup

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/lumenbank/onboarding/internal/auth"
	"github.com/lumenbank/onboarding/internal/customer"
)

// Handler exposes the signup flow over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler constructs a signup HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type beginResponse struct {
	BeginResult
	Warning string `json:"warning,omitempty"`
}

// Begin handles POST /signup.
func (h *Handler) Begin(c *fiber.Ctx) error {
	var form customer.Form
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.BeginSignup(c.UserContext(), form)
	if err != nil {
		return writeError(c, err)
	}
	out := beginResponse{BeginResult: res}
	if res.StagingDegraded {
		out.Warning = WarningStagingDegraded
	}
	return c.Status(http.StatusAccepted).JSON(out)
}

type confirmRequest struct {
	IdentityID string `json:"identity_id"`
	Code       string `json:"code"`
}

// Confirm handles POST /signup/confirm.
func (h *Handler) Confirm(c *fiber.Ctx) error {
	var req confirmRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	req.IdentityID = strings.TrimSpace(req.IdentityID)
	req.Code = strings.TrimSpace(req.Code)
	if req.IdentityID == "" || req.Code == "" {
		return fiber.NewError(http.StatusBadRequest, "identity_id and code are required")
	}
	done, err := h.svc.ConfirmSignup(c.UserContext(), req.IdentityID, req.Code)
	if err != nil {
		return writeError(c, err, req.IdentityID)
	}
	return c.Status(http.StatusOK).JSON(done)
}

type resendRequest struct {
	IdentityID string `json:"identity_id"`
}

// Resend handles POST /signup/resend.
func (h *Handler) Resend(c *fiber.Ctx) error {
	var req resendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.IdentityID) == "" {
		return fiber.NewError(http.StatusBadRequest, "identity_id is required")
	}
	if err := h.svc.ResendCode(c.UserContext(), req.IdentityID); err != nil {
		return writeError(c, err, req.IdentityID)
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"status": "sent", "next": NextConfirmCode})
}

// Complete handles POST /signup/complete for a signed-in identity. The body is
// optional and only used when no staged form is left.
func (h *Handler) Complete(c *fiber.Ctx) error {
	identityID := auth.IdentityFrom(c)
	if identityID == "" {
		return c.SendStatus(http.StatusUnauthorized)
	}
	var form *customer.Form
	if len(c.Body()) > 0 {
		form = &customer.Form{}
		if err := c.BodyParser(form); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	done, err := h.svc.CompleteProvisioning(c.UserContext(), identityID, form)
	if err != nil {
		return writeError(c, err, identityID)
	}
	return c.Status(http.StatusOK).JSON(done)
}

type errorResponse struct {
	Error      string            `json:"error"`
	Code       string            `json:"code"`
	Next       string            `json:"next,omitempty"`
	IdentityID string            `json:"identity_id,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// writeError maps the signup error taxonomy onto HTTP responses.
func writeError(c *fiber.Ctx, err error, identityID ...string) error {
	resp := errorResponse{Error: err.Error()}
	if len(identityID) > 0 {
		resp.IdentityID = identityID[0]
	}

	var (
		status     int
		verr       *customer.ValidationError
		incomplete *ProvisioningIncompleteError
	)
	switch {
	case errors.As(err, &verr):
		status, resp.Code, resp.Fields = http.StatusBadRequest, "validation_failed", verr.Fields
	case errors.Is(err, ErrDuplicateAccount):
		status, resp.Code, resp.Next = http.StatusConflict, "duplicate_account", NextSignIn
	case errors.Is(err, ErrInvalidCode):
		status, resp.Code, resp.Next = http.StatusUnprocessableEntity, "invalid_code", NextResendCode
	case errors.Is(err, ErrExpiredCode):
		status, resp.Code, resp.Next = http.StatusGone, "expired_code", NextResendCode
	case errors.Is(err, ErrStagingMissing):
		status, resp.Code, resp.Next = http.StatusConflict, "staging_missing", NextCompleteProfile
	case errors.As(err, &incomplete):
		status, resp.Code, resp.Next = http.StatusServiceUnavailable, "provisioning_incomplete", NextCompleteProfile
		resp.IdentityID = incomplete.IdentityID
		// Internal causes stay in the logs.
		resp.Error = ErrProvisioningIncomplete.Error()
	case errors.Is(err, ErrRateLimited):
		status, resp.Code = http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, ErrUnknownIdentity):
		status, resp.Code = http.StatusNotFound, "unknown_identity"
	case errors.Is(err, ErrAlreadyConfirmed):
		status, resp.Code, resp.Next = http.StatusConflict, "already_confirmed", NextSignIn
	case errors.Is(err, ErrNotConfirmed):
		status, resp.Code, resp.Next = http.StatusForbidden, "not_confirmed", NextConfirmCode
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(status).JSON(resp)
}

package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lumenbank/onboarding/internal/signup"
)

// SignupGuards are the per-route middlewares of the signup flow. Nil guards are skipped.
type SignupGuards struct {
	Begin       fiber.Handler
	Resend      fiber.Handler
	Auth        fiber.Handler
	Idempotency fiber.Handler
}

// RegisterSignupRoutes wires the signup endpoints.
func RegisterSignupRoutes(r fiber.Router, h *signup.Handler, g SignupGuards) {
	r.Post("/signup", chain(h.Begin, g.Begin)...)
	r.Post("/signup/confirm", h.Confirm)
	r.Post("/signup/resend", chain(h.Resend, g.Resend)...)
	r.Post("/signup/complete", chain(h.Complete, g.Auth, g.Idempotency)...)
}

func chain(h fiber.Handler, guards ...fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(guards)+1)
	for _, g := range guards {
		if g != nil {
			out = append(out, g)
		}
	}
	return append(out, h)
}

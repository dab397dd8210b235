package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lumenbank/onboarding/internal/auth"
)

// RegisterAuthRoutes wires authentication endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter, jwtmw fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/login", chain(h.Login, rateLimiter)...)
	group.Post("/refresh", h.Refresh)
	group.Post("/logout", chain(h.Logout, jwtmw)...)
}

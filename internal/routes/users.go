package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/safetext/internal/identity"
)

// RegisterUserRoutes wires read-only user directory endpoints.
func RegisterUserRoutes(r fiber.Router, h *identity.Handler) {
	r.Get("/users/:phone", h.Get)
	r.Get("/users/:phone/activity", h.Activity)
}

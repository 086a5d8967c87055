package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/safetext/internal/messages"
)

// RegisterMessageRoutes wires message log inspection and manual sends.
func RegisterMessageRoutes(r fiber.Router, h *messages.Handler, sendLimit fiber.Handler) {
	r.Get("/messages", h.List)
	r.Get("/messages/phone/:phone", h.ByPhone)
	r.Post("/messages/send", sendLimit, h.Send)
}

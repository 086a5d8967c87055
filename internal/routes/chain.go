package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/safetext/internal/wallet"
)

// RegisterChainRoutes wires chain inspection endpoints.
func RegisterChainRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/chain/block-number", h.BlockNumber)
	r.Get("/chain/balance/:address", h.Balance)
}

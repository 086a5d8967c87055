package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/safetext/internal/ledger"
)

// Handler exposes read-only user directory endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type userResponse struct {
	Phone        string `json:"phone"`
	OwnerAddress string `json:"owner_address"`
	SafeAddress  string `json:"safe_address"`
	DeployedBy   string `json:"deployed_by"`
	CreatedAt    string `json:"created_at"`
}

// Get returns the registration for a phone number. Key material is never
// included.
func (h *Handler) Get(c *fiber.Ctx) error {
	user, err := h.service.Lookup(c.UserContext(), c.Params("phone"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	}
	return c.Status(http.StatusOK).JSON(userResponse{
		Phone:        user.Phone,
		OwnerAddress: user.OwnerAddress.Hex(),
		SafeAddress:  user.WalletAddress.Hex(),
		DeployedBy:   user.DeployedBy.Hex(),
		CreatedAt:    user.CreatedAt.Format(time.RFC3339),
	})
}

// Activity lists relayed transactions for a phone number.
func (h *Handler) Activity(c *fiber.Ctx) error {
	phone := c.Params("phone")
	entries, err := h.service.journal.ListByPhone(c.UserContext(), phone, c.QueryInt("limit", 50))
	if err != nil {
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"phone": phone, "entries": entries})
}

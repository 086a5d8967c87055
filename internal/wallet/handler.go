package wallet

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/safetext/internal/ledger"
)

// Handler exposes chain inspection endpoints.
type Handler struct {
	service *Service
	ledger  ledger.Ledger
}

// NewHandler builds a chain HTTP handler.
func NewHandler(service *Service, l ledger.Ledger) *Handler {
	return &Handler{service: service, ledger: l}
}

type balanceResponse struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Amount  string `json:"amount"`
	Raw     string `json:"raw"`
}

func toResponse(b Balance) balanceResponse {
	return balanceResponse{Address: b.Address.Hex(), Symbol: b.Symbol, Amount: b.Amount.String(), Raw: b.Raw.String()}
}

// BlockNumber returns the latest block number.
func (h *Handler) BlockNumber(c *fiber.Ctx) error {
	n, err := h.ledger.BlockNumber(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusBadGateway, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"block_number": n})
}

// Balance returns native and token balances for an address.
func (h *Handler) Balance(c *fiber.Ctx) error {
	raw := c.Params("address")
	if !common.IsHexAddress(raw) {
		return fiber.NewError(http.StatusBadRequest, "invalid address")
	}
	address := common.HexToAddress(raw)

	native, err := h.service.NativeBalance(c.UserContext(), address)
	if err != nil {
		return fiber.NewError(http.StatusBadGateway, err.Error())
	}
	token, err := h.service.TokenBalance(c.UserContext(), address)
	if err != nil {
		return fiber.NewError(http.StatusBadGateway, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"native": toResponse(native),
		"token":  toResponse(token),
	})
}

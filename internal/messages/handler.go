package messages

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/safetext/internal/notification"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]+$`)

const invalidPhone = "Invalid phone number format. Use international format with + prefix."

// ValidPhone reports whether phone is digits with an optional leading +.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// Log is the read side of the message log used by the handler.
type Log interface {
	Recent(ctx context.Context, limit, offset int) ([]Message, error)
	ByPhone(ctx context.Context, phone string) ([]Message, error)
}

// Handler exposes message log inspection and manual sends.
type Handler struct {
	log      Log
	notifier notification.Notifier
}

// NewHandler constructs a messages handler.
func NewHandler(log Log, notifier notification.Notifier) *Handler {
	return &Handler{log: log, notifier: notifier}
}

type contactResponse struct {
	Name *string `json:"name"`
}

type messageResponse struct {
	ID          int64           `json:"id"`
	Timestamp   int64           `json:"timestamp"`
	Date        string          `json:"date"`
	Text        *string         `json:"text"`
	PhoneNumber *string         `json:"phoneNumber"`
	Direction   string          `json:"direction"`
	Contact     contactResponse `json:"contact"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func format(rows []Message, direction string) []messageResponse {
	out := make([]messageResponse, 0, len(rows))
	for _, m := range rows {
		if (direction == Incoming || direction == Outgoing) && m.Direction() != direction {
			continue
		}
		out = append(out, messageResponse{
			ID:          m.ID,
			Timestamp:   m.Timestamp,
			Date:        m.Date().Format(time.RFC3339),
			Text:        optional(m.Text),
			PhoneNumber: optional(m.Phone),
			Direction:   m.Direction(),
			Contact:     contactResponse{Name: optional(m.Contact)},
		})
	}
	return out
}

func unavailable(err error) error {
	if errors.Is(err, ErrUnavailable) {
		return fiber.NewError(http.StatusInternalServerError, "message database not found")
	}
	return fiber.NewError(http.StatusInternalServerError, err.Error())
}

// List returns a page of the log, newest first.
func (h *Handler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	if limit <= 0 {
		limit = 100
	}
	page := c.QueryInt("page", 1)
	if page <= 0 {
		page = 1
	}

	rows, err := h.log.Recent(c.UserContext(), limit, (page-1)*limit)
	if err != nil {
		return unavailable(err)
	}
	data := format(rows, c.Query("direction"))
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"count":   len(data),
		"page":    page,
		"limit":   limit,
		"data":    data,
	})
}

// ByPhone returns the conversation with one phone number, oldest first.
func (h *Handler) ByPhone(c *fiber.Ctx) error {
	phone := c.Params("phone")
	if !ValidPhone(phone) {
		return fiber.NewError(http.StatusBadRequest, invalidPhone)
	}

	rows, err := h.log.ByPhone(c.UserContext(), phone)
	if err != nil {
		return unavailable(err)
	}
	data := format(rows, c.Query("direction"))
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"count":   len(data),
		"data":    data,
	})
}

type sendRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

// Send delivers an operator-written message through the outbound channel.
func (h *Handler) Send(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.PhoneNumber == "" || req.Message == "" {
		return fiber.NewError(http.StatusBadRequest, "Phone number and message are required")
	}
	if !ValidPhone(req.PhoneNumber) {
		return fiber.NewError(http.StatusBadRequest, invalidPhone)
	}

	// The UI automation types the body, so a newline would send early.
	body := strings.ReplaceAll(req.Message, "\n", " ")

	if err := h.notifier.Send(c.UserContext(), notification.Message{
		Kind:        notification.KindManual,
		Destination: req.PhoneNumber,
		Body:        body,
	}); err != nil {
		return fiber.NewError(http.StatusBadGateway, err.Error())
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"phoneNumber": req.PhoneNumber,
			"message":     body,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		},
	})
}

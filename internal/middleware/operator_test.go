package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/safetext/internal/auth"
)

func TestOperatorAuth(t *testing.T) {
	issuer, err := auth.NewIssuer("operator-secret", time.Hour)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	token, _, err := issuer.Issue("ops")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	app := fiber.New()
	app.Use(RequestID(), OperatorAuth(issuer))
	app.Get("/whoami", func(c *fiber.Ctx) error { return c.SendString(Operator(c)) })

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"garbage", "Bearer nope", fiber.StatusUnauthorized},
		{"valid", "Bearer " + token, fiber.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
			if tc.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tc.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d got %d", tc.status, resp.StatusCode)
			}
			if resp.Header.Get(requestIDHeader) == "" {
				t.Fatal("expected request id header")
			}
		})
	}
}

func TestOperatorAuthDisabledWithoutIssuer(t *testing.T) {
	app := fiber.New()
	app.Use(OperatorAuth(nil))
	app.Get("/open", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/open", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected %d got %d", fiber.StatusNoContent, resp.StatusCode)
	}
}

func TestSendRateLimitPerPhone(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	app := fiber.New()
	app.Post("/send", SendRateLimit(cache, 2), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusCreated) })

	send := func(phone string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/send", strings.NewReader(`{"phoneNumber":"`+phone+`","message":"hi"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp.StatusCode
	}

	for i := 0; i < 2; i++ {
		if got := send("+15550001"); got != fiber.StatusCreated {
			t.Fatalf("request %d: expected %d got %d", i, fiber.StatusCreated, got)
		}
	}
	if got := send("+15550001"); got != fiber.StatusTooManyRequests {
		t.Fatalf("expected %d got %d", fiber.StatusTooManyRequests, got)
	}
	if got := send("+15550002"); got != fiber.StatusCreated {
		t.Fatalf("other phone should not be limited, got %d", got)
	}

	mr.FastForward(time.Minute + time.Second)
	if got := send("+15550001"); got != fiber.StatusCreated {
		t.Fatalf("expected window to reset, got %d", got)
	}
}

package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

const healthTimeout = 2 * time.Second

// RegisterHealthRoutes adds a readiness endpoint covering every backing
// dependency that is configured.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
		defer cancel()

		checks := map[string]func(context.Context) error{}
		if d.DB != nil {
			checks["postgres"] = d.DB.Ping
		}
		if d.Cache != nil {
			checks["redis"] = func(ctx context.Context) error { return d.Cache.Ping(ctx).Err() }
		}
		if d.Chain != nil {
			checks["rpc"] = func(ctx context.Context) error {
				_, err := d.Chain.BlockNumber(ctx)
				return err
			}
		}
		if d.MessageLog != nil {
			checks["message_log"] = d.MessageLog.Ping
		}

		status := http.StatusOK
		report := fiber.Map{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				report[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			report[name] = "ok"
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    report,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

package routes

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/safetext/internal/auth"
	"github.com/congo-pay/safetext/internal/config"
	"github.com/congo-pay/safetext/internal/dedupe"
	"github.com/congo-pay/safetext/internal/identity"
	"github.com/congo-pay/safetext/internal/ledger"
	"github.com/congo-pay/safetext/internal/logging"
	"github.com/congo-pay/safetext/internal/messages"
	"github.com/congo-pay/safetext/internal/metrics"
	"github.com/congo-pay/safetext/internal/middleware"
	"github.com/congo-pay/safetext/internal/wallet"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps aggregates shared dependencies required to wire routes. DB, Cache,
// Issuer and Idempotency may be nil in development.
type Deps struct {
	Cfg         config.Config
	DB          *pgxpool.Pool
	Cache       *redis.Client
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Issuer      *auth.Issuer
	Idempotency dedupe.Store
	Chain       ledger.Ledger
	MessageLog  Pinger

	Messages *messages.Handler
	Users    *identity.Handler
	Wallets  *wallet.Handler
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return errors.New("database is required outside development")
		}
		if d.Issuer == nil {
			return errors.New("operator tokens are required outside development")
		}
	}

	if d.Logger == nil {
		d.Logger = logging.Discard()
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Metrics != nil {
		app.Use(d.Metrics.Middleware())
	}
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	if d.Metrics != nil {
		app.Get("/metrics", d.Metrics.Handler())
	}

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	protected := api.Group("", middleware.OperatorAuth(d.Issuer))
	if d.Idempotency != nil {
		protected.Use(middleware.Idempotency(d.Idempotency, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterMessageRoutes(protected, d.Messages, middleware.SendRateLimit(d.Cache, d.Cfg.SendRateLimit))
	RegisterChainRoutes(protected, d.Wallets)
	RegisterUserRoutes(protected, d.Users)
	return nil
}

package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	apiv1 "github.com/sbsbridge/claimbridge/internal/api/v1"
	"github.com/sbsbridge/claimbridge/internal/pkg/env"
	"github.com/sbsbridge/claimbridge/internal/pkg/middleware"
)

// ApiConfig holds the settings of the /api group.
type ApiConfig struct {
	APIKeys         []string
	RateLimitMax    int
	RateLimitWindow time.Duration
	// LimiterStorage shares limiter state across replicas; nil keeps it
	// in memory.
	LimiterStorage fiber.Storage
}

// LoadApiConfig reads API_KEY (comma separated), RATE_LIMIT_MAX and
// RATE_LIMIT_WINDOW.
func LoadApiConfig() ApiConfig {
	return ApiConfig{
		APIKeys:         env.GetEnvList("API_KEY"),
		RateLimitMax:    env.GetEnvInt("RATE_LIMIT_MAX", 120),
		RateLimitWindow: env.GetEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
	}
}

type ApiRouter struct {
	cfg    ApiConfig
	server apiv1.ServerInterface
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", middleware.CallerContextMiddleware, limiter.New(limiter.Config{
		Max:        h.cfg.RateLimitMax,
		Expiration: h.cfg.RateLimitWindow,
		Storage:    h.cfg.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited", "message": "Too many requests"})
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware(h.cfg.APIKeys))
	apiv1.RegisterHandlers(v1, h.server)
}

func NewApiRouter(cfg ApiConfig, server apiv1.ServerInterface) *ApiRouter {
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 120
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	return &ApiRouter{cfg: cfg, server: server}
}

package api

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/shiramwangi/gawa/internal/auth"
	"github.com/shiramwangi/gawa/internal/config"
	"github.com/shiramwangi/gawa/internal/metrics"
)

type Handlers struct {
	Orders     *OrderHandler
	Deliveries *DeliveryHandler
	Payments   *PaymentHandler
}

// NewRouter wires middleware and routes. Webhooks, health and metrics are unauthenticated.
func NewRouter(cfg *config.Config, h Handlers, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if len(cfg.HTTP.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.HTTP.CORSOrigins,
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
		}))
	}
	if cfg.HTTP.RateLimit > 0 {
		e.Use(middleware.RateLimiterWithConfig(rateLimiterConfig(cfg.HTTP)))
	}

	jwt := auth.Middleware(cfg.Auth.JWTSecret)

	orders := e.Group("/orders", jwt)
	orders.POST("", h.Orders.CreateOrder)
	orders.GET("", h.Orders.ListOrders)
	orders.GET("/:id", h.Orders.GetOrder)
	orders.DELETE("/:id", h.Orders.CancelOrder)
	orders.POST("/:id/contributions", h.Orders.AddContribution)
	orders.GET("/:id/delivery", h.Orders.GetDelivery)

	deliveries := e.Group("/deliveries", jwt)
	deliveries.PATCH("/:id/status", h.Deliveries.UpdateStatus)
	deliveries.POST("/:id/rating", h.Deliveries.Rate)

	e.POST("/payments/init", h.Payments.InitPayment, jwt)
	e.GET("/payments/:transaction_id", h.Payments.GetPayment, jwt)
	e.POST("/payments/webhook/:provider", h.Payments.Webhook)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]interface{}{
			"status":  "ok",
			"service": "gawa",
			"time":    time.Now().Format(time.RFC3339),
		})
	})
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}
	return e
}

func rateLimiterConfig(cfg config.HTTPConfig) middleware.RateLimiterConfig {
	return middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			// provider callbacks must not be throttled into retries
			return c.Path() == "/payments/webhook/:provider"
		},
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.RateLimit),
				Burst:     cfg.RateBurst,
				ExpiresIn: 3 * time.Minute,
			}),
		IdentifierExtractor: func(context echo.Context) (string, error) {
			return context.RealIP(), nil
		},
		ErrorHandler: func(context echo.Context, err error) error {
			return context.JSON(429, map[string]string{"error": "rate limit exceeded"})
		},
		DenyHandler: func(context echo.Context, identifier string, err error) error {
			return context.JSON(429, map[string]string{"error": "rate limit exceeded"})
		},
	}
}

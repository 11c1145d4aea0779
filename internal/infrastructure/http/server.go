package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	handlers "github.com/wekeepgrowing/semo-course-billing/internal/adapter/handler/http"
	"github.com/wekeepgrowing/semo-course-billing/internal/config"
	"github.com/wekeepgrowing/semo-course-billing/internal/middleware/auth"
	"github.com/wekeepgrowing/semo-course-billing/pkg/logger"
	"go.uber.org/zap"
)

// Handlers groups the HTTP handlers the server routes to.
type Handlers struct {
	Payment      *handlers.PaymentHandler
	Subscription *handlers.SubscriptionHandler
	Webhook      *handlers.WebhookHandler
}

type Server struct {
	config   *config.Config
	logger   *zap.Logger
	echo     *echo.Echo
	handlers Handlers
}

func NewServer(cfg *config.Config, log *zap.Logger, h Handlers) *Server {
	e := echo.New()
	logger.WithEchoLogger(e, log)

	e.Use(middleware.Recover())
	e.Use(logger.NewEchoRequestLogger(log))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.Service.ClientURL},
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE},
	}))

	s := &Server{
		config:   cfg,
		logger:   log,
		echo:     e,
		handlers: h,
	}
	s.setupRoutes()
	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.HTTP.Host, s.config.Server.HTTP.Port)
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	s.echo.Server.ReadTimeout = s.config.Server.HTTP.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.Server.HTTP.WriteTimeout
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": s.config.Service.Name,
		})
	})
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	jwtConfig := auth.JWTConfig{
		Secret: s.config.JWT.Secret,
		Logger: s.logger,
	}

	v1 := s.echo.Group("/api/v1")

	// The confirmation return URL is reached by browser redirect and carries
	// no token; the intent id is re-fetched from the processor.
	v1.GET("/payments/confirm", s.handlers.Payment.ConfirmPayment)

	protected := v1.Group("", auth.JWTMiddleware(jwtConfig))
	protected.POST("/orders/:id/payment", s.handlers.Payment.ProcessPayment)
	protected.GET("/subscriptions/:id", s.handlers.Subscription.GetSubscription)
	protected.DELETE("/subscriptions/:id", s.handlers.Subscription.CancelSubscription)

	admin := protected.Group("", auth.RequireAdmin(s.logger))
	admin.POST("/payments/:intentId/capture", s.handlers.Payment.Capture)
	admin.POST("/orders/:id/refund", s.handlers.Payment.Refund)

	// Webhook route (outside API versioning)
	s.echo.POST("/webhook", s.handlers.Webhook.HandleWebhook)
}

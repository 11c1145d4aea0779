package http

import (
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v79"
	"github.com/wekeepgrowing/semo-course-billing/internal/usecase"
	"go.uber.org/zap"
)

const maxWebhookBody = 65536

// EventVerifier authenticates a webhook payload.
type EventVerifier interface {
	Verify(payload []byte, signature string) (stripe.Event, error)
}

type WebhookHandler struct {
	verifier EventVerifier
	service  *usecase.WebhookService
	logger   *zap.Logger
}

func NewWebhookHandler(verifier EventVerifier, service *usecase.WebhookService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier: verifier,
		service:  service,
		logger:   logger,
	}
}

// HandleWebhook answers 2xx for every verified event it has recorded, so the
// processor only redelivers on signature or server failures.
func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		h.logger.Error("Error reading request body", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Error reading request body"})
	}
	if len(body) > maxWebhookBody {
		h.logger.Warn("Webhook body too large", zap.Int("limit", maxWebhookBody))
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "Request body too large"})
	}

	sig := c.Request().Header.Get("Stripe-Signature")
	event, err := h.verifier.Verify(body, sig)
	if err != nil {
		h.logger.Warn("Webhook signature verification failed", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Webhook signature verification failed"})
	}

	h.logger.Info("Webhook event received",
		zap.String("type", string(event.Type)),
		zap.String("id", event.ID),
		zap.Time("created", time.Unix(event.Created, 0)),
	)

	result, err := h.service.HandleEvent(c.Request().Context(), &event)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":  "Webhook processing failed",
			"result": result,
		})
	}

	return c.JSON(http.StatusOK, echo.Map{"received": true, "result": result})
}

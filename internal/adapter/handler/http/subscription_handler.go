package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	domainErrors "github.com/wekeepgrowing/semo-course-billing/internal/domain/errors"
	"github.com/wekeepgrowing/semo-course-billing/internal/middleware/auth"
	"github.com/wekeepgrowing/semo-course-billing/internal/usecase"
	"go.uber.org/zap"
)

type SubscriptionHandler struct {
	orchestrator *usecase.PaymentOrchestrator
	logger       *zap.Logger
}

func NewSubscriptionHandler(orchestrator *usecase.PaymentOrchestrator, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

func (h *SubscriptionHandler) GetSubscription(c echo.Context) error {
	user, err := auth.RequireAuth(c)
	if user == nil {
		return err
	}

	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	sub, err := h.orchestrator.GetSubscription(c.Request().Context(), id)
	if err == nil && sub.StudentID != user.StudentID && !user.IsAdmin() {
		err = domainErrors.NewPaymentError(domainErrors.ErrSubscriptionNotFound, 0, "")
	}
	if err != nil {
		return respondError(c, h.logger, err, "Failed to get subscription")
	}

	return c.JSON(http.StatusOK, sub)
}

// CancelSubscription cancels the caller's subscription at period end where
// possible.
func (h *SubscriptionHandler) CancelSubscription(c echo.Context) error {
	user, err := auth.RequireAuth(c)
	if user == nil {
		return err
	}

	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	sub, err := h.orchestrator.GetSubscription(ctx, id)
	if err == nil && sub.StudentID != user.StudentID && !user.IsAdmin() {
		err = domainErrors.NewPaymentError(domainErrors.ErrSubscriptionNotFound, 0, "")
	}
	if err != nil {
		return respondError(c, h.logger, err, "Failed to get subscription")
	}

	if err := h.orchestrator.CancelSubscription(ctx, id); err != nil {
		return respondError(c, h.logger, err, "Failed to cancel subscription")
	}

	sub, err = h.orchestrator.GetSubscription(ctx, id)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to get subscription")
	}

	h.logger.Info("Subscription cancellation requested",
		zap.Int64("subscription_id", id),
		zap.String("student_id", user.StudentID.String()),
		zap.String("status", string(sub.Status)),
		zap.Bool("cancel_at_period_end", sub.CancelAtPeriodEnd))

	return c.JSON(http.StatusOK, sub)
}

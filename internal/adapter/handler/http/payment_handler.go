package http

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	domainErrors "github.com/wekeepgrowing/semo-course-billing/internal/domain/errors"
	"github.com/wekeepgrowing/semo-course-billing/internal/middleware/auth"
	"github.com/wekeepgrowing/semo-course-billing/internal/usecase"
	pkgerrors "github.com/wekeepgrowing/semo-course-billing/pkg/errors"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	orchestrator *usecase.PaymentOrchestrator
	validator    *validator.Validate
	clientURL    string
	logger       *zap.Logger
}

func NewPaymentHandler(orchestrator *usecase.PaymentOrchestrator, clientURL string, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		orchestrator: orchestrator,
		validator:    validator.New(),
		clientURL:    clientURL,
		logger:       logger,
	}
}

// ProcessPayment starts or resumes payment of the caller's order.
func (h *PaymentHandler) ProcessPayment(c echo.Context) error {
	user, err := auth.RequireAuth(c)
	if user == nil {
		return err
	}

	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var req usecase.PaymentRequest
	if err := c.Bind(&req); err != nil {
		return validationError(err)
	}
	if err := h.validator.Struct(req); err != nil {
		return validationError(err)
	}

	ctx := c.Request().Context()
	order, err := h.orchestrator.GetOrder(ctx, orderID)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to load order")
	}
	if order.StudentID != user.StudentID {
		// Someone else's order is reported as missing.
		return respondError(c, h.logger,
			domainErrors.NewPaymentError(domainErrors.ErrOrderNotFound, orderID, ""), "Order owner mismatch")
	}

	result, err := h.orchestrator.ProcessPayment(ctx, orderID, req)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to process payment")
	}

	status := http.StatusOK
	if result.Result == usecase.ResultFailure {
		status = http.StatusPaymentRequired
	}

	h.logger.Info("Payment processed",
		zap.Int64("order_id", orderID),
		zap.String("student_id", user.StudentID.String()),
		zap.String("result", result.Result),
		zap.String("state", string(result.State)))

	return c.JSON(status, result)
}

// ConfirmPayment is the return URL after client-side confirmation. It
// records the outcome and redirects to the order page.
func (h *PaymentHandler) ConfirmPayment(c echo.Context) error {
	intentID := c.QueryParam("payment_intent")
	if intentID == "" {
		intentID = c.QueryParam("setup_intent")
	}
	if intentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, echo.Map{
			"error": "payment_intent is required",
			"code":  pkgerrors.ErrInvalidArgument,
		})
	}

	result, err := h.orchestrator.CompletePayment(c.Request().Context(), intentID)
	if err != nil {
		h.logger.Warn("Payment confirmation failed",
			zap.String("intent_id", intentID),
			zap.Error(err))
		return c.Redirect(http.StatusFound, h.clientURL+"/checkout?payment_error=1")
	}

	return c.Redirect(http.StatusFound, result.RedirectURL)
}

// Capture captures an authorized intent. Admin only.
func (h *PaymentHandler) Capture(c echo.Context) error {
	intentID := c.Param("intentId")

	intent, err := h.orchestrator.Capture(c.Request().Context(), intentID)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to capture payment")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"intent_id": intent.ID,
		"status":    intent.Status,
		"amount":    intent.AmountReceived,
	})
}

// Refund refunds an order in full or in part. Admin only.
func (h *PaymentHandler) Refund(c echo.Context) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var req usecase.RefundRequest
	if err := c.Bind(&req); err != nil {
		return validationError(err)
	}
	if err := h.validator.Struct(req); err != nil {
		return validationError(err)
	}

	result, err := h.orchestrator.Refund(c.Request().Context(), orderID, req)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to refund order")
	}

	return c.JSON(http.StatusOK, result)
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, echo.Map{
			"error": "invalid " + name,
			"code":  pkgerrors.ErrInvalidArgument,
		})
	}
	return id, nil
}

package http

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	domainErrors "github.com/wekeepgrowing/semo-course-billing/internal/domain/errors"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/processor"
	pkgerrors "github.com/wekeepgrowing/semo-course-billing/pkg/errors"
	"go.uber.org/zap"
)

// respondError writes err as a JSON error. Payment rule violations map to
// 4xx through their code; processor failures expose only the message the
// student may see.
func respondError(c echo.Context, logger *zap.Logger, err error, msg string) error {
	var paymentErr *domainErrors.PaymentError
	if errors.As(err, &paymentErr) {
		appErr := paymentErr.AppError()
		pkgerrors.LogError(logger, appErr, msg, zap.Int64("order_id", paymentErr.OrderID))
		return pkgerrors.ToHTTPError(appErr)
	}

	if procErr, ok := processor.AsError(err); ok {
		status := http.StatusBadGateway
		if procErr.IsCardError() {
			status = http.StatusPaymentRequired
		}
		logger.Warn(msg,
			zap.String("type", string(procErr.Type)),
			zap.String("code", procErr.Code),
			zap.String("request_id", procErr.RequestID),
			zap.Error(err))
		return c.JSON(status, echo.Map{
			"error": procErr.UserMessage(),
			"code":  procErr.Code,
		})
	}

	if errors.Is(err, processor.ErrNotConfigured) {
		return pkgerrors.ToHTTPError(pkgerrors.NewAppError(pkgerrors.ErrUnavailable, err.Error(), nil))
	}

	pkgerrors.LogError(logger, err, msg)
	return pkgerrors.ToHTTPError(pkgerrors.Wrap(err, msg))
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		return echo.NewHTTPError(http.StatusBadRequest, echo.Map{
			"error": "invalid field " + first.Field() + ": " + first.Tag(),
			"code":  pkgerrors.ErrInvalidArgument,
		})
	}
	return echo.NewHTTPError(http.StatusBadRequest, echo.Map{
		"error": "invalid request body",
		"code":  pkgerrors.ErrInvalidArgument,
	})
}

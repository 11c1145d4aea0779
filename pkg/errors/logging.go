package errors

import (
	"go.uber.org/zap"
)

// LogError logs err with its code. Errors that map to a 4xx status are the
// caller's fault and are logged at warn level; everything else at error.
func LogError(logger *zap.Logger, err error, msg string, fields ...zap.Field) {
	if err == nil {
		return
	}

	code := ErrInternal
	var appErr *AppError
	if As(err, &appErr) {
		code = appErr.Code()
	}

	all := append([]zap.Field{zap.Error(err), zap.String("error_code", code)}, fields...)
	if ToHTTPStatus(code) < 500 {
		logger.Warn(msg, all...)
		return
	}
	logger.Error(msg, all...)
}

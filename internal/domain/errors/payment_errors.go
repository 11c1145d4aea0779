package errors

import (
	"errors"
	"fmt"

	pkgerrors "github.com/wekeepgrowing/semo-course-billing/pkg/errors"
)

var (
	// ErrNotConfigured indicates that no processor secret key is configured
	ErrNotConfigured = errors.New("payment processor is not configured")

	// ErrOrderNotFound indicates that the order does not exist
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderNotLinked indicates that an intent carries no resolvable order reference
	ErrOrderNotLinked = errors.New("intent is not linked to an order")

	// ErrOrderAlreadyPaid indicates that the order has already been paid
	ErrOrderAlreadyPaid = errors.New("order has already been paid")

	// ErrMissingPaymentMethod indicates that no payment method was supplied
	ErrMissingPaymentMethod = errors.New("payment method is required")

	// ErrAmountBelowMinimum indicates that the order total is under the processor minimum
	ErrAmountBelowMinimum = errors.New("order total is below the minimum chargeable amount")

	// ErrPrepaidCardNotAllowed indicates that prepaid cards are rejected by policy
	ErrPrepaidCardNotAllowed = errors.New("prepaid cards are not accepted")

	// ErrMissingCustomer indicates that a recurring payment has no processor customer
	ErrMissingCustomer = errors.New("processor customer is required for recurring billing")

	// ErrCourseNotRecurring indicates that the course has no recurring billing configuration
	ErrCourseNotRecurring = errors.New("course is not configured for recurring billing")

	// ErrNoTransaction indicates that the order has no stored transaction id
	ErrNoTransaction = errors.New("order has no transaction to refund")

	// ErrPaymentFailed indicates that the processor reported the charge as failed
	ErrPaymentFailed = errors.New("payment failed")

	// ErrIntentAmountLocked indicates an attempt to change the amount of a settled intent
	ErrIntentAmountLocked = errors.New("intent has already been charged and its amount cannot change")

	// ErrIntentNotCapturable indicates that the intent is not awaiting capture
	ErrIntentNotCapturable = errors.New("intent is not awaiting capture")

	// ErrSubscriptionNotFound indicates that the specified subscription was not found
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

var codes = map[error]string{
	ErrNotConfigured:         pkgerrors.ErrUnavailable,
	ErrOrderNotFound:         pkgerrors.ErrNotFound,
	ErrOrderNotLinked:        pkgerrors.ErrFailedPrecondition,
	ErrOrderAlreadyPaid:      pkgerrors.ErrConflict,
	ErrMissingPaymentMethod:  pkgerrors.ErrInvalidArgument,
	ErrAmountBelowMinimum:    pkgerrors.ErrInvalidArgument,
	ErrPrepaidCardNotAllowed: pkgerrors.ErrPaymentRequired,
	ErrMissingCustomer:       pkgerrors.ErrFailedPrecondition,
	ErrCourseNotRecurring:    pkgerrors.ErrFailedPrecondition,
	ErrNoTransaction:         pkgerrors.ErrFailedPrecondition,
	ErrPaymentFailed:         pkgerrors.ErrPaymentRequired,
	ErrIntentAmountLocked:    pkgerrors.ErrConflict,
	ErrIntentNotCapturable:   pkgerrors.ErrFailedPrecondition,
	ErrSubscriptionNotFound:  pkgerrors.ErrNotFound,
}

// PaymentError is a business-rule failure raised by the payment flow. It is
// never a processor error; those travel as processor.Error.
type PaymentError struct {
	Code    string
	Message string
	OrderID int64
	Cause   error
}

func (e *PaymentError) Error() string {
	if e.OrderID != 0 {
		return fmt.Sprintf("order %d: %s", e.OrderID, e.Message)
	}
	return e.Message
}

func (e *PaymentError) Unwrap() error {
	return e.Cause
}

// AppError converts the error for the transport layer.
func (e *PaymentError) AppError() *pkgerrors.AppError {
	return pkgerrors.NewAppError(e.Code, e.Message, e.Cause)
}

// NewPaymentError wraps one of the sentinels above. An empty message falls
// back to the sentinel's text.
func NewPaymentError(cause error, orderID int64, message string) *PaymentError {
	code, ok := codes[cause]
	if !ok {
		code = pkgerrors.ErrInternal
	}
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &PaymentError{
		Code:    code,
		Message: message,
		OrderID: orderID,
		Cause:   cause,
	}
}

// ToAppError returns err as an AppError when it is a PaymentError and
// returns it unchanged otherwise.
func ToAppError(err error) error {
	var paymentErr *PaymentError
	if errors.As(err, &paymentErr) {
		return paymentErr.AppError()
	}
	return err
}

package processor

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned before any network call when no secret key is set
	ErrNotConfigured = errors.New("processor client is not configured")

	// ErrMissingArgument is returned when a required id or params value is empty
	ErrMissingArgument = errors.New("missing required argument")
)

// ErrorType classifies a remote failure.
type ErrorType string

const (
	ErrorTypeCard           ErrorType = "card_error"
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	ErrorTypeAPI            ErrorType = "api_error"
	ErrorTypeAuthentication ErrorType = "authentication_error"
	ErrorTypeRateLimit      ErrorType = "rate_limit_error"
	ErrorTypeIdempotency    ErrorType = "idempotency_error"
	ErrorTypeConnection     ErrorType = "api_connection_error"
)

// Error codes the payment flow reacts to.
const (
	CodeChargeAlreadyRefunded        = "charge_already_refunded"
	CodePaymentIntentUnexpectedState = "payment_intent_unexpected_state"
	CodeResourceMissing              = "resource_missing"
	CodeResourceAlreadyExists        = "resource_already_exists"
)

// GenericMessage is shown for failures the student cannot act on.
const GenericMessage = "Payment could not be processed right now. Please try again later."

// Error is the envelope every remote-side failure is returned in.
type Error struct {
	Type             ErrorType `json:"type"`
	Code             string    `json:"code,omitempty"`
	Message          string    `json:"message"`
	LocalizedMessage string    `json:"localized_message,omitempty"`
	DeclineCode      string    `json:"decline_code,omitempty"`
	Param            string    `json:"param,omitempty"`
	HTTPStatus       int       `json:"http_status,omitempty"`
	RequestID        string    `json:"request_id,omitempty"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) IsCardError() bool {
	return e.Type == ErrorTypeCard
}

// IsTransient reports whether the same request may succeed later.
func (e *Error) IsTransient() bool {
	switch e.Type {
	case ErrorTypeConnection, ErrorTypeRateLimit, ErrorTypeAPI:
		return true
	}
	return false
}

// UserMessage returns the text that may be shown to the student.
func (e *Error) UserMessage() string {
	if e.IsCardError() {
		if e.LocalizedMessage != "" {
			return e.LocalizedMessage
		}
		if e.Message != "" {
			return e.Message
		}
	}
	if e.Type == ErrorTypeInvalidRequest && e.LocalizedMessage != "" {
		return e.LocalizedMessage
	}
	return GenericMessage
}

// AsError extracts the envelope from err.
func AsError(err error) (*Error, bool) {
	var procErr *Error
	if errors.As(err, &procErr) {
		return procErr, true
	}
	return nil, false
}

// HasCode reports whether err is an envelope carrying code.
func HasCode(err error, code string) bool {
	procErr, ok := AsError(err)
	return ok && procErr.Code == code
}

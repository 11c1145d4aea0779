package stripe

import (
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v79"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/processor"
)

// declineMessages are shown to students instead of raw processor text.
var declineMessages = map[string]string{
	"card_declined":           "Your card was declined.",
	"generic_decline":         "Your card was declined.",
	"insufficient_funds":      "Your card has insufficient funds.",
	"lost_card":               "Your card was declined.",
	"stolen_card":             "Your card was declined.",
	"expired_card":            "Your card has expired.",
	"incorrect_cvc":           "Your card's security code is incorrect.",
	"invalid_cvc":             "Your card's security code is invalid.",
	"incomplete_cvc":          "Your card's security code is incomplete.",
	"incorrect_number":        "Your card number is incorrect.",
	"invalid_number":          "Your card number is invalid.",
	"incomplete_number":       "Your card number is incomplete.",
	"invalid_expiry_month":    "Your card's expiration month is invalid.",
	"invalid_expiry_year":     "Your card's expiration year is invalid.",
	"incomplete_expiry":       "Your card's expiration date is incomplete.",
	"incorrect_zip":           "Your card's postal code is incorrect.",
	"processing_error":        "An error occurred while processing your card. Try again in a little bit.",
	"authentication_required": "Your bank requires authentication for this payment.",
}

func toProcessorError(err error) *processor.Error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return &processor.Error{
			Type:    processor.ErrorTypeConnection,
			Message: err.Error(),
		}
	}

	procErr := &processor.Error{
		Type:        errorType(stripeErr),
		Code:        string(stripeErr.Code),
		Message:     stripeErr.Msg,
		DeclineCode: string(stripeErr.DeclineCode),
		Param:       stripeErr.Param,
		HTTPStatus:  stripeErr.HTTPStatusCode,
		RequestID:   stripeErr.RequestID,
	}
	procErr.LocalizedMessage = localizedMessage(procErr)
	return procErr
}

func errorType(err *stripe.Error) processor.ErrorType {
	switch err.HTTPStatusCode {
	case http.StatusUnauthorized:
		return processor.ErrorTypeAuthentication
	case http.StatusTooManyRequests:
		return processor.ErrorTypeRateLimit
	}

	switch err.Type {
	case stripe.ErrorTypeCard:
		return processor.ErrorTypeCard
	case stripe.ErrorTypeInvalidRequest:
		return processor.ErrorTypeInvalidRequest
	case stripe.ErrorTypeIdempotency:
		return processor.ErrorTypeIdempotency
	default:
		return processor.ErrorTypeAPI
	}
}

func localizedMessage(err *processor.Error) string {
	if !err.IsCardError() {
		return ""
	}
	if msg, ok := declineMessages[err.DeclineCode]; ok {
		return msg
	}
	if msg, ok := declineMessages[err.Code]; ok {
		return msg
	}
	return err.Message
}

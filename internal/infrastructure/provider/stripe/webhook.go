package stripe

import (
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"github.com/wekeepgrowing/semo-course-billing/internal/config"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/processor"
)

// EventVerifier checks webhook signatures against the signing secret of the
// active mode.
type EventVerifier struct {
	secret string
}

func NewEventVerifier(cfg *config.StripeConfig) *EventVerifier {
	return &EventVerifier{secret: cfg.WebhookSecret()}
}

// Verify parses payload after validating the Stripe-Signature header.
func (v *EventVerifier) Verify(payload []byte, signature string) (stripe.Event, error) {
	if v.secret == "" {
		return stripe.Event{}, processor.ErrNotConfigured
	}
	return webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
}

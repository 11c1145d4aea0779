package processor

import (
	"context"

	"github.com/stripe/stripe-go/v79"
)

// Payment intent statuses in which the intent may still be updated.
var mutableIntentStatuses = map[stripe.PaymentIntentStatus]bool{
	stripe.PaymentIntentStatusRequiresPaymentMethod: true,
	stripe.PaymentIntentStatusRequiresConfirmation:  true,
	stripe.PaymentIntentStatusRequiresAction:        true,
}

// IsMutable reports whether a payment intent in status can be updated.
func IsMutable(status stripe.PaymentIntentStatus) bool {
	return mutableIntentStatuses[status]
}

// IsSetupIntentMutable is the setup intent counterpart of IsMutable.
func IsSetupIntentMutable(status stripe.SetupIntentStatus) bool {
	switch status {
	case stripe.SetupIntentStatusRequiresPaymentMethod,
		stripe.SetupIntentStatusRequiresConfirmation,
		stripe.SetupIntentStatusRequiresAction:
		return true
	}
	return false
}

// Client is the single entry point for calls to the payment processor.
// Remote failures are returned as *Error; ErrNotConfigured and
// ErrMissingArgument signal caller mistakes.
type Client interface {
	Configured() bool

	CreateCustomer(ctx context.Context, params *stripe.CustomerParams, idempotencyKey string) (*stripe.Customer, error)
	UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerParams) (*stripe.Customer, error)
	GetCustomer(ctx context.Context, id string) (*stripe.Customer, error)

	GetPaymentMethod(ctx context.Context, id string) (*stripe.PaymentMethod, error)
	AttachPaymentMethod(ctx context.Context, id, customerID string) (*stripe.PaymentMethod, error)

	GetCharge(ctx context.Context, id string, expand ...string) (*stripe.Charge, error)

	CreateSetupIntent(ctx context.Context, params *stripe.SetupIntentParams, idempotencyKey string) (*stripe.SetupIntent, error)
	GetSetupIntent(ctx context.Context, id string) (*stripe.SetupIntent, error)
	UpdateSetupIntent(ctx context.Context, id string, params *stripe.SetupIntentParams) (*stripe.SetupIntent, error)
	CancelSetupIntent(ctx context.Context, id string) (*stripe.SetupIntent, error)

	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams, idempotencyKey string) (*stripe.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string, expand ...string) (*stripe.PaymentIntent, error)
	UpdatePaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	CapturePaymentIntent(ctx context.Context, id string, amount int64) (*stripe.PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, id string, reason stripe.PaymentIntentCancellationReason) (*stripe.PaymentIntent, error)

	GetBalanceTransaction(ctx context.Context, id string) (*stripe.BalanceTransaction, error)

	CreateProduct(ctx context.Context, params *stripe.ProductParams) (*stripe.Product, error)
	GetProduct(ctx context.Context, id string) (*stripe.Product, error)
	CreatePlan(ctx context.Context, params *stripe.PlanParams) (*stripe.Plan, error)
	GetPlan(ctx context.Context, id string) (*stripe.Plan, error)

	CreateSubscription(ctx context.Context, params *stripe.SubscriptionParams, idempotencyKey string) (*stripe.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	CancelSubscription(ctx context.Context, id string) (*stripe.Subscription, error)

	ListInvoices(ctx context.Context, params *stripe.InvoiceListParams) ([]*stripe.Invoice, error)

	CreateRefund(ctx context.Context, params *stripe.RefundParams, idempotencyKey string) (*stripe.Refund, error)

	CreateCoupon(ctx context.Context, params *stripe.CouponParams) (*stripe.Coupon, error)
}

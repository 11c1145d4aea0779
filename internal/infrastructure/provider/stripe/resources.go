package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v79"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/processor"
	"go.uber.org/zap"
)

func (c *Client) CreateCustomer(ctx context.Context, params *stripe.CustomerParams, idempotencyKey string) (*stripe.Customer, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, processor.ErrMissingArgument
	}
	withContext(ctx, &params.Params, idempotencyKey)
	return call(c, "customer.create", nil, func() (*stripe.Customer, error) {
		return c.api.Customers.New(params)
	})
}

func (c *Client) UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerParams) (*stripe.Customer, error) {
	if err := c.check(id); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, processor.ErrMissingArgument
	}
	withContext(ctx, &params.Params, "")
	return call(c, "customer.update", []zap.Field{zap.String("id", id)}, func() (*stripe.Customer, error) {
		return c.api.Customers.Update(id, params)
	})
}

func (c *Client) GetCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	if err := c.check(id); err != nil {
		return nil, err
	}
	params := &stripe.CustomerParams{}
	withContext(ctx, &params.Params, "")
	return call(c, "customer.retrieve", []zap.Field{zap.String("id", id)}, func() (*stripe.Customer, error) {
		return c.api.Customers.Get(id, params)
	})
}

func (c *Client) GetPaymentMethod(ctx context.Context, id string) (*stripe.PaymentMethod, error) {
	if err := c.check(id); err != nil {
		return nil, err
	}
	params := &stripe.PaymentMethodParams{}
	withContext(ctx, &params.Params, "")
	return call(c, "payment_method.retrieve", []zap.Field{zap.String("id", id)}, func() (*stripe.PaymentMethod, error) {
		return c.api.PaymentMethods.Get(id, params)
	})
}

func (c *Client) AttachPaymentMethod(ctx context.Context, id, customerID string) (*stripe.PaymentMethod, error) {
	if err := c.check(id, customerID); err != nil {
		return nil, err
	}
	params := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
	withContext(ctx, &params.Params, "")
	fields := []zap.Field{zap.String("id", id), zap.String("customer", customerID)}
	return call(c, "payment_method.attach", fields, func() (*stripe.PaymentMethod, error) {
		return c.api.PaymentMethods.Attach(id, params)
	})
}

func (c *Client) GetCharge(ctx context.Context, id string, expand ...string) (*stripe.Charge, error) {
	if err := c.check(id); err != nil {
		return nil, err
	}
	params := &stripe.ChargeParams{}
	withContext(ctx, &params.Params, "")
	for _, field := range expand {
		params.AddExpand(field)
	}
	return call(c, "charge.retrieve", []zap.Field{zap.String("id", id)}, func() (*stripe.Charge, error) {
		return c.api.Charges.Get(id, params)
	})
}

func (c *Client) CreateSetupIntent(ctx context.Context, params *stripe.SetupIntentParams, idempotencyKey string) (*stripe.SetupIntent, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, processor.ErrMissingArgument
	}
	withContext(ctx, &params.Params, idempotencyKey)
	return call(c, "setup_intent.create", nil, func() (*stripe.SetupIntent, error) {
		return c.api.SetupIntents.New(params)
	})
}

func (c *Client) GetSetupIntent(ctx context.Context, id string) (*stripe.SetupIntent, error) {
	if err := c.check(id); err != nil {
		return nil, err
	}
	params := &stripe.SetupIntentParams{}
	withContext(ctx, &params.Params, "")
	return call(c, "setup_intent.retrieve", []zap.Field{zap.String("id", id)}, func() (*stripe.SetupIntent, error) {
		return c.api.SetupIntents.Get(id, params)
	})
}

func (c *Client) UpdateSetupIntent(ctx context.Context, id string, params *stripe.SetupIntentParams) (*stripe.SetupIntent, error) {
	if err := c.check(id); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, processor.ErrMissingArgument
	}
	withContext(ctx, &params.Params, "")
	return call(c, "setup_intent.update", []zap.Field{zap.String("id", id)}, func() (*stripe.SetupIntent, error) {
		return c.api.SetupIntents.Update(id, params)
	})
}

func (c *Client) CancelSetupIntent(ctx context.Context, id string) (*stripe.SetupIntent, error) {
	if err := c.check(id); err != nil {
		return nil, err
	}
	params := &stripe.SetupIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.SetupIntentCancellationReasonAbandoned)),
	}
	withContext(ctx, &params.Params, "")
	return call(c, "setup_intent.cancel", []zap.Field{zap.String("id", id)}, func() (*stripe.SetupIntent, error) {
		return c.api.SetupIntents.Cancel(id, params)
	})
}

func (c *Client) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams, idempotencyKey string) (*stripe.PaymentIntent, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, processor.ErrMissingArgument
	}
	withContext(ctx, &params.Params, idempotencyKey)
	return call(c, "payment_intent.create", nil, func() (*stripe.PaymentIntent, error) {
		return c.api.PaymentIntents.New(params)
	})
}

func (c *Client) GetPaymentIntent(ctx context.Context, id string, expand ...string) (*stripe.PaymentIntent, error) {
	if err := c.check(id); err != nil {
		return nil, err
	}
	params := &stripe.PaymentIntentParams{}
	withContext(ctx, &params.Params, "")
	for _, field := range expand {
		params.AddExpand(field)
	}
	return call(c, "payment_intent.retrieve", []zap.Field{zap.String("id", id)}, func() (*stripe.PaymentIntent, error) {
		return c.api.PaymentIntents.Get(id, params)
	})
}

func (c *Client) UpdatePaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if err := c.check(id); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, processor.ErrMissingArgument
	}
	withContext(ctx, &params.Params, "")
	return call(c, "payment_intent.update", []zap.Field{zap.String("id", id)}, func() (*stripe.PaymentIntent, error) {
		return c.api.PaymentIntents.Update(id, params)
	})
}

func (c *Client) CapturePaymentIntent(ctx context.Context, id string, amount int64) (*stripe.PaymentIntent, error) {
	if err := c.check(id); err != nil {
		return nil, err
	}
	params := &stripe.PaymentIntentCaptureParams{AmountToCapture: stripe.Int64(amount)}
	withContext(ctx, &params.Params, "")
	fields := []zap.Field{zap.String("id", id), zap.Int64("amount", amount)}
	return call(c, "payment_intent.capture", fields, func() (*stripe.PaymentIntent, error) {
		return c.api.PaymentIntents.Capture(id, params)
	})
}

func (c *Client) CancelPaymentIntent(ctx context.Context, id string, reason stripe.PaymentIntentCancellationReason) (*stripe.PaymentIntent, error) {
	if err := c.check(id); err != nil {
		return nil, err
	}
	params := &stripe.PaymentIntentCancelParams{}
	if reason != "" {
		params.CancellationReason = stripe.String(string(reason))
	}
	withContext(ctx, &params.Params, "")
	fields := []zap.Field{zap.String("id", id), zap.String("reason", string(reason))}
	return call(c, "payment_intent.cancel", fields, func() (*stripe.PaymentIntent, error) {
		return c.api.PaymentIntents.Cancel(id, params)
	})
}

func (c *Client) GetBalanceTransaction(ctx context.Context, id string) (*stripe.BalanceTransaction, error) {
	if err := c.check(id); err != nil {
		return nil, err
	}
	params := &stripe.BalanceTransactionParams{}
	withContext(ctx, &params.Params, "")
	return call(c, "balance_transaction.retrieve", []zap.Field{zap.String("id", id)}, func() (*stripe.BalanceTransaction, error) {
		return c.api.BalanceTransactions.Get(id, params)
	})
}

func (c *Client) CreateProduct(ctx context.Context, params *stripe.ProductParams) (*stripe.Product, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, processor.ErrMissingArgument
	}
	withContext(ctx, &params.Params, "")
	return call(c, "product.create", nil, func() (*stripe.Product, error) {
		return c.api.Products.New(params)
	})
}

func (c *Client) GetProduct(ctx context.Context, id string) (*stripe.Product, error) {
	if err := c.check(id); err != nil {
		return nil, err
	}
	params := &stripe.ProductParams{}
	withContext(ctx, &params.Params, "")
	return call(c, "product.retrieve", []zap.Field{zap.String("id", id)}, func() (*stripe.Product, error) {
		return c.api.Products.Get(id, params)
	})
}

func (c *Client) CreatePlan(ctx context.Context, params *stripe.PlanParams) (*stripe.Plan, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, processor.ErrMissingArgument
	}
	withContext(ctx, &params.Params, "")
	return call(c, "plan.create", nil, func() (*stripe.Plan, error) {
		return c.api.Plans.New(params)
	})
}

func (c *Client) GetPlan(ctx context.Context, id string) (*stripe.Plan, error) {
	if err := c.check(id); err != nil {
		return nil, err
	}
	params := &stripe.PlanParams{}
	withContext(ctx, &params.Params, "")
	return call(c, "plan.retrieve", []zap.Field{zap.String("id", id)}, func() (*stripe.Plan, error) {
		return c.api.Plans.Get(id, params)
	})
}

func (c *Client) CreateSubscription(ctx context.Context, params *stripe.SubscriptionParams, idempotencyKey string) (*stripe.Subscription, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, processor.ErrMissingArgument
	}
	withContext(ctx, &params.Params, idempotencyKey)
	return call(c, "subscription.create", nil, func() (*stripe.Subscription, error) {
		return c.api.Subscriptions.New(params)
	})
}

func (c *Client) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	if err := c.check(id); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, processor.ErrMissingArgument
	}
	withContext(ctx, &params.Params, "")
	return call(c, "subscription.update", []zap.Field{zap.String("id", id)}, func() (*stripe.Subscription, error) {
		return c.api.Subscriptions.Update(id, params)
	})
}

func (c *Client) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	if err := c.check(id); err != nil {
		return nil, err
	}
	params := &stripe.SubscriptionParams{}
	withContext(ctx, &params.Params, "")
	return call(c, "subscription.retrieve", []zap.Field{zap.String("id", id)}, func() (*stripe.Subscription, error) {
		return c.api.Subscriptions.Get(id, params)
	})
}

func (c *Client) CancelSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	if err := c.check(id); err != nil {
		return nil, err
	}
	params := &stripe.SubscriptionCancelParams{}
	withContext(ctx, &params.Params, "")
	return call(c, "subscription.cancel", []zap.Field{zap.String("id", id)}, func() (*stripe.Subscription, error) {
		return c.api.Subscriptions.Cancel(id, params)
	})
}

// ListInvoices drains the list iterator.
func (c *Client) ListInvoices(ctx context.Context, params *stripe.InvoiceListParams) ([]*stripe.Invoice, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if params == nil {
		params = &stripe.InvoiceListParams{}
	}
	params.Context = ctx
	return call(c, "invoice.list", nil, func() ([]*stripe.Invoice, error) {
		var invoices []*stripe.Invoice
		iter := c.api.Invoices.List(params)
		for iter.Next() {
			invoices = append(invoices, iter.Invoice())
		}
		return invoices, iter.Err()
	})
}

func (c *Client) CreateRefund(ctx context.Context, params *stripe.RefundParams, idempotencyKey string) (*stripe.Refund, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, processor.ErrMissingArgument
	}
	withContext(ctx, &params.Params, idempotencyKey)
	return call(c, "refund.create", nil, func() (*stripe.Refund, error) {
		return c.api.Refunds.New(params)
	})
}

func (c *Client) CreateCoupon(ctx context.Context, params *stripe.CouponParams) (*stripe.Coupon, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, processor.ErrMissingArgument
	}
	withContext(ctx, &params.Params, "")
	return call(c, "coupon.create", nil, func() (*stripe.Coupon, error) {
		return c.api.Coupons.New(params)
	})
}

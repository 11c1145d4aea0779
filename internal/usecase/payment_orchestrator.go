package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/wekeepgrowing/semo-course-billing/internal/config"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/currency"
	domainErrors "github.com/wekeepgrowing/semo-course-billing/internal/domain/errors"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/model"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/processor"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/repository"
	"github.com/wekeepgrowing/semo-course-billing/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

// PaymentOrchestrator drives a purchase through intent creation,
// confirmation, capture, refund and cancellation.
type PaymentOrchestrator struct {
	processor        processor.Client
	builder          *SubscriptionBuilder
	orderRepo        repository.OrderRepository
	subscriptionRepo repository.SubscriptionRepository
	customerRepo     repository.CustomerMappingRepository
	stripeConfig     *config.StripeConfig
	clientURL        string
	notifier         Notifier
	modifier         IntentArgsModifier
	logger           *zap.Logger
	now              func() time.Time
}

// OrchestratorOption configures optional collaborators.
type OrchestratorOption func(*PaymentOrchestrator)

func WithNotifier(notifier Notifier) OrchestratorOption {
	return func(o *PaymentOrchestrator) {
		if notifier != nil {
			o.notifier = notifier
		}
	}
}

func WithIntentArgsModifier(modifier IntentArgsModifier) OrchestratorOption {
	return func(o *PaymentOrchestrator) {
		o.modifier = modifier
	}
}

func NewPaymentOrchestrator(
	processorClient processor.Client,
	builder *SubscriptionBuilder,
	orderRepo repository.OrderRepository,
	subscriptionRepo repository.SubscriptionRepository,
	customerRepo repository.CustomerMappingRepository,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...OrchestratorOption,
) *PaymentOrchestrator {
	o := &PaymentOrchestrator{
		processor:        processorClient,
		builder:          builder,
		orderRepo:        orderRepo,
		subscriptionRepo: subscriptionRepo,
		customerRepo:     customerRepo,
		stripeConfig:     &cfg.Stripe,
		clientURL:        strings.TrimRight(cfg.Service.ClientURL, "/"),
		notifier:         nopNotifier{},
		logger:           logger,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// intentArgs is the payment-affecting state an intent must match.
type intentArgs struct {
	amount          int64
	currency        string
	customerID      string
	paymentMethodID string
	recurring       bool
	save            bool
}

func (a intentArgs) wantsSetupIntent() bool {
	return a.amount == 0 && a.recurring
}

// ProcessPayment prepares the payment source and creates or reconciles the
// order's intent. Processor failures are reported in the result; business
// rule violations are returned as *domainErrors.PaymentError.
func (o *PaymentOrchestrator) ProcessPayment(ctx context.Context, orderID int64, req PaymentRequest) (*PaymentResult, error) {
	if !o.processor.Configured() {
		return nil, domainErrors.NewPaymentError(domainErrors.ErrNotConfigured, orderID, "")
	}

	order, err := o.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsPaid() {
		return nil, domainErrors.NewPaymentError(domainErrors.ErrOrderAlreadyPaid, order.ID, "")
	}
	if req.PaymentMethodID == "" {
		return nil, domainErrors.NewPaymentError(domainErrors.ErrMissingPaymentMethod, order.ID, "")
	}

	recurring := order.HasRecurringItems()
	logger := o.logger.With(zap.Int64("order_id", order.ID), zap.Bool("recurring", recurring))

	customerID, err := o.resolveCustomer(ctx, order, req)
	if err != nil {
		return o.failPayment(ctx, order, err)
	}

	paymentMethod, err := o.processor.GetPaymentMethod(ctx, req.PaymentMethodID)
	if err != nil {
		return o.failPayment(ctx, order, err)
	}

	if !o.stripeConfig.AllowPrepaidCards && paymentMethod.Card != nil && paymentMethod.Card.Funding == stripe.CardFundingPrepaid {
		return nil, domainErrors.NewPaymentError(domainErrors.ErrPrepaidCardNotAllowed, order.ID, "")
	}

	if recurring || req.SavePaymentMethod {
		if err := o.attachPaymentMethod(ctx, paymentMethod, customerID, recurring); err != nil {
			return o.failPayment(ctx, order, err)
		}
	}

	order.CustomerID = customerID
	order.SourceID = paymentMethod.ID
	if err := o.orderRepo.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to persist payment source: %w", err)
	}
	logger.Debug("Payment source prepared", zap.String("state", string(StateSourcePrepared)))

	if order.Total.IsZero() && !recurring {
		return o.completeWithoutPayment(ctx, order)
	}

	args := intentArgs{
		amount:          currency.ToMinorUnits(order.Total, order.Currency),
		currency:        currency.Normalize(order.Currency),
		customerID:      customerID,
		paymentMethodID: paymentMethod.ID,
		recurring:       recurring,
		save:            req.SavePaymentMethod,
	}

	if !order.Total.IsZero() {
		minimum := o.stripeConfig.MinimumAmount(order.Currency)
		if args.amount < minimum {
			return nil, domainErrors.NewPaymentError(domainErrors.ErrAmountBelowMinimum, order.ID,
				fmt.Sprintf("order total %s %s is below the minimum of %s %s",
					order.Total.StringFixed(2), strings.ToUpper(order.Currency),
					currency.FromMinorUnits(minimum, order.Currency).String(), strings.ToUpper(order.Currency)))
		}
	}

	token, reused, err := o.upsertIntent(ctx, order, args)
	if err != nil {
		return o.failPayment(ctx, order, err)
	}

	token.PublishableKey = o.stripeConfig.PublishableKey()
	order.ActiveIntentID = token.IntentID
	if order.Status == model.OrderStatusFailed {
		order.Status = model.OrderStatusPending
	}
	if err := o.orderRepo.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to persist intent id: %w", err)
	}

	state := StateIntentCreated
	if reused {
		state = StateIntentReused
	}
	metrics.IncPayment(strings.ToLower(string(state)))
	logger.Info("Payment intent ready",
		zap.String("intent_id", token.IntentID),
		zap.String("kind", string(token.Kind)),
		zap.String("state", string(state)))

	return &PaymentResult{
		Result:  ResultSuccess,
		State:   state,
		OrderID: order.ID,
		Token:   token,
	}, nil
}

func (o *PaymentOrchestrator) loadOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	order, err := o.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order %d: %w", orderID, err)
	}
	if order == nil {
		return nil, domainErrors.NewPaymentError(domainErrors.ErrOrderNotFound, orderID, "")
	}
	return order, nil
}

func (o *PaymentOrchestrator) resolveCustomer(ctx context.Context, order *model.Order, req PaymentRequest) (string, error) {
	if order.CustomerID != "" {
		return order.CustomerID, nil
	}

	mapping, err := o.customerRepo.GetByStudentID(ctx, order.StudentID)
	if err != nil {
		return "", fmt.Errorf("failed to load customer mapping: %w", err)
	}
	if mapping != nil {
		return mapping.ProcessorCustomerID, nil
	}

	params := &stripe.CustomerParams{}
	if req.Email != "" {
		params.Email = stripe.String(req.Email)
	}
	if req.Name != "" {
		params.Name = stripe.String(req.Name)
	}
	params.AddMetadata(metaStudentID, order.StudentID.String())

	customer, err := o.processor.CreateCustomer(ctx, params, idempotencyKey("customer", order.StudentID))
	if err != nil {
		return "", err
	}

	stored, err := o.customerRepo.Save(ctx, &model.CustomerMapping{
		ProcessorCustomerID: customer.ID,
		StudentID:           order.StudentID,
		CustomerEmail:       req.Email,
	})
	if err != nil {
		return "", fmt.Errorf("failed to save customer mapping: %w", err)
	}

	o.logger.Info("Processor customer resolved",
		zap.String("student_id", order.StudentID.String()),
		zap.String("customer_id", stored.ProcessorCustomerID))
	return stored.ProcessorCustomerID, nil
}

func (o *PaymentOrchestrator) attachPaymentMethod(ctx context.Context, paymentMethod *stripe.PaymentMethod, customerID string, makeDefault bool) error {
	if paymentMethod.Customer == nil || paymentMethod.Customer.ID != customerID {
		if _, err := o.processor.AttachPaymentMethod(ctx, paymentMethod.ID, customerID); err != nil {
			return err
		}
	}
	if !makeDefault {
		return nil
	}

	_, err := o.processor.UpdateCustomer(ctx, customerID, &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethod.ID),
		},
	})
	return err
}

func (o *PaymentOrchestrator) completeWithoutPayment(ctx context.Context, order *model.Order) (*PaymentResult, error) {
	now := o.now()
	order.Status = model.OrderStatusCompleted
	order.PaidAt = &now
	order.CompletedAt = &now
	if err := o.orderRepo.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to complete free order: %w", err)
	}
	o.addNote(ctx, order.ID, "Order completed without payment.")
	o.notifyCompleted(ctx, order)
	metrics.IncPayment("completed")

	return &PaymentResult{
		Result:      ResultSuccess,
		State:       StateCompleted,
		OrderID:     order.ID,
		RedirectURL: o.receivedURL(order.ID),
	}, nil
}

// failPayment converts a processor failure into a failure result. Any other
// error is returned unchanged.
func (o *PaymentOrchestrator) failPayment(ctx context.Context, order *model.Order, err error) (*PaymentResult, error) {
	procErr, ok := processor.AsError(err)
	if !ok {
		return nil, err
	}

	order.Status = model.OrderStatusFailed
	// A declined request is replayed for its idempotency key, so the next
	// attempt must use a fresh one.
	order.SetMeta(model.MetaPaymentAttempt, paymentAttempt(order)+1)
	if updateErr := o.orderRepo.Update(ctx, order); updateErr != nil {
		o.logger.Error("Failed to mark order failed", zap.Int64("order_id", order.ID), zap.Error(updateErr))
	}

	message := procErr.UserMessage()
	o.addNote(ctx, order.ID, fmt.Sprintf("Payment failed: %s", procErr.Message))
	if notifyErr := o.notifier.OrderFailed(ctx, order, message); notifyErr != nil {
		o.logger.Warn("Failed to send order failed notification", zap.Int64("order_id", order.ID), zap.Error(notifyErr))
	}
	metrics.IncPayment("failed")

	return &PaymentResult{
		Result:  ResultFailure,
		State:   StateFailed,
		OrderID: order.ID,
		Message: message,
		Error:   procErr,
	}, nil
}

// upsertIntent reuses, updates or replaces the order's live intent so that at
// most one exists at a time. The bool reports whether the existing intent was
// kept.
func (o *PaymentOrchestrator) upsertIntent(ctx context.Context, order *model.Order, args intentArgs) (*ContinuationToken, bool, error) {
	replaced := ""
	if existingID := order.ActiveIntentID; existingID != "" {
		var (
			token *ContinuationToken
			err   error
		)
		switch {
		case (intentKindOf(existingID) == IntentKindSetup) != args.wantsSetupIntent():
			err = o.cancelIntent(ctx, existingID)
		case args.wantsSetupIntent():
			token, err = o.reconcileSetupIntent(ctx, order, existingID, args)
		default:
			token, err = o.reconcilePaymentIntent(ctx, order, existingID, args)
		}
		if err != nil {
			return nil, false, err
		}
		if token != nil {
			return token, true, nil
		}
		replaced = existingID
	}

	if args.wantsSetupIntent() {
		token, err := o.createSetupIntent(ctx, order, args, replaced)
		return token, false, err
	}
	token, err := o.createPaymentIntent(ctx, order, args, replaced)
	return token, false, err
}

// reconcilePaymentIntent returns a token when the existing intent can be
// kept, or nil when a new intent must be created.
func (o *PaymentOrchestrator) reconcilePaymentIntent(ctx context.Context, order *model.Order, intentID string, args intentArgs) (*ContinuationToken, error) {
	intent, err := o.processor.GetPaymentIntent(ctx, intentID)
	if processor.HasCode(err, processor.CodeResourceMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if intent.Status == stripe.PaymentIntentStatusCanceled {
		return nil, nil
	}

	params, changed, amountChanged := diffPaymentIntent(intent, args)
	if !changed {
		return paymentIntentToken(intent, order.ID), nil
	}
	if intent.Status == stripe.PaymentIntentStatusSucceeded {
		if amountChanged {
			return nil, domainErrors.NewPaymentError(domainErrors.ErrIntentAmountLocked, order.ID, "")
		}
		return paymentIntentToken(intent, order.ID), nil
	}
	if !processor.IsMutable(intent.Status) {
		o.logger.Info("Replacing intent that can no longer be updated",
			zap.Int64("order_id", order.ID),
			zap.String("intent_id", intentID),
			zap.String("status", string(intent.Status)))
		return nil, o.cancelIntent(ctx, intentID)
	}

	updated, err := o.processor.UpdatePaymentIntent(ctx, intentID, params)
	switch {
	case processor.HasCode(err, processor.CodePaymentIntentUnexpectedState):
		return nil, o.cancelIntent(ctx, intentID)
	case processor.HasCode(err, processor.CodeResourceMissing):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return paymentIntentToken(updated, order.ID), nil
}

// diffPaymentIntent returns update params holding only the fields that
// differ from args.
func diffPaymentIntent(intent *stripe.PaymentIntent, args intentArgs) (*stripe.PaymentIntentParams, bool, bool) {
	params := &stripe.PaymentIntentParams{}
	changed, amountChanged := false, false

	if intent.Amount != args.amount {
		params.Amount = stripe.Int64(args.amount)
		changed, amountChanged = true, true
	}
	if !strings.EqualFold(string(intent.Currency), args.currency) {
		params.Currency = stripe.String(args.currency)
		changed, amountChanged = true, true
	}
	if intent.PaymentMethod == nil || intent.PaymentMethod.ID != args.paymentMethodID {
		params.PaymentMethod = stripe.String(args.paymentMethodID)
		changed = true
	}
	if intent.Customer == nil || intent.Customer.ID != args.customerID {
		params.Customer = stripe.String(args.customerID)
		changed = true
	}
	return params, changed, amountChanged
}

func (o *PaymentOrchestrator) reconcileSetupIntent(ctx context.Context, order *model.Order, intentID string, args intentArgs) (*ContinuationToken, error) {
	intent, err := o.processor.GetSetupIntent(ctx, intentID)
	if processor.HasCode(err, processor.CodeResourceMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if intent.Status == stripe.SetupIntentStatusCanceled {
		return nil, nil
	}

	params := &stripe.SetupIntentParams{}
	changed := false
	if intent.PaymentMethod == nil || intent.PaymentMethod.ID != args.paymentMethodID {
		params.PaymentMethod = stripe.String(args.paymentMethodID)
		changed = true
	}
	if intent.Customer == nil || intent.Customer.ID != args.customerID {
		params.Customer = stripe.String(args.customerID)
		changed = true
	}
	if !changed {
		return setupIntentToken(intent, order.ID), nil
	}
	if !processor.IsSetupIntentMutable(intent.Status) {
		return nil, o.cancelIntent(ctx, intentID)
	}

	updated, err := o.processor.UpdateSetupIntent(ctx, intentID, params)
	switch {
	case processor.HasCode(err, processor.CodeResourceMissing):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return setupIntentToken(updated, order.ID), nil
}

func (o *PaymentOrchestrator) createPaymentIntent(ctx context.Context, order *model.Order, args intentArgs, replaced string) (*ContinuationToken, error) {
	captureMethod := stripe.PaymentIntentCaptureMethodAutomatic
	if args.recurring {
		captureMethod = stripe.PaymentIntentCaptureMethodManual
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(args.amount),
		Currency:           stripe.String(args.currency),
		Customer:           stripe.String(args.customerID),
		PaymentMethod:      stripe.String(args.paymentMethodID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
		CaptureMethod:      stripe.String(string(captureMethod)),
	}
	if args.recurring || args.save {
		params.SetupFutureUsage = stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession))
	}
	if descriptor := o.stripeConfig.SanitizedStatementDescriptor(); descriptor != "" {
		params.StatementDescriptorSuffix = stripe.String(descriptor)
	}
	addOrderMetadata(params.AddMetadata, order)
	if o.modifier != nil {
		o.modifier.ModifyPaymentIntent(order, params)
	}

	key := idempotencyKey("payment_intent", order.ID, paymentAttempt(order), args.amount, args.currency,
		args.customerID, args.paymentMethodID, args.recurring, replaced)
	intent, err := o.processor.CreatePaymentIntent(ctx, params, key)
	if err != nil {
		return nil, err
	}
	return paymentIntentToken(intent, order.ID), nil
}

func (o *PaymentOrchestrator) createSetupIntent(ctx context.Context, order *model.Order, args intentArgs, replaced string) (*ContinuationToken, error) {
	params := &stripe.SetupIntentParams{
		Customer:           stripe.String(args.customerID),
		PaymentMethod:      stripe.String(args.paymentMethodID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
		Usage:              stripe.String(string(stripe.SetupIntentUsageOffSession)),
	}
	addOrderMetadata(params.AddMetadata, order)
	if o.modifier != nil {
		o.modifier.ModifySetupIntent(order, params)
	}

	key := idempotencyKey("setup_intent", order.ID, paymentAttempt(order), args.customerID, args.paymentMethodID, replaced)
	intent, err := o.processor.CreateSetupIntent(ctx, params, key)
	if err != nil {
		return nil, err
	}
	return setupIntentToken(intent, order.ID), nil
}

func (o *PaymentOrchestrator) cancelIntent(ctx context.Context, intentID string) error {
	var err error
	if intentKindOf(intentID) == IntentKindSetup {
		_, err = o.processor.CancelSetupIntent(ctx, intentID)
	} else {
		_, err = o.processor.CancelPaymentIntent(ctx, intentID, stripe.PaymentIntentCancellationReasonAbandoned)
	}
	if processor.HasCode(err, processor.CodeResourceMissing) {
		return nil
	}
	return err
}

func paymentAttempt(order *model.Order) int {
	n, _ := strconv.Atoi(order.MetaString(model.MetaPaymentAttempt))
	return n
}

func addOrderMetadata(add func(key, value string), order *model.Order) {
	add(metaOrderID, strconv.FormatInt(order.ID, 10))
	add(metaOrderKey, order.OrderKey)
	add(metaStudentID, order.StudentID.String())
}

func paymentIntentToken(intent *stripe.PaymentIntent, orderID int64) *ContinuationToken {
	return &ContinuationToken{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		OrderID:      orderID,
		Kind:         IntentKindPayment,
	}
}

func setupIntentToken(intent *stripe.SetupIntent, orderID int64) *ContinuationToken {
	return &ContinuationToken{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		OrderID:      orderID,
		Kind:         IntentKindSetup,
	}
}

func (o *PaymentOrchestrator) receivedURL(orderID int64) string {
	return fmt.Sprintf("%s/orders/%d/received", o.clientURL, orderID)
}

func (o *PaymentOrchestrator) addNote(ctx context.Context, orderID int64, message string) {
	if err := o.orderRepo.AddNote(ctx, orderID, message); err != nil {
		o.logger.Warn("Failed to add order note", zap.Int64("order_id", orderID), zap.Error(err))
	}
}

func (o *PaymentOrchestrator) notifyCompleted(ctx context.Context, order *model.Order) {
	if err := o.notifier.OrderCompleted(ctx, order); err != nil {
		o.logger.Warn("Failed to send order completed notification", zap.Int64("order_id", order.ID), zap.Error(err))
	}
	if err := o.notifier.ClearCart(ctx, order.StudentID); err != nil {
		o.logger.Warn("Failed to clear cart", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

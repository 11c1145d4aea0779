package usecase

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v79"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/currency"
	domainErrors "github.com/wekeepgrowing/semo-course-billing/internal/domain/errors"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/model"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/processor"
	"github.com/wekeepgrowing/semo-course-billing/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

// CompletePayment records a confirmed intent. It is entered from the client
// redirect and from webhooks, so every step is safe to repeat: one intent
// yields exactly one payment order.
func (o *PaymentOrchestrator) CompletePayment(ctx context.Context, intentID string) (*CompletionResult, error) {
	if !o.processor.Configured() {
		return nil, domainErrors.NewPaymentError(domainErrors.ErrNotConfigured, 0, "")
	}
	if intentKindOf(intentID) == IntentKindSetup {
		return o.completeSetupIntent(ctx, intentID)
	}

	intent, err := o.processor.GetPaymentIntent(ctx, intentID, "latest_charge", "latest_charge.balance_transaction")
	if err != nil {
		return nil, err
	}

	order, err := o.orderForIntent(ctx, intent.ID, intent.Metadata)
	if err != nil {
		return nil, err
	}

	paymentOrder, err := o.findOrCreatePaymentOrder(ctx, order, intent.ID)
	if err != nil {
		return nil, err
	}
	if paymentOrder.Status == model.OrderStatusCompleted {
		o.logger.Debug("Payment already recorded",
			zap.Int64("order_id", order.ID),
			zap.Int64("payment_order_id", paymentOrder.ID),
			zap.String("intent_id", intent.ID))
		return o.completionResult(order, paymentOrder, StateCompleted, nil), nil
	}

	charge, err := o.loadCharge(ctx, intent)
	if err != nil {
		return nil, err
	}
	if paymentFailed(intent, charge, paymentOrder) {
		return nil, o.recordFailure(ctx, order, paymentOrder, failureReason(intent, charge))
	}

	var subscriptions []*model.Subscription
	if order.HasRecurringItems() && fundsSecured(intent, paymentOrder) {
		subscriptions, err = o.builder.Build(ctx, order, paymentOrder)
		if err != nil {
			o.addNote(ctx, order.ID, fmt.Sprintf("Subscription setup failed: %v", err))
			return nil, err
		}
		if intent.Status == stripe.PaymentIntentStatusRequiresCapture && allActive(subscriptions) {
			intent, err = o.capture(ctx, intent, paymentOrder)
			if err != nil {
				return nil, err
			}
			if charge, err = o.loadCharge(ctx, intent); err != nil {
				return nil, err
			}
		}
	}

	return o.settle(ctx, order, paymentOrder, intent, charge, subscriptions)
}

// paymentFailed reports an intent that will not move money without a new
// payment method.
func paymentFailed(intent *stripe.PaymentIntent, charge *stripe.Charge, paymentOrder *model.Order) bool {
	switch {
	case charge != nil && charge.Status == stripe.ChargeStatusFailed:
		return true
	case intent.Status == stripe.PaymentIntentStatusCanceled:
		return !paymentOrder.Total.IsZero()
	case intent.Status == stripe.PaymentIntentStatusRequiresPaymentMethod:
		return intent.LastPaymentError != nil
	}
	return false
}

// fundsSecured reports whether subscriptions may be created for the intent:
// the charge is authorized, paid or in flight, or nothing was owed.
func fundsSecured(intent *stripe.PaymentIntent, paymentOrder *model.Order) bool {
	switch intent.Status {
	case stripe.PaymentIntentStatusRequiresCapture,
		stripe.PaymentIntentStatusSucceeded,
		stripe.PaymentIntentStatusProcessing:
		return true
	case stripe.PaymentIntentStatusCanceled:
		return paymentOrder.Total.IsZero()
	}
	return false
}

func (o *PaymentOrchestrator) completeSetupIntent(ctx context.Context, intentID string) (*CompletionResult, error) {
	intent, err := o.processor.GetSetupIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	order, err := o.orderForIntent(ctx, intent.ID, intent.Metadata)
	if err != nil {
		return nil, err
	}

	paymentOrder, err := o.findOrCreatePaymentOrder(ctx, order, intent.ID)
	if err != nil {
		return nil, err
	}
	if paymentOrder.Status == model.OrderStatusCompleted {
		return o.completionResult(order, paymentOrder, StateCompleted, nil), nil
	}

	switch intent.Status {
	case stripe.SetupIntentStatusSucceeded:
	case stripe.SetupIntentStatusCanceled:
		return nil, o.recordFailure(ctx, order, paymentOrder, "The card setup was cancelled.")
	default:
		if err := o.hold(ctx, order, paymentOrder); err != nil {
			return nil, err
		}
		return o.completionResult(order, paymentOrder, StateOnHold, nil), nil
	}

	subscriptions, err := o.builder.Build(ctx, order, paymentOrder)
	if err != nil {
		o.addNote(ctx, order.ID, fmt.Sprintf("Subscription setup failed: %v", err))
		return nil, err
	}

	if err := o.complete(ctx, order, paymentOrder, nil); err != nil {
		return nil, err
	}
	return o.completionResult(order, paymentOrder, StateCompleted, subscriptions), nil
}

// settle derives the local status from the intent's capture state.
func (o *PaymentOrchestrator) settle(
	ctx context.Context,
	order, paymentOrder *model.Order,
	intent *stripe.PaymentIntent,
	charge *stripe.Charge,
	subscriptions []*model.Subscription,
) (*CompletionResult, error) {
	switch {
	case intent.Status == stripe.PaymentIntentStatusCanceled && paymentOrder.Total.IsZero():
		if err := o.complete(ctx, order, paymentOrder, nil); err != nil {
			return nil, err
		}
		return o.completionResult(order, paymentOrder, StateCompleted, subscriptions), nil

	case intent.Status == stripe.PaymentIntentStatusSucceeded && (charge == nil || charge.Captured):
		if err := o.complete(ctx, order, paymentOrder, charge); err != nil {
			return nil, err
		}
		metrics.AddPaymentRevenue(string(intent.Currency), intent.AmountReceived)
		return o.completionResult(order, paymentOrder, StateCompleted, subscriptions), nil

	case paymentFailed(intent, charge, paymentOrder):
		return nil, o.recordFailure(ctx, order, paymentOrder, failureReason(intent, charge))

	default:
		if err := o.hold(ctx, order, paymentOrder); err != nil {
			return nil, err
		}
		return o.completionResult(order, paymentOrder, StateOnHold, subscriptions), nil
	}
}

// loadCharge returns the intent's latest charge with its balance
// transaction, fetching it when the intent came back unexpanded.
func (o *PaymentOrchestrator) loadCharge(ctx context.Context, intent *stripe.PaymentIntent) (*stripe.Charge, error) {
	charge := intent.LatestCharge
	if charge == nil || charge.ID == "" {
		return nil, nil
	}
	if charge.Status != "" {
		return charge, nil
	}
	return o.processor.GetCharge(ctx, charge.ID, "balance_transaction")
}

func (o *PaymentOrchestrator) complete(ctx context.Context, order, paymentOrder *model.Order, charge *stripe.Charge) error {
	now := o.now()
	paymentOrder.Status = model.OrderStatusCompleted
	paymentOrder.PaidAt = &now
	paymentOrder.CompletedAt = &now
	if charge != nil {
		paymentOrder.TransactionID = charge.ID
		paymentOrder.SetMeta(model.MetaChargeCaptured, charge.Captured)
		o.recordBalance(ctx, paymentOrder, charge)
	}
	if err := o.orderRepo.Update(ctx, paymentOrder); err != nil {
		return fmt.Errorf("failed to complete payment order %d: %w", paymentOrder.ID, err)
	}

	if !order.Status.IsPaid() {
		order.Status = model.OrderStatusCompleted
		if order.TransactionID == "" && charge != nil {
			order.TransactionID = charge.ID
		}
		order.PaidAt = &now
		order.CompletedAt = &now
		if err := o.orderRepo.Update(ctx, order); err != nil {
			return fmt.Errorf("failed to complete order %d: %w", order.ID, err)
		}
	}

	if charge != nil {
		o.addNote(ctx, order.ID, fmt.Sprintf("Payment completed (charge %s).", charge.ID))
	} else {
		o.addNote(ctx, order.ID, "Payment completed; nothing was charged.")
	}
	o.notifyCompleted(ctx, order)
	metrics.IncPayment("completed")

	o.logger.Info("Payment completed",
		zap.Int64("order_id", order.ID),
		zap.Int64("payment_order_id", paymentOrder.ID),
		zap.String("transaction_id", paymentOrder.TransactionID))
	return nil
}

func (o *PaymentOrchestrator) hold(ctx context.Context, order, paymentOrder *model.Order) error {
	paymentOrder.Status = model.OrderStatusOnHold
	if err := o.orderRepo.Update(ctx, paymentOrder); err != nil {
		return fmt.Errorf("failed to hold payment order %d: %w", paymentOrder.ID, err)
	}

	if order.Status == model.OrderStatusPending || order.Status == model.OrderStatusFailed {
		order.Status = model.OrderStatusOnHold
		if err := o.orderRepo.Update(ctx, order); err != nil {
			return fmt.Errorf("failed to hold order %d: %w", order.ID, err)
		}
	}

	o.addNote(ctx, order.ID, "Payment authorized and awaiting processor action.")
	if err := o.notifier.ClearCart(ctx, order.StudentID); err != nil {
		o.logger.Warn("Failed to clear cart", zap.Int64("order_id", order.ID), zap.Error(err))
	}
	metrics.IncPayment("on_hold")
	return nil
}

// recordFailure marks the attempt failed and returns the domain error that
// carries the processor's reason.
func (o *PaymentOrchestrator) recordFailure(ctx context.Context, order, paymentOrder *model.Order, reason string) error {
	paymentOrder.Status = model.OrderStatusFailed
	if err := o.orderRepo.Update(ctx, paymentOrder); err != nil {
		return fmt.Errorf("failed to mark payment order %d failed: %w", paymentOrder.ID, err)
	}

	if !order.Status.IsPaid() {
		order.Status = model.OrderStatusFailed
		if err := o.orderRepo.Update(ctx, order); err != nil {
			return fmt.Errorf("failed to mark order %d failed: %w", order.ID, err)
		}
	}

	o.addNote(ctx, order.ID, fmt.Sprintf("Payment failed: %s", reason))
	if err := o.notifier.OrderFailed(ctx, order, reason); err != nil {
		o.logger.Warn("Failed to send order failed notification", zap.Int64("order_id", order.ID), zap.Error(err))
	}
	metrics.IncPayment("failed")

	return domainErrors.NewPaymentError(domainErrors.ErrPaymentFailed, order.ID, reason)
}

// recordBalance copies fee and net figures onto the payment order. Missing
// data is logged and skipped.
func (o *PaymentOrchestrator) recordBalance(ctx context.Context, paymentOrder *model.Order, charge *stripe.Charge) {
	balance := charge.BalanceTransaction
	if balance == nil || balance.ID == "" {
		o.logger.Info("Balance transaction not available",
			zap.Int64("payment_order_id", paymentOrder.ID),
			zap.String("charge_id", charge.ID))
		return
	}

	if balance.Amount == 0 && balance.Fee == 0 && balance.Net == 0 {
		fetched, err := o.processor.GetBalanceTransaction(ctx, balance.ID)
		if err != nil {
			o.logger.Warn("Failed to fetch balance transaction",
				zap.Int64("payment_order_id", paymentOrder.ID),
				zap.String("balance_transaction_id", balance.ID),
				zap.Error(err))
			return
		}
		balance = fetched
	}

	code := string(balance.Currency)
	if code == "" {
		code = paymentOrder.Currency
	}
	paymentOrder.SetMeta(model.MetaProcessorFee, currency.FromMinorUnits(balance.Fee, code).String())
	paymentOrder.SetMeta(model.MetaProcessorNet, currency.FromMinorUnits(balance.Net, code).String())
	paymentOrder.SetMeta(model.MetaProcessorAmount, currency.FromMinorUnits(balance.Amount, code).String())
	paymentOrder.SetMeta(model.MetaProcessorCurrency, currency.Normalize(code))
}

func failureReason(intent *stripe.PaymentIntent, charge *stripe.Charge) string {
	if charge != nil && charge.FailureMessage != "" {
		return charge.FailureMessage
	}
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		return intent.LastPaymentError.Msg
	}
	if intent.Status == stripe.PaymentIntentStatusCanceled {
		return "The payment was cancelled."
	}
	return "The payment was declined."
}

func allActive(subscriptions []*model.Subscription) bool {
	for _, sub := range subscriptions {
		if sub.Status != model.SubscriptionStatusActive {
			return false
		}
	}
	return true
}

func (o *PaymentOrchestrator) completionResult(order, paymentOrder *model.Order, state PaymentState, subscriptions []*model.Subscription) *CompletionResult {
	return &CompletionResult{
		OrderID:        order.ID,
		PaymentOrderID: paymentOrder.ID,
		Status:         paymentOrder.Status,
		State:          state,
		RedirectURL:    o.receivedURL(order.ID),
		Subscriptions:  subscriptions,
	}
}

// orderForIntent resolves the order an intent was created for.
func (o *PaymentOrchestrator) orderForIntent(ctx context.Context, intentID string, metadata map[string]string) (*model.Order, error) {
	raw := metadata[metaOrderID]
	if raw == "" {
		return nil, domainErrors.NewPaymentError(domainErrors.ErrOrderNotLinked, 0,
			fmt.Sprintf("intent %s carries no order reference", intentID))
	}

	orderID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, domainErrors.NewPaymentError(domainErrors.ErrOrderNotLinked, 0,
			fmt.Sprintf("intent %s carries an invalid order reference %q", intentID, raw))
	}

	order, err := o.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order %d: %w", orderID, err)
	}
	if order == nil {
		return nil, domainErrors.NewPaymentError(domainErrors.ErrOrderNotLinked, orderID,
			fmt.Sprintf("order referenced by intent %s does not exist", intentID))
	}
	return order, nil
}

// findOrCreatePaymentOrder returns the single payment order of intentID.
func (o *PaymentOrchestrator) findOrCreatePaymentOrder(ctx context.Context, order *model.Order, intentID string) (*model.Order, error) {
	existing, err := o.orderRepo.GetBySourceIntentID(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up payment order: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	paymentOrder := order.NewPaymentOrder(intentID)
	if err := o.orderRepo.Create(ctx, paymentOrder); err != nil {
		// A concurrent delivery may have won the unique index.
		if winner, lookupErr := o.orderRepo.GetBySourceIntentID(ctx, intentID); lookupErr == nil && winner != nil {
			return winner, nil
		}
		return nil, fmt.Errorf("failed to create payment order: %w", err)
	}

	o.logger.Info("Payment order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("payment_order_id", paymentOrder.ID),
		zap.String("intent_id", intentID))
	return paymentOrder, nil
}

// Capture collects a manually captured intent. The amount comes from the
// payment order's current total; a zero total cancels the intent instead.
func (o *PaymentOrchestrator) Capture(ctx context.Context, intentID string) (*stripe.PaymentIntent, error) {
	if !o.processor.Configured() {
		return nil, domainErrors.NewPaymentError(domainErrors.ErrNotConfigured, 0, "")
	}

	intent, err := o.processor.GetPaymentIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status == stripe.PaymentIntentStatusSucceeded {
		return intent, nil
	}
	if intent.Status != stripe.PaymentIntentStatusRequiresCapture {
		return nil, domainErrors.NewPaymentError(domainErrors.ErrIntentNotCapturable, 0,
			fmt.Sprintf("intent %s is %s and cannot be captured", intent.ID, intent.Status))
	}

	paymentOrder, err := o.orderRepo.GetBySourceIntentID(ctx, intent.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up payment order: %w", err)
	}
	if paymentOrder == nil {
		order, err := o.orderForIntent(ctx, intent.ID, intent.Metadata)
		if err != nil {
			return nil, err
		}
		if paymentOrder, err = o.findOrCreatePaymentOrder(ctx, order, intent.ID); err != nil {
			return nil, err
		}
	}

	return o.capture(ctx, intent, paymentOrder)
}

func (o *PaymentOrchestrator) capture(ctx context.Context, intent *stripe.PaymentIntent, paymentOrder *model.Order) (*stripe.PaymentIntent, error) {
	amount := currency.ToMinorUnits(paymentOrder.Total, paymentOrder.Currency)
	noteOrderID := paymentOrder.ID
	if paymentOrder.ParentID != nil {
		noteOrderID = *paymentOrder.ParentID
	}

	if amount == 0 {
		canceled, err := o.processor.CancelPaymentIntent(ctx, intent.ID, stripe.PaymentIntentCancellationReasonAbandoned)
		if err != nil {
			return nil, err
		}
		o.addNote(ctx, noteOrderID, fmt.Sprintf("Nothing to capture; intent %s cancelled.", intent.ID))
		if err := o.notifier.ClearCart(ctx, paymentOrder.StudentID); err != nil {
			o.logger.Warn("Failed to clear cart", zap.Int64("order_id", noteOrderID), zap.Error(err))
		}
		return canceled, nil
	}

	captured, err := o.processor.CapturePaymentIntent(ctx, intent.ID, amount)
	if err != nil {
		if procErr, ok := processor.AsError(err); ok {
			o.addNote(ctx, noteOrderID, fmt.Sprintf("Capture failed: %s", procErr.Message))
		}
		return nil, err
	}

	o.addNote(ctx, noteOrderID, fmt.Sprintf("Captured %s.", currency.Format(amount, paymentOrder.Currency)))
	o.logger.Info("Payment captured",
		zap.String("intent_id", intent.ID),
		zap.Int64("payment_order_id", paymentOrder.ID),
		zap.Int64("amount", amount))
	return captured, nil
}

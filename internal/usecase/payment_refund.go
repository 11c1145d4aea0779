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

// Refund refunds the order's stored charge. A charge the processor reports as
// already refunded counts as success.
func (o *PaymentOrchestrator) Refund(ctx context.Context, orderID int64, req RefundRequest) (*RefundResult, error) {
	if !o.processor.Configured() {
		return nil, domainErrors.NewPaymentError(domainErrors.ErrNotConfigured, orderID, "")
	}

	order, err := o.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.TransactionID == "" {
		return nil, domainErrors.NewPaymentError(domainErrors.ErrNoTransaction, order.ID, "")
	}
	if order.Status == model.OrderStatusRefunded {
		return &RefundResult{OrderID: order.ID, Status: order.Status, AlreadyRefunded: true}, nil
	}

	params := &stripe.RefundParams{Charge: stripe.String(order.TransactionID)}
	full := true
	var amount int64
	if req.Amount != nil {
		amount = currency.ToMinorUnits(*req.Amount, order.Currency)
		full = !req.Amount.LessThan(order.Total)
		params.Amount = stripe.Int64(amount)
	}
	if req.Reason != "" {
		params.Reason = stripe.String(req.Reason)
	}
	addOrderMetadata(params.AddMetadata, order)

	// The count only advances once a refund succeeds: a retry after a lost
	// response replays the same request, a later refund gets a new key.
	seq := refundCount(order)
	refund, err := o.processor.CreateRefund(ctx, params,
		idempotencyKey("refund", order.ID, order.TransactionID, amount, seq))
	if err != nil {
		if processor.HasCode(err, processor.CodeChargeAlreadyRefunded) {
			if markErr := o.markRefunded(ctx, order, "Charge was already refunded at the processor."); markErr != nil {
				return nil, markErr
			}
			metrics.IncRefund("already_refunded")
			return &RefundResult{OrderID: order.ID, Status: order.Status, AlreadyRefunded: true}, nil
		}
		metrics.IncRefund("failed")
		if procErr, ok := processor.AsError(err); ok {
			o.addNote(ctx, order.ID, fmt.Sprintf("Refund failed: %s", procErr.Message))
		}
		return nil, err
	}

	order.SetMeta(model.MetaRefundCount, seq+1)
	if full {
		if err := o.markRefunded(ctx, order, fmt.Sprintf("Refunded in full (refund %s).", refund.ID)); err != nil {
			return nil, err
		}
	} else {
		if err := o.orderRepo.Update(ctx, order); err != nil {
			return nil, fmt.Errorf("failed to record refund on order %d: %w", order.ID, err)
		}
		o.addNote(ctx, order.ID, fmt.Sprintf("Refunded %s (refund %s).",
			currency.Format(amount, order.Currency), refund.ID))
	}
	metrics.IncRefund("succeeded")

	o.logger.Info("Order refunded",
		zap.Int64("order_id", order.ID),
		zap.String("refund_id", refund.ID),
		zap.Bool("full", full))

	return &RefundResult{OrderID: order.ID, RefundID: refund.ID, Status: order.Status}, nil
}

// MarkRefunded records a refund performed outside the service, for example
// from the processor dashboard.
func (o *PaymentOrchestrator) MarkRefunded(ctx context.Context, chargeID string) error {
	charge, err := o.processor.GetCharge(ctx, chargeID)
	if err != nil {
		return err
	}
	if !charge.Refunded {
		o.logger.Debug("Charge partially refunded; status unchanged", zap.String("charge_id", chargeID))
		return nil
	}

	order, err := o.orderRepo.GetByTransactionID(ctx, chargeID)
	if err != nil {
		return fmt.Errorf("failed to look up order for charge %s: %w", chargeID, err)
	}
	if order == nil {
		o.logger.Info("Refunded charge has no local order", zap.String("charge_id", chargeID))
		return nil
	}
	if err := o.markRefunded(ctx, order, fmt.Sprintf("Charge %s refunded at the processor.", chargeID)); err != nil {
		return err
	}

	if order.ParentID != nil {
		parent, err := o.orderRepo.GetByID(ctx, *order.ParentID)
		if err != nil {
			return fmt.Errorf("failed to load parent order %d: %w", *order.ParentID, err)
		}
		if parent != nil && parent.TransactionID == chargeID {
			return o.markRefunded(ctx, parent, fmt.Sprintf("Charge %s refunded at the processor.", chargeID))
		}
	}
	return nil
}

func refundCount(order *model.Order) int {
	n, _ := strconv.Atoi(order.MetaString(model.MetaRefundCount))
	return n
}

func (o *PaymentOrchestrator) markRefunded(ctx context.Context, order *model.Order, note string) error {
	if order.Status == model.OrderStatusRefunded {
		return nil
	}
	order.Status = model.OrderStatusRefunded
	if err := o.orderRepo.Update(ctx, order); err != nil {
		return fmt.Errorf("failed to mark order %d refunded: %w", order.ID, err)
	}
	o.addNote(ctx, order.ID, note)
	return nil
}

// FailPayment records a declined confirmation reported asynchronously.
func (o *PaymentOrchestrator) FailPayment(ctx context.Context, intentID string) error {
	intent, err := o.processor.GetPaymentIntent(ctx, intentID)
	if err != nil {
		return err
	}

	order, err := o.orderForIntent(ctx, intent.ID, intent.Metadata)
	if err != nil {
		return err
	}
	if order.Status.IsPaid() || order.ActiveIntentID != intent.ID {
		o.logger.Debug("Ignoring failure of a stale intent",
			zap.Int64("order_id", order.ID),
			zap.String("intent_id", intent.ID))
		return nil
	}

	reason := failureReason(intent, nil)
	order.Status = model.OrderStatusFailed
	if err := o.orderRepo.Update(ctx, order); err != nil {
		return fmt.Errorf("failed to mark order %d failed: %w", order.ID, err)
	}
	o.addNote(ctx, order.ID, fmt.Sprintf("Payment failed: %s", reason))
	if err := o.notifier.OrderFailed(ctx, order, reason); err != nil {
		o.logger.Warn("Failed to send order failed notification", zap.Int64("order_id", order.ID), zap.Error(err))
	}
	metrics.IncPayment("failed")
	return nil
}

// GetOrder returns the order or an ErrOrderNotFound payment error.
func (o *PaymentOrchestrator) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	return o.loadOrder(ctx, orderID)
}

func (o *PaymentOrchestrator) GetSubscription(ctx context.Context, subscriptionID int64) (*model.Subscription, error) {
	sub, err := o.subscriptionRepo.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription %d: %w", subscriptionID, err)
	}
	if sub == nil {
		return nil, domainErrors.NewPaymentError(domainErrors.ErrSubscriptionNotFound, 0,
			fmt.Sprintf("subscription %d", subscriptionID))
	}
	return sub, nil
}

// CancelSubscription schedules cancellation at period end when the order was
// paid, and cancels immediately when it was refunded or scheduling fails.
func (o *PaymentOrchestrator) CancelSubscription(ctx context.Context, subscriptionID int64) error {
	sub, err := o.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status.IsTerminal() {
		return nil
	}

	order, err := o.orderRepo.GetByID(ctx, sub.OrderID)
	if err != nil {
		return fmt.Errorf("failed to load order %d: %w", sub.OrderID, err)
	}

	if sub.HasProfile() {
		if !o.processor.Configured() {
			return domainErrors.NewPaymentError(domainErrors.ErrNotConfigured, sub.OrderID, "")
		}

		if order != nil && order.Status != model.OrderStatusRefunded {
			remote, err := o.processor.UpdateSubscription(ctx, *sub.ProfileID, &stripe.SubscriptionParams{
				CancelAtPeriodEnd: stripe.Bool(true),
			})
			if err == nil && remote.CancelAtPeriodEnd {
				sub.CancelAtPeriodEnd = true
				sub.Note = "Cancellation scheduled for the end of the current period."
				if err := o.subscriptionRepo.Update(ctx, sub); err != nil {
					return fmt.Errorf("failed to update subscription %d: %w", sub.ID, err)
				}
				o.addNote(ctx, sub.OrderID, fmt.Sprintf("Subscription %s will cancel at period end.", *sub.ProfileID))
				metrics.IncSubscription("cancel_scheduled")
				return nil
			}
			if err != nil {
				o.logger.Warn("Failed to schedule cancellation; cancelling now",
					zap.Int64("subscription_id", sub.ID),
					zap.Error(err))
			}
		}

		if _, err := o.processor.CancelSubscription(ctx, *sub.ProfileID); err != nil &&
			!processor.HasCode(err, processor.CodeResourceMissing) {
			return err
		}
	}

	now := o.now()
	sub.Status = model.SubscriptionStatusCancelled
	sub.CanceledAt = &now
	sub.CancelAtPeriodEnd = false
	sub.Note = "Subscription cancelled."
	if err := o.subscriptionRepo.Update(ctx, sub); err != nil {
		return fmt.Errorf("failed to cancel subscription %d: %w", sub.ID, err)
	}
	o.addNote(ctx, sub.OrderID, fmt.Sprintf("Subscription %d cancelled.", sub.ID))
	metrics.IncSubscription(string(sub.Status))

	o.logger.Info("Subscription cancelled", zap.Int64("subscription_id", sub.ID))
	return nil
}

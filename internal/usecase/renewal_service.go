package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/currency"
	domainErrors "github.com/wekeepgrowing/semo-course-billing/internal/domain/errors"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/model"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/processor"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/repository"
	"github.com/wekeepgrowing/semo-course-billing/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

// RenewalService records subscription cycles billed by the processor and
// keeps local subscription status in line with the remote one.
type RenewalService struct {
	processor        processor.Client
	orderRepo        repository.OrderRepository
	subscriptionRepo repository.SubscriptionRepository
	logger           *zap.Logger
	now              func() time.Time
}

func NewRenewalService(
	processorClient processor.Client,
	orderRepo repository.OrderRepository,
	subscriptionRepo repository.SubscriptionRepository,
	logger *zap.Logger,
) *RenewalService {
	return &RenewalService{
		processor:        processorClient,
		orderRepo:        orderRepo,
		subscriptionRepo: subscriptionRepo,
		logger:           logger,
		now:              time.Now,
	}
}

// renewalKey identifies the payment order of one billed cycle.
func renewalKey(invoice *stripe.Invoice) string {
	if invoice.PaymentIntent != nil && invoice.PaymentIntent.ID != "" {
		return invoice.PaymentIntent.ID
	}
	return "inv:" + invoice.ID
}

func isRenewal(invoice *stripe.Invoice) bool {
	if invoice.Subscription == nil || invoice.Subscription.ID == "" {
		return false
	}
	switch invoice.BillingReason {
	case stripe.InvoiceBillingReasonSubscriptionCycle:
		return true
	case stripe.InvoiceBillingReasonSubscriptionCreate:
		// The first cycle is recorded by CompletePayment.
		return false
	default:
		return invoice.AmountPaid > 0
	}
}

// RecordInvoicePayment creates one completed payment order for a paid
// renewal invoice. It reports whether a new cycle was recorded.
func (s *RenewalService) RecordInvoicePayment(ctx context.Context, invoice *stripe.Invoice) (bool, error) {
	if !isRenewal(invoice) {
		return false, nil
	}

	sub, err := s.subscriptionRepo.GetByProfileID(ctx, invoice.Subscription.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load subscription %s: %w", invoice.Subscription.ID, err)
	}
	if sub == nil {
		s.logger.Info("Invoice for unknown subscription",
			zap.String("invoice_id", invoice.ID),
			zap.String("profile_id", invoice.Subscription.ID))
		return false, nil
	}

	key := renewalKey(invoice)
	existing, err := s.orderRepo.GetBySourceIntentID(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to look up renewal order: %w", err)
	}
	if existing != nil {
		return false, nil
	}

	parent, err := s.orderRepo.GetByID(ctx, sub.OrderID)
	if err != nil {
		return false, fmt.Errorf("failed to load order %d: %w", sub.OrderID, err)
	}
	if parent == nil {
		return false, domainErrors.NewPaymentError(domainErrors.ErrOrderNotFound, sub.OrderID, "")
	}

	paymentOrder := renewalOrder(parent, sub, invoice, key, s.now())
	if err := s.orderRepo.Create(ctx, paymentOrder); err != nil {
		if winner, lookupErr := s.orderRepo.GetBySourceIntentID(ctx, key); lookupErr == nil && winner != nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to create renewal order: %w", err)
	}

	sub.BillTimes++
	if invoice.PeriodEnd > 0 {
		start := time.Unix(invoice.PeriodStart, 0).UTC()
		end := time.Unix(invoice.PeriodEnd, 0).UTC()
		sub.PeriodStart, sub.PeriodEnd = &start, &end
	}
	if sub.Status == model.SubscriptionStatusOnHold || sub.Status == model.SubscriptionStatusPending {
		sub.Status = model.SubscriptionStatusActive
	}
	sub.Note = fmt.Sprintf("Renewal %d paid (invoice %s).", sub.BillTimes, invoice.ID)

	if sub.InstallmentsDone() && sub.Status != model.SubscriptionStatusCompleted {
		if err := s.finishInstallments(ctx, sub); err != nil {
			return true, err
		}
	}
	if err := s.subscriptionRepo.Update(ctx, sub); err != nil {
		return true, fmt.Errorf("failed to update subscription %d: %w", sub.ID, err)
	}

	if err := s.orderRepo.AddNote(ctx, parent.ID, sub.Note); err != nil {
		s.logger.Warn("Failed to add renewal note", zap.Int64("order_id", parent.ID), zap.Error(err))
	}
	metrics.IncPayment("renewal")
	metrics.AddPaymentRevenue(string(invoice.Currency), invoice.AmountPaid)

	s.logger.Info("Renewal recorded",
		zap.Int64("order_id", parent.ID),
		zap.Int64("payment_order_id", paymentOrder.ID),
		zap.Int64("subscription_id", sub.ID),
		zap.String("invoice_id", invoice.ID),
		zap.Int("bill_times", sub.BillTimes))
	return true, nil
}

// renewalOrder builds the payment order for one cycle, limited to the
// subscription's own item and priced at what the invoice collected.
func renewalOrder(parent *model.Order, sub *model.Subscription, invoice *stripe.Invoice, key string, now time.Time) *model.Order {
	scoped := *parent
	scoped.Items = nil
	for _, item := range parent.Items {
		if item.ID == sub.OrderItemID {
			scoped.Items = append(scoped.Items, item)
		}
	}

	code := string(invoice.Currency)
	if code == "" {
		code = parent.Currency
	}
	paid := currency.FromMinorUnits(invoice.AmountPaid, code)

	paymentOrder := scoped.NewPaymentOrder(key)
	paymentOrder.Subtotal = paid
	paymentOrder.DiscountTotal = decimal.Zero
	paymentOrder.Total = paid
	for i := range paymentOrder.Items {
		paymentOrder.Items[i].Subtotal = paid
		paymentOrder.Items[i].Total = paid
		paymentOrder.Items[i].InitialDiscount = decimal.Zero
	}
	paymentOrder.Status = model.OrderStatusCompleted
	paymentOrder.PaidAt = &now
	paymentOrder.CompletedAt = &now
	if invoice.Charge != nil {
		paymentOrder.TransactionID = invoice.Charge.ID
	}
	paymentOrder.SetMeta(model.MetaInvoiceID, invoice.ID)
	paymentOrder.SetMeta(model.MetaSubscriptionID, sub.ID)
	return paymentOrder
}

// finishInstallments ends an installment plan once every installment has
// been collected.
func (s *RenewalService) finishInstallments(ctx context.Context, sub *model.Subscription) error {
	if _, err := s.processor.CancelSubscription(ctx, *sub.ProfileID); err != nil &&
		!processor.HasCode(err, processor.CodeResourceMissing) {
		return err
	}
	now := s.now()
	sub.Status = model.SubscriptionStatusCompleted
	sub.CanceledAt = &now
	sub.Note = fmt.Sprintf("All %d installments paid.", sub.InstallmentCount)
	metrics.IncSubscription(string(sub.Status))
	return nil
}

// SyncSubscription re-maps the local status from the processor's.
func (s *RenewalService) SyncSubscription(ctx context.Context, profileID string) error {
	sub, err := s.subscriptionRepo.GetByProfileID(ctx, profileID)
	if err != nil {
		return fmt.Errorf("failed to load subscription %s: %w", profileID, err)
	}
	if sub == nil || sub.Status == model.SubscriptionStatusCompleted {
		return nil
	}

	remote, err := s.processor.GetSubscription(ctx, profileID)
	if err != nil {
		if processor.HasCode(err, processor.CodeResourceMissing) {
			remote = &stripe.Subscription{ID: profileID, Status: stripe.SubscriptionStatusCanceled}
		} else {
			return err
		}
	}

	previous := sub.Status
	switch remote.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		sub.Status = model.SubscriptionStatusActive
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		sub.Status = model.SubscriptionStatusCancelled
		if sub.CanceledAt == nil {
			canceledAt := s.now()
			if remote.CanceledAt > 0 {
				canceledAt = time.Unix(remote.CanceledAt, 0).UTC()
			}
			sub.CanceledAt = &canceledAt
		}
	default:
		sub.Status = model.SubscriptionStatusOnHold
	}
	sub.CancelAtPeriodEnd = remote.CancelAtPeriodEnd
	if remote.CurrentPeriodEnd > 0 {
		start := time.Unix(remote.CurrentPeriodStart, 0).UTC()
		end := time.Unix(remote.CurrentPeriodEnd, 0).UTC()
		sub.PeriodStart, sub.PeriodEnd = &start, &end
	}

	if err := s.subscriptionRepo.Update(ctx, sub); err != nil {
		return fmt.Errorf("failed to update subscription %d: %w", sub.ID, err)
	}
	if previous != sub.Status {
		note := fmt.Sprintf("Subscription %s is now %s (processor status %s).", profileID, sub.Status, remote.Status)
		if err := s.orderRepo.AddNote(ctx, sub.OrderID, note); err != nil {
			s.logger.Warn("Failed to add subscription note", zap.Int64("order_id", sub.OrderID), zap.Error(err))
		}
		metrics.IncSubscription(string(sub.Status))
	}
	return nil
}

// ReconcileAll records paid cycles missing locally for every live
// subscription. It returns how many cycles were added.
func (s *RenewalService) ReconcileAll(ctx context.Context) (int, error) {
	subs, err := s.subscriptionRepo.ListByStatus(ctx, model.SubscriptionStatusActive, model.SubscriptionStatusOnHold)
	if err != nil {
		return 0, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	var (
		recorded int
		errs     []error
	)
	for _, sub := range subs {
		if !sub.HasProfile() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return recorded, err
		}

		params := &stripe.InvoiceListParams{
			Subscription: sub.ProfileID,
			Status:       stripe.String(string(stripe.InvoiceStatusPaid)),
		}
		invoices, err := s.processor.ListInvoices(ctx, params)
		if err != nil {
			s.logger.Warn("Failed to list invoices", zap.Int64("subscription_id", sub.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}

		// Oldest first so bill times advance in order.
		for i := len(invoices) - 1; i >= 0; i-- {
			added, err := s.RecordInvoicePayment(ctx, invoices[i])
			if err != nil {
				s.logger.Warn("Failed to record invoice",
					zap.Int64("subscription_id", sub.ID),
					zap.String("invoice_id", invoices[i].ID),
					zap.Error(err))
				errs = append(errs, err)
				break
			}
			if added {
				recorded++
			}
		}
	}

	return recorded, errors.Join(errs...)
}

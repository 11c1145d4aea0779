package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
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

// SubscriptionBuilder turns recurring course pricing into processor plans and
// subscriptions, mirrored into local subscription records.
type SubscriptionBuilder struct {
	processor        processor.Client
	subscriptionRepo repository.SubscriptionRepository
	orderRepo        repository.OrderRepository
	courseRepo       repository.CourseRepository
	stripeConfig     *config.StripeConfig
	logger           *zap.Logger
	now              func() time.Time
}

func NewSubscriptionBuilder(
	processorClient processor.Client,
	subscriptionRepo repository.SubscriptionRepository,
	orderRepo repository.OrderRepository,
	courseRepo repository.CourseRepository,
	stripeConfig *config.StripeConfig,
	logger *zap.Logger,
) *SubscriptionBuilder {
	return &SubscriptionBuilder{
		processor:        processorClient,
		subscriptionRepo: subscriptionRepo,
		orderRepo:        orderRepo,
		courseRepo:       courseRepo,
		stripeConfig:     stripeConfig,
		logger:           logger,
		now:              time.Now,
	}
}

// Build creates or re-maps one subscription per recurring item of order.
// paymentOrder is the billing attempt that pays for the first cycle.
func (b *SubscriptionBuilder) Build(ctx context.Context, order, paymentOrder *model.Order) ([]*model.Subscription, error) {
	items := order.RecurringItems()
	subscriptions := make([]*model.Subscription, 0, len(items))

	for _, item := range items {
		sub, err := b.buildItem(ctx, order, paymentOrder, item)
		if err != nil {
			return subscriptions, err
		}
		subscriptions = append(subscriptions, sub)
	}

	return subscriptions, nil
}

func (b *SubscriptionBuilder) buildItem(ctx context.Context, order, paymentOrder *model.Order, item *model.OrderItem) (*model.Subscription, error) {
	existing, err := b.subscriptionRepo.GetByOrderItemID(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription for item %d: %w", item.ID, err)
	}

	if existing != nil && existing.HasProfile() {
		remote, err := b.processor.GetSubscription(ctx, *existing.ProfileID)
		if err != nil {
			return nil, err
		}
		if err := b.applyRemote(ctx, order, existing, remote); err != nil {
			return nil, err
		}
		return existing, nil
	}

	if order.CustomerID == "" {
		return nil, domainErrors.NewPaymentError(domainErrors.ErrMissingCustomer, order.ID, "")
	}

	pricing, err := b.courseRepo.GetPricing(ctx, item.CourseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pricing for course %d: %w", item.CourseID, err)
	}
	if pricing == nil || !pricing.Recurring {
		return nil, domainErrors.NewPaymentError(domainErrors.ErrCourseNotRecurring, order.ID,
			fmt.Sprintf("course %d is not configured for recurring billing", item.CourseID))
	}

	planInterval, planCount, err := NormalizeInterval(pricing.BillingInterval, pricing.BillingIntervalCount)
	if err != nil {
		return nil, domainErrors.NewPaymentError(domainErrors.ErrCourseNotRecurring, order.ID, err.Error())
	}

	storeCurrency := order.Currency
	if storeCurrency == "" {
		storeCurrency = b.stripeConfig.StoreCurrency()
	}

	plan, err := b.resolvePlan(ctx, item, pricing, storeCurrency, planInterval, planCount)
	if err != nil {
		return nil, err
	}

	sub := existing
	if sub == nil {
		// Recorded before the remote call so a crash leaves a row the next
		// attempt resumes with the same idempotency key.
		sub = &model.Subscription{
			OrderID:     order.ID,
			OrderItemID: item.ID,
			StudentID:   order.StudentID,
			CourseID:    item.CourseID,
			Status:      model.SubscriptionStatusPending,
		}
	}
	sub.PlanID = plan.ID
	sub.CustomerID = order.CustomerID
	sub.BillingInterval, sub.BillingIntervalCount = DenormalizeInterval(plan.Interval, plan.IntervalCount)
	sub.Currency = strings.ToUpper(storeCurrency)
	sub.InitialAmount = item.Total
	sub.RecurringAmount = item.Total
	if plan.Amount > 0 {
		sub.RecurringAmount = currency.FromMinorUnits(plan.Amount, storeCurrency)
	}
	sub.Installment = item.Installment || pricing.IsInstallment()
	sub.InstallmentCount = pricing.InstallmentCount

	if sub.ID == 0 {
		sub.CreatedAt = b.now()
		if err := b.subscriptionRepo.Create(ctx, sub); err != nil {
			return nil, fmt.Errorf("failed to create subscription record: %w", err)
		}
	}

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(order.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Plan: stripe.String(plan.ID)},
		},
		OffSession: stripe.Bool(true),
	}
	if order.SourceID != "" {
		params.DefaultPaymentMethod = stripe.String(order.SourceID)
	}

	// Anchored on the stored row so a retry under the same idempotency key
	// sends the same trial end.
	anchor := sub.CreatedAt
	if anchor.IsZero() {
		anchor = b.now()
	}
	trialEnd, err := TrialEnd(anchor, sub.BillingInterval, sub.BillingIntervalCount, pricing.TrialDays)
	if err != nil {
		return nil, domainErrors.NewPaymentError(domainErrors.ErrCourseNotRecurring, order.ID, err.Error())
	}
	params.TrialEnd = stripe.Int64(trialEnd.Unix())

	if item.InitialDiscount.GreaterThan(decimal.Zero) {
		couponID, err := b.ensureCoupon(ctx, order, item, storeCurrency)
		if err != nil {
			return nil, err
		}
		params.Discounts = []*stripe.SubscriptionDiscountParams{
			{Coupon: stripe.String(couponID)},
		}
	}

	params.AddMetadata(metaOrderID, strconv.FormatInt(order.ID, 10))
	params.AddMetadata(metaItemID, strconv.FormatInt(item.ID, 10))
	params.AddMetadata(metaStudentID, order.StudentID.String())
	if paymentOrder != nil {
		params.AddMetadata("payment_order_id", strconv.FormatInt(paymentOrder.ID, 10))
	}

	remote, err := b.processor.CreateSubscription(ctx, params,
		idempotencyKey("subscription", order.ID, item.ID, sub.ID))
	if err != nil {
		return nil, err
	}

	if err := sub.SetProfileID(remote.ID); err != nil {
		return nil, fmt.Errorf("failed to bind subscription %d: %w", sub.ID, err)
	}
	sub.BillTimes++

	b.logger.Info("Subscription created",
		zap.Int64("order_id", order.ID),
		zap.Int64("order_item_id", item.ID),
		zap.String("profile_id", remote.ID),
		zap.String("plan_id", plan.ID),
		zap.Int("bill_times", sub.BillTimes))

	if err := b.applyRemote(ctx, order, sub, remote); err != nil {
		return nil, err
	}
	return sub, nil
}

// applyRemote re-derives the local status from the remote subscription and
// persists the record.
func (b *SubscriptionBuilder) applyRemote(ctx context.Context, order *model.Order, sub *model.Subscription, remote *stripe.Subscription) error {
	if remote.CurrentPeriodStart > 0 {
		start := time.Unix(remote.CurrentPeriodStart, 0).UTC()
		sub.PeriodStart = &start
	}
	if remote.CurrentPeriodEnd > 0 {
		end := time.Unix(remote.CurrentPeriodEnd, 0).UTC()
		sub.PeriodEnd = &end
	}
	sub.CancelAtPeriodEnd = remote.CancelAtPeriodEnd

	var note string
	switch remote.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		sub.Status = model.SubscriptionStatusActive
		note = fmt.Sprintf("Subscription %s activated.", remote.ID)
	default:
		sub.Status = model.SubscriptionStatusOnHold
		note = fmt.Sprintf("Subscription %s is awaiting payment (processor status %s).", remote.ID, remote.Status)
	}
	sub.Note = note

	if err := b.subscriptionRepo.Update(ctx, sub); err != nil {
		return fmt.Errorf("failed to update subscription %d: %w", sub.ID, err)
	}
	if err := b.orderRepo.AddNote(ctx, order.ID, note); err != nil {
		b.logger.Warn("Failed to add subscription note", zap.Int64("order_id", order.ID), zap.Error(err))
	}
	metrics.IncSubscription(string(sub.Status))
	return nil
}

// resolvePlan finds the plan for item or creates it. Lookup failures never
// abort the purchase; they fall through to creation.
func (b *SubscriptionBuilder) resolvePlan(
	ctx context.Context,
	item *model.OrderItem,
	pricing *model.CoursePricing,
	storeCurrency string,
	interval stripe.PlanInterval,
	intervalCount int64,
) (*stripe.Plan, error) {
	amount := pricing.RecurringAmount
	if amount.IsZero() {
		amount = item.Total
	}
	minorAmount := currency.ToMinorUnits(amount, storeCurrency)

	var installmentAmount int64
	if pricing.IsInstallment() {
		installmentAmount = minorAmount
	}
	planID := PlanID(item.Title, pricing.BillingInterval, pricing.BillingIntervalCount, pricing.InstallmentCount, installmentAmount)

	plan, err := b.processor.GetPlan(ctx, planID)
	if err == nil && !strings.EqualFold(string(plan.Currency), storeCurrency) {
		planID = currencyPlanID(planID, storeCurrency)
		plan, err = b.processor.GetPlan(ctx, planID)
	}
	if err == nil && strings.EqualFold(string(plan.Currency), storeCurrency) {
		return plan, nil
	}
	if err != nil && !processor.HasCode(err, processor.CodeResourceMissing) {
		b.logger.Warn("Plan lookup failed, creating plan",
			zap.String("plan_id", planID),
			zap.Error(err))
	}

	productID, err := b.ensureProduct(ctx, planID, item)
	if err != nil {
		return nil, err
	}

	planParams := &stripe.PlanParams{
		ID:            stripe.String(planID),
		Amount:        stripe.Int64(minorAmount),
		Currency:      stripe.String(currency.Normalize(storeCurrency)),
		Interval:      stripe.String(string(interval)),
		IntervalCount: stripe.Int64(intervalCount),
		Product:       &stripe.PlanProductParams{ID: stripe.String(productID)},
	}
	planParams.AddMetadata("course_id", strconv.FormatInt(item.CourseID, 10))
	if pricing.IsInstallment() {
		planParams.AddMetadata("installments", strconv.Itoa(pricing.InstallmentCount))
	}

	plan, err = b.processor.CreatePlan(ctx, planParams)
	if processor.HasCode(err, processor.CodeResourceAlreadyExists) {
		return b.processor.GetPlan(ctx, planID)
	}
	if err != nil {
		return nil, err
	}

	b.logger.Info("Plan created",
		zap.String("plan_id", plan.ID),
		zap.Int64("amount", minorAmount),
		zap.String("currency", storeCurrency))
	return plan, nil
}

func (b *SubscriptionBuilder) ensureProduct(ctx context.Context, productID string, item *model.OrderItem) (string, error) {
	params := &stripe.ProductParams{
		ID:   stripe.String(productID),
		Name: stripe.String(item.Title),
	}
	params.AddMetadata("course_id", strconv.FormatInt(item.CourseID, 10))

	product, err := b.processor.CreateProduct(ctx, params)
	if processor.HasCode(err, processor.CodeResourceAlreadyExists) {
		return productID, nil
	}
	if err != nil {
		return "", err
	}
	return product.ID, nil
}

// ensureCoupon creates the single-use coupon carrying the item's one-time
// discount. Coupons are scoped to one order item and never shared.
func (b *SubscriptionBuilder) ensureCoupon(ctx context.Context, order *model.Order, item *model.OrderItem, storeCurrency string) (string, error) {
	couponID := fmt.Sprintf("order-%d-item-%d", order.ID, item.ID)

	_, err := b.processor.CreateCoupon(ctx, &stripe.CouponParams{
		ID:             stripe.String(couponID),
		AmountOff:      stripe.Int64(currency.ToMinorUnits(item.InitialDiscount, storeCurrency)),
		Currency:       stripe.String(currency.Normalize(storeCurrency)),
		Duration:       stripe.String(string(stripe.CouponDurationOnce)),
		MaxRedemptions: stripe.Int64(1),
	})
	if err != nil && !processor.HasCode(err, processor.CodeResourceAlreadyExists) {
		return "", err
	}
	return couponID, nil
}

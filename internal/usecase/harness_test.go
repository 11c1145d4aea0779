package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wekeepgrowing/semo-course-billing/internal/config"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/model"
	"go.uber.org/zap"
)

type harness struct {
	proc         *fakeProcessor
	store        *memoryStore
	notifier     *mockNotifier
	cfg          *config.Config
	builder      *SubscriptionBuilder
	orchestrator *PaymentOrchestrator
	renewals     *RenewalService
	now          time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	proc := newFakeProcessor()
	store := newMemoryStore()

	notifier := new(mockNotifier)
	notifier.On("OrderFailed", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	notifier.On("OrderCompleted", mock.Anything, mock.Anything).Return(nil).Maybe()
	notifier.On("ClearCart", mock.Anything, mock.Anything).Return(nil).Maybe()

	cfg := &config.Config{
		Service: config.ServiceConfig{ClientURL: "https://learn.example.com/"},
		Stripe: config.StripeConfig{
			Mode:                config.StripeModeTest,
			TestSecretKey:       "sk_test_123",
			Currency:            "USD",
			StatementDescriptor: `Semo "Courses"`,
		},
	}

	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	builder := NewSubscriptionBuilder(proc, subscriptionRepo{store}, orderRepo{store}, courseRepo{store}, &cfg.Stripe, zap.NewNop())
	builder.now = clock

	orchestrator := NewPaymentOrchestrator(proc, builder, orderRepo{store}, subscriptionRepo{store}, customerRepo{store},
		cfg, zap.NewNop(), WithNotifier(notifier))
	orchestrator.now = clock

	renewals := NewRenewalService(proc, orderRepo{store}, subscriptionRepo{store}, zap.NewNop())
	renewals.now = clock

	return &harness{
		proc:         proc,
		store:        store,
		notifier:     notifier,
		cfg:          cfg,
		builder:      builder,
		orchestrator: orchestrator,
		renewals:     renewals,
		now:          now,
	}
}

func item(courseID int64, title, total string, recurring bool) model.OrderItem {
	amount := decimal.RequireFromString(total)
	return model.OrderItem{
		CourseID:  courseID,
		Title:     title,
		Quantity:  1,
		Subtotal:  amount,
		Total:     amount,
		Recurring: recurring,
	}
}

// seedOrder stores a pending order whose total is the sum of its items.
func (h *harness) seedOrder(t *testing.T, currencyCode string, items ...model.OrderItem) *model.Order {
	t.Helper()
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Total)
	}
	order := &model.Order{
		OrderKey:  model.NewOrderKey(),
		Kind:      model.OrderKindOrder,
		StudentID: uuid.New(),
		Status:    model.OrderStatusPending,
		Currency:  currencyCode,
		Subtotal:  total,
		Total:     total,
		Items:     items,
	}
	require.NoError(t, orderRepo{h.store}.Create(context.Background(), order))
	return h.store.order(order.ID)
}

func (h *harness) monthlyPricing(courseID int64, title, amount string) {
	h.store.pricing[courseID] = &model.CoursePricing{
		CourseID:             courseID,
		Title:                title,
		Recurring:            true,
		BillingInterval:      IntervalMonth,
		BillingIntervalCount: 1,
		RecurringAmount:      decimal.RequireFromString(amount),
	}
}

// setTotal changes an order's total after checkout, as a cart edit would.
func (h *harness) setTotal(t *testing.T, orderID int64, total string) {
	t.Helper()
	order := h.store.order(orderID)
	order.Total = decimal.RequireFromString(total)
	order.Subtotal = order.Total
	require.NoError(t, orderRepo{h.store}.Update(context.Background(), order))
}

func card() PaymentRequest {
	return PaymentRequest{PaymentMethodID: "pm_card", Email: "student@example.com"}
}

package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	domainErrors "github.com/wekeepgrowing/semo-course-billing/internal/domain/errors"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/model"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/processor"
)

func TestProcessPayment_NotConfigured(t *testing.T) {
	h := newHarness(t)
	h.proc.unconfigured = true
	order := h.seedOrder(t, "USD", item(1, "Go Basics", "19.99", false))

	result, err := h.orchestrator.ProcessPayment(context.Background(), order.ID, card())

	assert.Nil(t, result)
	assert.ErrorIs(t, err, domainErrors.ErrNotConfigured)
	assert.Zero(t, h.proc.total())
}

func TestProcessPayment_RejectsBeforeProcessorCalls(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.orchestrator.ProcessPayment(ctx, 999, card())
	assert.ErrorIs(t, err, domainErrors.ErrOrderNotFound)

	order := h.seedOrder(t, "USD", item(1, "Go Basics", "19.99", false))
	_, err = h.orchestrator.ProcessPayment(ctx, order.ID, PaymentRequest{})
	assert.ErrorIs(t, err, domainErrors.ErrMissingPaymentMethod)

	paid := h.seedOrder(t, "USD", item(1, "Go Basics", "19.99", false))
	paid.Status = model.OrderStatusCompleted
	require.NoError(t, orderRepo{h.store}.Update(ctx, paid))
	_, err = h.orchestrator.ProcessPayment(ctx, paid.ID, card())
	assert.ErrorIs(t, err, domainErrors.ErrOrderAlreadyPaid)

	assert.Zero(t, h.proc.total())
}

func TestProcessPayment_ZeroTotalCompletesWithoutIntent(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, "USD", item(1, "Free Intro", "0", false))

	result, err := h.orchestrator.ProcessPayment(context.Background(), order.ID, card())
	require.NoError(t, err)

	assert.Equal(t, ResultSuccess, result.Result)
	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, fmt.Sprintf("https://learn.example.com/orders/%d/received", order.ID), result.RedirectURL)
	assert.Equal(t, model.OrderStatusCompleted, h.store.order(order.ID).Status)

	assert.Zero(t, h.proc.count("CreatePaymentIntent"))
	assert.Zero(t, h.proc.count("CreateSetupIntent"))
	assert.Zero(t, h.proc.count("CapturePaymentIntent"))
	h.notifier.AssertNumberOfCalls(t, "OrderCompleted", 1)
	h.notifier.AssertNumberOfCalls(t, "ClearCart", 1)
}

func TestProcessPayment_MinimumAmount(t *testing.T) {
	tests := []struct {
		name    string
		total   string
		wantErr bool
	}{
		{"below minimum", "0.49", true},
		{"at minimum", "0.50", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			order := h.seedOrder(t, "USD", item(1, "Go Basics", tt.total, false))

			result, err := h.orchestrator.ProcessPayment(context.Background(), order.ID, card())

			if tt.wantErr {
				assert.ErrorIs(t, err, domainErrors.ErrAmountBelowMinimum)
				assert.Zero(t, h.proc.count("CreatePaymentIntent"))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ResultSuccess, result.Result)
			assert.Equal(t, StateIntentCreated, result.State)
			assert.Equal(t, 1, h.proc.count("CreatePaymentIntent"))
		})
	}
}

func TestProcessPayment_CreatesPaymentIntent(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, "USD", item(1, "Go Basics", "19.99", false))

	result, err := h.orchestrator.ProcessPayment(context.Background(), order.ID, card())
	require.NoError(t, err)
	require.NotNil(t, result.Token)

	assert.Equal(t, IntentKindPayment, result.Token.Kind)
	assert.Equal(t, result.Token.IntentID+"_secret", result.Token.ClientSecret)
	assert.Equal(t, order.ID, result.Token.OrderID)

	params := h.proc.lastIntentParams
	assert.Equal(t, int64(1999), stripe.Int64Value(params.Amount))
	assert.Equal(t, "usd", stripe.StringValue(params.Currency))
	assert.True(t, stripe.BoolValue(params.Confirm))
	assert.Equal(t, string(stripe.PaymentIntentCaptureMethodAutomatic), stripe.StringValue(params.CaptureMethod))
	assert.Nil(t, params.SetupFutureUsage)
	assert.Equal(t, "Semo Courses", stripe.StringValue(params.StatementDescriptorSuffix))
	assert.Equal(t, fmt.Sprint(order.ID), params.Metadata["order_id"])
	assert.Equal(t, order.OrderKey, params.Metadata["order_key"])

	stored := h.store.order(order.ID)
	assert.Equal(t, result.Token.IntentID, stored.ActiveIntentID)
	assert.Equal(t, "pm_card", stored.SourceID)
	assert.NotEmpty(t, stored.CustomerID)
	assert.Equal(t, model.OrderStatusPending, stored.Status)

	mapping, err := customerRepo{h.store}.GetByStudentID(context.Background(), order.StudentID)
	require.NoError(t, err)
	require.NotNil(t, mapping)
	assert.Equal(t, stored.CustomerID, mapping.ProcessorCustomerID)

	assert.Zero(t, h.proc.count("AttachPaymentMethod"))
}

func TestProcessPayment_RecurringUsesManualCapture(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, "USD", item(7, "Monthly Mentoring", "29.00", true))

	result, err := h.orchestrator.ProcessPayment(context.Background(), order.ID, card())
	require.NoError(t, err)
	assert.Equal(t, ResultSuccess, result.Result)

	params := h.proc.lastIntentParams
	assert.Equal(t, string(stripe.PaymentIntentCaptureMethodManual), stripe.StringValue(params.CaptureMethod))
	assert.Equal(t, string(stripe.PaymentIntentSetupFutureUsageOffSession), stripe.StringValue(params.SetupFutureUsage))
	assert.Equal(t, 1, h.proc.count("AttachPaymentMethod"))
	assert.Equal(t, 1, h.proc.count("UpdateCustomer"))
}

func TestProcessPayment_ZeroTotalRecurringCreatesSetupIntent(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, "USD", item(7, "Monthly Mentoring", "0", true))

	result, err := h.orchestrator.ProcessPayment(context.Background(), order.ID, card())
	require.NoError(t, err)

	require.NotNil(t, result.Token)
	assert.Equal(t, IntentKindSetup, result.Token.Kind)
	assert.Equal(t, 1, h.proc.count("CreateSetupIntent"))
	assert.Zero(t, h.proc.count("CreatePaymentIntent"))
}

func TestProcessPayment_PrepaidCards(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, "USD", item(1, "Go Basics", "19.99", false))
	req := PaymentRequest{PaymentMethodID: "pm_prepaid"}

	_, err := h.orchestrator.ProcessPayment(context.Background(), order.ID, req)
	assert.ErrorIs(t, err, domainErrors.ErrPrepaidCardNotAllowed)
	assert.Zero(t, h.proc.count("CreatePaymentIntent"))

	h.cfg.Stripe.AllowPrepaidCards = true
	result, err := h.orchestrator.ProcessPayment(context.Background(), order.ID, req)
	require.NoError(t, err)
	assert.Equal(t, ResultSuccess, result.Result)
}

func TestProcessPayment_CardDeclined(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.seedOrder(t, "USD", item(1, "Go Basics", "19.99", false))
	h.proc.fail("CreatePaymentIntent", cardDeclined())

	result, err := h.orchestrator.ProcessPayment(ctx, order.ID, card())
	require.NoError(t, err)

	assert.Equal(t, ResultFailure, result.Result)
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, "Your card has insufficient funds.", result.Message)
	require.NotNil(t, result.Error)
	assert.Equal(t, "insufficient_funds", result.Error.DeclineCode)

	stored := h.store.order(order.ID)
	assert.Equal(t, model.OrderStatusFailed, stored.Status)
	assert.Empty(t, stored.ActiveIntentID)
	assert.Contains(t, h.store.notes[order.ID], "Payment failed: Your card has insufficient funds.")
	h.notifier.AssertCalled(t, "OrderFailed", mock.Anything, mock.Anything, "Your card has insufficient funds.")

	// The order stays retryable with a fresh idempotency key.
	result, err = h.orchestrator.ProcessPayment(ctx, order.ID, card())
	require.NoError(t, err)
	assert.Equal(t, ResultSuccess, result.Result)
	assert.Equal(t, model.OrderStatusPending, h.store.order(order.ID).Status)
	assert.Equal(t, 2, h.proc.count("CreatePaymentIntent"))
}

func TestProcessPayment_TransientErrorShowsGenericMessage(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, "USD", item(1, "Go Basics", "19.99", false))
	h.proc.fail("GetPaymentMethod", &processor.Error{Type: processor.ErrorTypeConnection, Message: "dial tcp: timeout"})

	result, err := h.orchestrator.ProcessPayment(context.Background(), order.ID, card())
	require.NoError(t, err)

	assert.Equal(t, ResultFailure, result.Result)
	assert.Equal(t, processor.GenericMessage, result.Message)
	assert.Equal(t, model.OrderStatusFailed, h.store.order(order.ID).Status)
}

func TestProcessPayment_ReusesUnchangedIntent(t *testing.T) {
	h := newHarness(t)
	h.proc.confirmStatus = stripe.PaymentIntentStatusRequiresAction
	order := h.seedOrder(t, "USD", item(1, "Go Basics", "19.99", false))

	first, err := h.orchestrator.ProcessPayment(context.Background(), order.ID, card())
	require.NoError(t, err)
	second, err := h.orchestrator.ProcessPayment(context.Background(), order.ID, card())
	require.NoError(t, err)

	assert.Equal(t, StateIntentReused, second.State)
	assert.Equal(t, first.Token.IntentID, second.Token.IntentID)
	assert.Equal(t, 1, h.proc.count("CreatePaymentIntent"))
	assert.Zero(t, h.proc.count("UpdatePaymentIntent"))
}

func TestProcessPayment_IntentReconciliation(t *testing.T) {
	tests := []struct {
		name          string
		confirmStatus stripe.PaymentIntentStatus
		updateErr     error
		wantUpdates   int
		wantCancels   int
		wantCreates   int
	}{
		{
			name:          "mutable intent is patched",
			confirmStatus: stripe.PaymentIntentStatusRequiresAction,
			wantUpdates:   1,
			wantCreates:   1,
		},
		{
			name:          "immutable intent is replaced",
			confirmStatus: stripe.PaymentIntentStatusProcessing,
			wantCancels:   1,
			wantCreates:   2,
		},
		{
			name:          "unexpected state on update is replaced",
			confirmStatus: stripe.PaymentIntentStatusRequiresConfirmation,
			updateErr: &processor.Error{
				Type: processor.ErrorTypeInvalidRequest,
				Code: processor.CodePaymentIntentUnexpectedState,
			},
			wantUpdates: 1,
			wantCancels: 1,
			wantCreates: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			h.proc.confirmStatus = tt.confirmStatus
			order := h.seedOrder(t, "USD", item(1, "Go Basics", "19.99", false))

			first, err := h.orchestrator.ProcessPayment(ctx, order.ID, card())
			require.NoError(t, err)

			h.setTotal(t, order.ID, "25.00")
			if tt.updateErr != nil {
				h.proc.fail("UpdatePaymentIntent", tt.updateErr)
			}

			second, err := h.orchestrator.ProcessPayment(ctx, order.ID, card())
			require.NoError(t, err)
			assert.Equal(t, ResultSuccess, second.Result)

			assert.Equal(t, tt.wantUpdates, h.proc.count("UpdatePaymentIntent"))
			assert.Equal(t, tt.wantCancels, h.proc.count("CancelPaymentIntent"))
			assert.Equal(t, tt.wantCreates, h.proc.count("CreatePaymentIntent"))

			if tt.wantCreates == 1 {
				assert.Equal(t, first.Token.IntentID, second.Token.IntentID)
				update := h.proc.lastIntentUpdate
				assert.Equal(t, int64(2500), stripe.Int64Value(update.Amount))
				assert.Nil(t, update.PaymentMethod)
				assert.Nil(t, update.Customer)
			} else {
				assert.NotEqual(t, first.Token.IntentID, second.Token.IntentID)
				assert.Equal(t, stripe.PaymentIntentStatusCanceled, h.proc.paymentIntents[first.Token.IntentID].Status)
			}
			assert.Equal(t, second.Token.IntentID, h.store.order(order.ID).ActiveIntentID)
		})
	}
}

func TestProcessPayment_SucceededIntentAmountIsLocked(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, "USD", item(1, "Go Basics", "19.99", false))

	_, err := h.orchestrator.ProcessPayment(context.Background(), order.ID, card())
	require.NoError(t, err)

	h.setTotal(t, order.ID, "25.00")
	_, err = h.orchestrator.ProcessPayment(context.Background(), order.ID, card())

	assert.ErrorIs(t, err, domainErrors.ErrIntentAmountLocked)
	assert.Equal(t, 1, h.proc.count("CreatePaymentIntent"))
	assert.Zero(t, h.proc.count("CancelPaymentIntent"))
}

func TestProcessPayment_MissingIntentIsRecreated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.seedOrder(t, "USD", item(1, "Go Basics", "19.99", false))
	order.ActiveIntentID = "pi_gone"
	require.NoError(t, orderRepo{h.store}.Update(ctx, order))

	result, err := h.orchestrator.ProcessPayment(ctx, order.ID, card())
	require.NoError(t, err)

	assert.Equal(t, StateIntentCreated, result.State)
	assert.NotEqual(t, "pi_gone", result.Token.IntentID)
	assert.Zero(t, h.proc.count("CancelPaymentIntent"))
}

func TestProcessPayment_KindSwitchCancelsSetupIntent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.seedOrder(t, "USD", item(7, "Monthly Mentoring", "0", true))

	first, err := h.orchestrator.ProcessPayment(ctx, order.ID, card())
	require.NoError(t, err)
	require.Equal(t, IntentKindSetup, first.Token.Kind)

	h.setTotal(t, order.ID, "29.00")
	second, err := h.orchestrator.ProcessPayment(ctx, order.ID, card())
	require.NoError(t, err)

	assert.Equal(t, IntentKindPayment, second.Token.Kind)
	assert.Equal(t, 1, h.proc.count("CancelSetupIntent"))
	assert.Equal(t, 1, h.proc.count("CreatePaymentIntent"))
}

type descriptorModifier struct{}

func (descriptorModifier) ModifyPaymentIntent(order *model.Order, params *stripe.PaymentIntentParams) {
	params.Description = stripe.String("Order " + order.OrderKey)
}

func (descriptorModifier) ModifySetupIntent(*model.Order, *stripe.SetupIntentParams) {}

func TestProcessPayment_IntentArgsModifier(t *testing.T) {
	h := newHarness(t)
	WithIntentArgsModifier(descriptorModifier{})(h.orchestrator)
	order := h.seedOrder(t, "USD", item(1, "Go Basics", "19.99", false))

	_, err := h.orchestrator.ProcessPayment(context.Background(), order.ID, card())
	require.NoError(t, err)

	assert.Equal(t, "Order "+order.OrderKey, stripe.StringValue(h.proc.lastIntentParams.Description))
}

func TestProcessPayment_ZeroDecimalCurrency(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, "JPY", item(1, "Go Basics", "500", false))

	_, err := h.orchestrator.ProcessPayment(context.Background(), order.ID, card())
	require.NoError(t, err)

	assert.Equal(t, int64(500), stripe.Int64Value(h.proc.lastIntentParams.Amount))
	assert.Equal(t, "jpy", stripe.StringValue(h.proc.lastIntentParams.Currency))
	assert.True(t, decimal.RequireFromString("500").Equal(h.store.order(order.ID).Total))
}

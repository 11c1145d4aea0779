package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/model"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/processor"
)

// PaymentState is the position of one purchase attempt in the payment flow.
type PaymentState string

const (
	StateInit           PaymentState = "INIT"
	StateSourcePrepared PaymentState = "SOURCE_PREPARED"
	StateIntentCreated  PaymentState = "INTENT_CREATED"
	StateIntentReused   PaymentState = "INTENT_REUSED"
	StateConfirmed      PaymentState = "CONFIRMED"
	StateCompleted      PaymentState = "COMPLETED"
	StateOnHold         PaymentState = "ON_HOLD"
	StateFailed         PaymentState = "FAILED"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// IntentKind tells the client which confirmation call to make.
type IntentKind string

const (
	IntentKindPayment IntentKind = "payment_intent"
	IntentKindSetup   IntentKind = "setup_intent"
)

func intentKindOf(intentID string) IntentKind {
	if strings.HasPrefix(intentID, "seti_") {
		return IntentKindSetup
	}
	return IntentKindPayment
}

// Intent metadata keys.
const (
	metaOrderID   = "order_id"
	metaOrderKey  = "order_key"
	metaStudentID = "student_id"
	metaItemID    = "order_item_id"
)

// PaymentRequest is what the student submits at checkout.
type PaymentRequest struct {
	PaymentMethodID   string `json:"payment_method_id" validate:"required,startswith=pm_"`
	SavePaymentMethod bool   `json:"save_payment_method"`
	Email             string `json:"email" validate:"omitempty,email"`
	Name              string `json:"name" validate:"omitempty,max=255"`
}

// ContinuationToken lets the client confirm the intent.
type ContinuationToken struct {
	IntentID     string     `json:"intent_id"`
	ClientSecret string     `json:"client_secret"`
	OrderID      int64      `json:"order_id"`
	Kind         IntentKind `json:"kind"`

	// PublishableKey is the key the client confirms with.
	PublishableKey string `json:"publishable_key,omitempty"`
}

// PaymentResult is returned by ProcessPayment. Processor failures are
// reported here with Result set to failure.
type PaymentResult struct {
	Result      string             `json:"result"`
	State       PaymentState       `json:"state"`
	OrderID     int64              `json:"order_id"`
	Token       *ContinuationToken `json:"token,omitempty"`
	RedirectURL string             `json:"redirect_url,omitempty"`
	Message     string             `json:"message,omitempty"`
	Error       *processor.Error   `json:"-"`
}

// CompletionResult is returned once a confirmed intent has been recorded.
type CompletionResult struct {
	OrderID        int64                 `json:"order_id"`
	PaymentOrderID int64                 `json:"payment_order_id"`
	Status         model.OrderStatus     `json:"status"`
	State          PaymentState          `json:"state"`
	RedirectURL    string                `json:"redirect_url"`
	Subscriptions  []*model.Subscription `json:"subscriptions,omitempty"`
}

// RefundRequest refunds the whole charge when Amount is nil.
type RefundRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Reason string           `json:"reason" validate:"omitempty,oneof=duplicate fraudulent requested_by_customer"`
}

type RefundResult struct {
	OrderID         int64             `json:"order_id"`
	RefundID        string            `json:"refund_id,omitempty"`
	Status          model.OrderStatus `json:"status"`
	AlreadyRefunded bool              `json:"already_refunded"`
}

// Notifier receives order side effects. Failures are logged and never undo
// a payment.
type Notifier interface {
	OrderFailed(ctx context.Context, order *model.Order, reason string) error
	OrderCompleted(ctx context.Context, order *model.Order) error
	ClearCart(ctx context.Context, studentID uuid.UUID) error
}

// IntentArgsModifier may adjust intent parameters right before creation.
type IntentArgsModifier interface {
	ModifyPaymentIntent(order *model.Order, params *stripe.PaymentIntentParams)
	ModifySetupIntent(order *model.Order, params *stripe.SetupIntentParams)
}

// idempotencyNamespace seeds deterministic processor idempotency keys.
var idempotencyNamespace = uuid.MustParse("0b8f6d8e-5a43-5c61-8f0e-2c7d9e4b1a36")

func idempotencyKey(parts ...interface{}) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte('|')
		}
		fmt.Fprint(&b, p)
	}
	return uuid.NewSHA1(idempotencyNamespace, []byte(b.String())).String()
}

type nopNotifier struct{}

func (nopNotifier) OrderFailed(context.Context, *model.Order, string) error { return nil }
func (nopNotifier) OrderCompleted(context.Context, *model.Order) error      { return nil }
func (nopNotifier) ClearCart(context.Context, uuid.UUID) error              { return nil }

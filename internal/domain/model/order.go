package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// OrderKind distinguishes a checkout order from a single billing attempt.
type OrderKind string

const (
	OrderKindOrder        OrderKind = "order"
	OrderKindPaymentOrder OrderKind = "payment_order"
)

const orderKeyAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Order metadata keys written by the payment flow.
const (
	MetaProcessorFee      = "_processor_fee"
	MetaProcessorNet      = "_processor_net"
	MetaProcessorAmount   = "_processor_amount"
	MetaProcessorCurrency = "_processor_currency"
	MetaChargeCaptured    = "_charge_captured"
	MetaParentOrderID     = "_parent_order_id"
	MetaInvoiceID         = "_invoice_id"
	MetaSubscriptionID    = "_subscription_id"
	MetaPaymentAttempt    = "_payment_attempt"
	MetaRefundCount       = "_refund_count"
)

// Order is a checkout order. Payment orders (Kind payment_order) represent
// exactly one billing attempt of their parent and carry SourceIntentID.
type Order struct {
	ID        int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderKey  string      `gorm:"size:32;uniqueIndex;not null" json:"order_key"`
	ParentID  *int64      `gorm:"index" json:"parent_id,omitempty"`
	Kind      OrderKind   `gorm:"size:20;not null;default:'order'" json:"kind"`
	StudentID uuid.UUID   `gorm:"type:uuid;not null;index" json:"student_id"`
	Status    OrderStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`

	Currency      string          `gorm:"size:3;not null" json:"currency"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"subtotal"`
	DiscountTotal decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"discount_total"`
	Total         decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"total"`

	CustomerID     string  `gorm:"column:processor_customer_id;size:100" json:"customer_id,omitempty"`
	SourceID       string  `gorm:"column:processor_source_id;size:100" json:"source_id,omitempty"`
	ActiveIntentID string  `gorm:"size:100;index" json:"active_intent_id,omitempty"`
	SourceIntentID *string `gorm:"size:100;uniqueIndex" json:"source_intent_id,omitempty"`
	TransactionID  string  `gorm:"size:100;index" json:"transaction_id,omitempty"`

	Metadata    datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	PaidAt      *time.Time        `json:"paid_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	CreatedAt   time.Time         `gorm:"default:now()" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"default:now()" json:"updated_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	Notes []OrderNote `gorm:"foreignKey:OrderID" json:"notes,omitempty"`
}

// TableName specifies the table name for GORM
func (Order) TableName() string {
	return "orders"
}

// OrderItem is one purchased course line.
type OrderItem struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID  int64  `gorm:"index;not null" json:"order_id"`
	CourseID int64  `gorm:"index;not null" json:"course_id"`
	Title    string `gorm:"size:255;not null" json:"title"`
	Quantity int    `gorm:"not null;default:1" json:"quantity"`

	Subtotal decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"subtotal"`
	Total    decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"total"`

	Recurring   bool `gorm:"not null;default:false" json:"recurring"`
	Installment bool `gorm:"not null;default:false" json:"installment"`
	// InitialDiscount is taken off the first invoice of the subscription only.
	InitialDiscount decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"initial_discount"`
}

// TableName specifies the table name for GORM
func (OrderItem) TableName() string {
	return "order_items"
}

// OrderNote is an audit line attached to an order.
type OrderNote struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   int64     `gorm:"index;not null" json:"order_id"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `gorm:"default:now()" json:"created_at"`
}

// TableName specifies the table name for GORM
func (OrderNote) TableName() string {
	return "order_notes"
}

// NewOrderKey returns a random public order reference.
func NewOrderKey() string {
	return "ord_" + gonanoid.MustGenerate(orderKeyAlphabet, 20)
}

func (o *Order) IsPaymentOrder() bool {
	return o.Kind == OrderKindPaymentOrder
}

// RecurringItems returns the items billed through a subscription.
func (o *Order) RecurringItems() []*OrderItem {
	var items []*OrderItem
	for i := range o.Items {
		if o.Items[i].Recurring {
			items = append(items, &o.Items[i])
		}
	}
	return items
}

func (o *Order) HasRecurringItems() bool {
	return len(o.RecurringItems()) > 0
}

// MetaString returns a metadata value as a string.
func (o *Order) MetaString(key string) string {
	if o.Metadata == nil {
		return ""
	}
	switch v := o.Metadata[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (o *Order) SetMeta(key string, value interface{}) {
	if o.Metadata == nil {
		o.Metadata = datatypes.JSONMap{}
	}
	o.Metadata[key] = value
}

// NewPaymentOrder snapshots the order's items and totals into a payment
// order for one billing attempt. Identity, status and transaction fields are
// always fresh.
func (o *Order) NewPaymentOrder(intentID string) *Order {
	parentID := o.ID
	sourceIntentID := intentID

	items := make([]OrderItem, len(o.Items))
	for i, item := range o.Items {
		item.ID = 0
		item.OrderID = 0
		items[i] = item
	}

	return &Order{
		OrderKey:       NewOrderKey(),
		ParentID:       &parentID,
		Kind:           OrderKindPaymentOrder,
		StudentID:      o.StudentID,
		Status:         OrderStatusPending,
		Currency:       o.Currency,
		Subtotal:       o.Subtotal,
		DiscountTotal:  o.DiscountTotal,
		Total:          o.Total,
		CustomerID:     o.CustomerID,
		SourceID:       o.SourceID,
		SourceIntentID: &sourceIntentID,
		Metadata:       datatypes.JSONMap{MetaParentOrderID: parentID},
		Items:          items,
	}
}

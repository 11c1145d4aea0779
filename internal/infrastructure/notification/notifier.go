package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/model"
	"github.com/wekeepgrowing/semo-course-billing/pkg/messaging"
	"go.uber.org/zap"
)

// Channel suffixes appended to the configured prefix.
const (
	ChannelOrderFailed    = "order.failed"
	ChannelOrderCompleted = "order.completed"
	ChannelCartClear      = "cart.clear"
)

// OrderEvent is published when an order changes outcome.
type OrderEvent struct {
	OrderID       int64     `json:"order_id"`
	OrderKey      string    `json:"order_key"`
	ParentID      *int64    `json:"parent_id,omitempty"`
	StudentID     uuid.UUID `json:"student_id"`
	Status        string    `json:"status"`
	Currency      string    `json:"currency"`
	Total         string    `json:"total"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// CartEvent asks the storefront to empty a student's cart.
type CartEvent struct {
	StudentID  uuid.UUID `json:"student_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RedisNotifier publishes order side effects to redis channels consumed by
// the storefront and the mailer.
type RedisNotifier struct {
	publisher messaging.Publisher
	prefix    string
	logger    *zap.Logger
}

func NewRedisNotifier(publisher messaging.Publisher, prefix string, logger *zap.Logger) *RedisNotifier {
	return &RedisNotifier{
		publisher: publisher,
		prefix:    prefix,
		logger:    logger,
	}
}

func (n *RedisNotifier) channel(name string) string {
	if n.prefix == "" {
		return name
	}
	return n.prefix + "." + name
}

func (n *RedisNotifier) OrderFailed(ctx context.Context, order *model.Order, reason string) error {
	event := newOrderEvent(order)
	event.Reason = reason
	return n.publish(ctx, ChannelOrderFailed, event)
}

func (n *RedisNotifier) OrderCompleted(ctx context.Context, order *model.Order) error {
	return n.publish(ctx, ChannelOrderCompleted, newOrderEvent(order))
}

func (n *RedisNotifier) ClearCart(ctx context.Context, studentID uuid.UUID) error {
	return n.publish(ctx, ChannelCartClear, CartEvent{
		StudentID:  studentID,
		OccurredAt: time.Now().UTC(),
	})
}

func (n *RedisNotifier) publish(ctx context.Context, name string, payload interface{}) error {
	channel := n.channel(name)
	if err := n.publisher.Publish(ctx, channel, payload); err != nil {
		n.logger.Error("Failed to publish notification",
			zap.String("channel", channel),
			zap.Error(err))
		return fmt.Errorf("failed to publish %s: %w", channel, err)
	}
	n.logger.Debug("Published notification", zap.String("channel", channel))
	return nil
}

func newOrderEvent(order *model.Order) OrderEvent {
	return OrderEvent{
		OrderID:       order.ID,
		OrderKey:      order.OrderKey,
		ParentID:      order.ParentID,
		StudentID:     order.StudentID,
		Status:        string(order.Status),
		Currency:      order.Currency,
		Total:         order.Total.StringFixed(2),
		TransactionID: order.TransactionID,
		OccurredAt:    time.Now().UTC(),
	}
}

// LogNotifier only logs. It is used when redis is disabled.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) OrderFailed(_ context.Context, order *model.Order, reason string) error {
	n.logger.Info("Order failed", zap.Int64("order_id", order.ID), zap.String("reason", reason))
	return nil
}

func (n *LogNotifier) OrderCompleted(_ context.Context, order *model.Order) error {
	n.logger.Info("Order completed", zap.Int64("order_id", order.ID), zap.String("status", string(order.Status)))
	return nil
}

func (n *LogNotifier) ClearCart(_ context.Context, studentID uuid.UUID) error {
	n.logger.Info("Cart cleared", zap.String("student_id", studentID.String()))
	return nil
}

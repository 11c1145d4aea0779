package notification_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/model"
	"github.com/wekeepgrowing/semo-course-billing/internal/infrastructure/notification"
	"go.uber.org/zap"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	args := m.Called(ctx, channel, message)
	return args.Error(0)
}

func (m *mockPublisher) Close() error {
	return m.Called().Error(0)
}

func TestRedisNotifier_OrderFailed(t *testing.T) {
	publisher := new(mockPublisher)
	notifier := notification.NewRedisNotifier(publisher, "course-billing", zap.NewNop())

	order := &model.Order{
		ID:        7,
		OrderKey:  "ord_abc",
		StudentID: uuid.New(),
		Status:    model.OrderStatusFailed,
		Currency:  "USD",
		Total:     decimal.RequireFromString("19.9"),
	}

	publisher.On("Publish", mock.Anything, "course-billing.order.failed", mock.MatchedBy(func(e notification.OrderEvent) bool {
		return e.OrderID == 7 && e.Reason == "Your card was declined." && e.Total == "19.90" && e.Status == "failed"
	})).Return(nil).Once()

	require.NoError(t, notifier.OrderFailed(context.Background(), order, "Your card was declined."))
	publisher.AssertExpectations(t)
}

func TestRedisNotifier_ClearCart(t *testing.T) {
	publisher := new(mockPublisher)
	notifier := notification.NewRedisNotifier(publisher, "", zap.NewNop())
	studentID := uuid.New()

	publisher.On("Publish", mock.Anything, notification.ChannelCartClear, mock.MatchedBy(func(e notification.CartEvent) bool {
		return e.StudentID == studentID
	})).Return(nil).Once()

	require.NoError(t, notifier.ClearCart(context.Background(), studentID))
	publisher.AssertExpectations(t)
}

func TestRedisNotifier_PublishError(t *testing.T) {
	publisher := new(mockPublisher)
	notifier := notification.NewRedisNotifier(publisher, "course-billing", zap.NewNop())

	publisher.On("Publish", mock.Anything, "course-billing.order.completed", mock.Anything).
		Return(errors.New("connection refused")).Once()

	err := notifier.OrderCompleted(context.Background(), &model.Order{ID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "course-billing.order.completed")
}

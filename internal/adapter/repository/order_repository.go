package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/wekeepgrowing/semo-course-billing/internal/domain/model"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// orderColumns are the columns Update writes. Items and notes have their own
// write paths.
var orderColumns = []string{
	"status", "currency", "subtotal", "discount_total", "total",
	"processor_customer_id", "processor_source_id", "active_intent_id",
	"transaction_id", "metadata", "paid_at", "completed_at", "updated_at",
}

type orderRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewOrderRepository(db *gorm.DB, logger *zap.Logger) repository.OrderRepository {
	return &orderRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the order together with its items.
func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	if order.OrderKey == "" {
		order.OrderKey = model.NewOrderKey()
	}
	if err := r.db.WithContext(ctx).Omit("Notes").Create(order).Error; err != nil {
		r.logger.Error("Failed to create order",
			zap.String("order_key", order.OrderKey),
			zap.Error(err))
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *orderRepository) Update(ctx context.Context, order *model.Order) error {
	result := r.db.WithContext(ctx).
		Model(order).
		Select(orderColumns).
		Updates(order)
	if result.Error != nil {
		r.logger.Error("Failed to update order",
			zap.Int64("order_id", order.ID),
			zap.Error(result.Error))
		return fmt.Errorf("failed to update order %d: %w", order.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("order not found: %d", order.ID)
	}
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *orderRepository) GetBySourceIntentID(ctx context.Context, intentID string) (*model.Order, error) {
	return r.first(ctx, "source_intent_id = ?", intentID)
}

// GetByTransactionID prefers the most recent order carrying the charge;
// a parent and its payment order share it.
func (r *orderRepository) GetByTransactionID(ctx context.Context, transactionID string) (*model.Order, error) {
	return r.first(ctx, "transaction_id = ?", transactionID)
}

func (r *orderRepository) ListByParentID(ctx context.Context, parentID int64) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("parent_id = ?", parentID).
		Order("id ASC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payment orders of %d: %w", parentID, err)
	}
	return orders, nil
}

func (r *orderRepository) AddNote(ctx context.Context, orderID int64, message string) error {
	note := &model.OrderNote{OrderID: orderID, Message: message}
	if err := r.db.WithContext(ctx).Create(note).Error; err != nil {
		return fmt.Errorf("failed to add note to order %d: %w", orderID, err)
	}
	return nil
}

func (r *orderRepository) first(ctx context.Context, query string, arg interface{}) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where(query, arg).
		Order("id DESC").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get order",
			zap.String("query", query),
			zap.Any("arg", arg),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

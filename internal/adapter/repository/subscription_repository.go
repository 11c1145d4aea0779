package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/wekeepgrowing/semo-course-billing/internal/domain/model"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type subscriptionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *gorm.DB, logger *zap.Logger) repository.SubscriptionRepository {
	return &subscriptionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *subscriptionRepository) Create(ctx context.Context, subscription *model.Subscription) error {
	if err := r.db.WithContext(ctx).Create(subscription).Error; err != nil {
		r.logger.Error("Failed to save subscription",
			zap.Int64("order_id", subscription.OrderID),
			zap.Int64("order_item_id", subscription.OrderItemID),
			zap.Error(err))
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

// Update saves every column of the subscription. The stored row is locked
// first so a bound profile id cannot be swapped by a concurrent writer.
func (r *subscriptionRepository) Update(ctx context.Context, subscription *model.Subscription) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Subscription
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "profile_id").
			Where("id = ?", subscription.ID).
			First(&existing).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("subscription not found: %d", subscription.ID)
			}
			return fmt.Errorf("failed to check subscription: %w", err)
		}

		if existing.HasProfile() && (!subscription.HasProfile() || *existing.ProfileID != *subscription.ProfileID) {
			r.logger.Warn("Rejected profile id change",
				zap.Int64("subscription_id", subscription.ID),
				zap.String("profile_id", *existing.ProfileID))
			return model.ErrProfileIDImmutable
		}

		if err := tx.Save(subscription).Error; err != nil {
			r.logger.Error("Failed to update subscription",
				zap.Int64("subscription_id", subscription.ID),
				zap.Error(err))
			return fmt.Errorf("failed to update subscription: %w", err)
		}
		return nil
	})
}

func (r *subscriptionRepository) GetByID(ctx context.Context, id int64) (*model.Subscription, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *subscriptionRepository) GetByProfileID(ctx context.Context, profileID string) (*model.Subscription, error) {
	return r.first(ctx, "profile_id = ?", profileID)
}

func (r *subscriptionRepository) GetByOrderItemID(ctx context.Context, orderItemID int64) (*model.Subscription, error) {
	return r.first(ctx, "order_item_id = ?", orderItemID)
}

func (r *subscriptionRepository) ListByOrderID(ctx context.Context, orderID int64) ([]*model.Subscription, error) {
	var subs []*model.Subscription
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions of order %d: %w", orderID, err)
	}
	return subs, nil
}

// ListByStatus lists subscriptions by status
func (r *subscriptionRepository) ListByStatus(ctx context.Context, statuses ...model.SubscriptionStatus) ([]*model.Subscription, error) {
	var subs []*model.Subscription

	query := r.db.WithContext(ctx)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	if err := query.Order("id ASC").Find(&subs).Error; err != nil {
		r.logger.Error("Failed to list subscriptions by status",
			zap.Any("statuses", statuses),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

func (r *subscriptionRepository) first(ctx context.Context, query string, arg interface{}) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).Where(query, arg).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get subscription",
			zap.String("query", query),
			zap.Any("arg", arg),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &sub, nil
}

package repository

import (
	"context"

	"github.com/wekeepgrowing/semo-course-billing/internal/domain/model"
)

type SubscriptionRepository interface {
	Create(ctx context.Context, subscription *model.Subscription) error
	// Update rejects a change of an already bound profile id with
	// model.ErrProfileIDImmutable.
	Update(ctx context.Context, subscription *model.Subscription) error
	GetByID(ctx context.Context, id int64) (*model.Subscription, error)
	GetByProfileID(ctx context.Context, profileID string) (*model.Subscription, error)
	GetByOrderItemID(ctx context.Context, orderItemID int64) (*model.Subscription, error)
	ListByOrderID(ctx context.Context, orderID int64) ([]*model.Subscription, error)
	ListByStatus(ctx context.Context, statuses ...model.SubscriptionStatus) ([]*model.Subscription, error)
}

package repository

import (
	"context"

	"github.com/wekeepgrowing/semo-course-billing/internal/domain/model"
)

// OrderRepository persists orders and payment orders. Lookups return
// (nil, nil) when nothing matches.
type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	// Update saves the order's own columns; items and notes are left alone.
	Update(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id int64) (*model.Order, error)
	GetBySourceIntentID(ctx context.Context, intentID string) (*model.Order, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*model.Order, error)
	ListByParentID(ctx context.Context, parentID int64) ([]*model.Order, error)
	AddNote(ctx context.Context, orderID int64, message string) error
}

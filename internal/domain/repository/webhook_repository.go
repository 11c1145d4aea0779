package repository

import (
	"context"
	"encoding/json"

	"github.com/wekeepgrowing/semo-course-billing/internal/domain/model"
)

// WebhookRepository is the ledger of received processor events.
type WebhookRepository interface {
	// SaveEvent records the event and reports whether it was new.
	SaveEvent(ctx context.Context, eventID, eventType string, data json.RawMessage) (bool, error)
	GetEvent(ctx context.Context, eventID string) (*model.WebhookEvent, error)
	MarkProcessed(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string, err error) error
	GetPendingEvents(ctx context.Context, limit int) ([]*model.WebhookEvent, error)
}

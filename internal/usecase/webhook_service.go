package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	domainErrors "github.com/wekeepgrowing/semo-course-billing/internal/domain/errors"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/model"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/repository"
	"github.com/wekeepgrowing/semo-course-billing/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

// Webhook handling results.
const (
	WebhookProcessed = "processed"
	WebhookDuplicate = "duplicate"
	WebhookIgnored   = "ignored"
	WebhookFailed    = "failed"
)

// WebhookService records verified processor events and routes them to the
// payment flow. Intents are re-fetched by the orchestrator; payload fields
// are only used to find them.
type WebhookService struct {
	orchestrator *PaymentOrchestrator
	renewals     *RenewalService
	webhookRepo  repository.WebhookRepository
	logger       *zap.Logger
}

func NewWebhookService(
	orchestrator *PaymentOrchestrator,
	renewals *RenewalService,
	webhookRepo repository.WebhookRepository,
	logger *zap.Logger,
) *WebhookService {
	return &WebhookService{
		orchestrator: orchestrator,
		renewals:     renewals,
		webhookRepo:  webhookRepo,
		logger:       logger,
	}
}

// HandleEvent records event once and dispatches it. Redelivery of an event
// that was already processed is a no-op.
func (s *WebhookService) HandleEvent(ctx context.Context, event *stripe.Event) (string, error) {
	var raw json.RawMessage
	if event.Data != nil {
		raw = event.Data.Raw
	}

	created, err := s.webhookRepo.SaveEvent(ctx, event.ID, string(event.Type), raw)
	if err != nil {
		return WebhookFailed, fmt.Errorf("failed to record webhook event %s: %w", event.ID, err)
	}
	if !created {
		existing, err := s.webhookRepo.GetEvent(ctx, event.ID)
		if err != nil {
			return WebhookFailed, fmt.Errorf("failed to load webhook event %s: %w", event.ID, err)
		}
		if existing != nil && existing.Status == model.WebhookStatusCompleted {
			metrics.IncWebhookEvent(string(event.Type), WebhookDuplicate)
			return WebhookDuplicate, nil
		}
	}

	return s.process(ctx, event)
}

// RetryPending re-dispatches stored events whose earlier attempt failed.
func (s *WebhookService) RetryPending(ctx context.Context, limit int) (int, error) {
	events, err := s.webhookRepo.GetPendingEvents(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending webhook events: %w", err)
	}

	retried := 0
	for _, stored := range events {
		if err := ctx.Err(); err != nil {
			return retried, err
		}
		event := &stripe.Event{
			ID:   stored.EventID,
			Type: stripe.EventType(stored.EventType),
			Data: &stripe.EventData{Raw: json.RawMessage(stored.Data)},
		}
		if _, err := s.process(ctx, event); err == nil {
			retried++
		}
	}
	return retried, nil
}

func (s *WebhookService) process(ctx context.Context, event *stripe.Event) (string, error) {
	result, err := s.dispatch(ctx, event)
	if err != nil {
		if markErr := s.webhookRepo.MarkFailed(ctx, event.ID, err); markErr != nil {
			s.logger.Error("Failed to mark webhook event failed", zap.String("event_id", event.ID), zap.Error(markErr))
		}
		metrics.IncWebhookEvent(string(event.Type), WebhookFailed)
		s.logger.Warn("Webhook event failed",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.Error(err))
		return WebhookFailed, err
	}

	if err := s.webhookRepo.MarkProcessed(ctx, event.ID); err != nil {
		s.logger.Error("Failed to mark webhook event processed", zap.String("event_id", event.ID), zap.Error(err))
	}
	metrics.IncWebhookEvent(string(event.Type), result)
	s.logger.Info("Webhook event handled",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("result", result))
	return result, nil
}

func (s *WebhookService) dispatch(ctx context.Context, event *stripe.Event) (string, error) {
	if event.Data == nil {
		return WebhookIgnored, nil
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentAmountCapturableUpdated:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return "", fmt.Errorf("failed to parse payment intent: %w", err)
		}
		if intent.Metadata[metaOrderID] == "" {
			return WebhookIgnored, nil
		}
		_, err := s.orchestrator.CompletePayment(ctx, intent.ID)
		return s.settled(event, err)

	case stripe.EventTypeSetupIntentSucceeded:
		var intent stripe.SetupIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return "", fmt.Errorf("failed to parse setup intent: %w", err)
		}
		if intent.Metadata[metaOrderID] == "" {
			return WebhookIgnored, nil
		}
		_, err := s.orchestrator.CompletePayment(ctx, intent.ID)
		return s.settled(event, err)

	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return "", fmt.Errorf("failed to parse payment intent: %w", err)
		}
		if intent.Metadata[metaOrderID] == "" {
			return WebhookIgnored, nil
		}
		return s.settled(event, s.orchestrator.FailPayment(ctx, intent.ID))

	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return "", fmt.Errorf("failed to parse charge: %w", err)
		}
		return s.settled(event, s.orchestrator.MarkRefunded(ctx, charge.ID))

	case stripe.EventTypeInvoicePaymentSucceeded:
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return "", fmt.Errorf("failed to parse invoice: %w", err)
		}
		added, err := s.renewals.RecordInvoicePayment(ctx, &invoice)
		if err == nil && !added {
			return WebhookIgnored, nil
		}
		return s.settled(event, err)

	case stripe.EventTypeCustomerSubscriptionUpdated, stripe.EventTypeCustomerSubscriptionDeleted:
		var subscription stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
			return "", fmt.Errorf("failed to parse subscription: %w", err)
		}
		return s.settled(event, s.renewals.SyncSubscription(ctx, subscription.ID))

	default:
		return WebhookIgnored, nil
	}
}

// settled treats business-rule outcomes as handled so the processor stops
// redelivering; anything else is retried.
func (s *WebhookService) settled(event *stripe.Event, err error) (string, error) {
	if err == nil {
		return WebhookProcessed, nil
	}
	var paymentErr *domainErrors.PaymentError
	if errors.As(err, &paymentErr) {
		s.logger.Info("Webhook event rejected by payment rules",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.String("code", paymentErr.Code),
			zap.String("message", paymentErr.Error()))
		return WebhookProcessed, nil
	}
	return "", err
}

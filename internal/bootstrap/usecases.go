package bootstrap

import (
	"github.com/wekeepgrowing/semo-course-billing/internal/config"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/processor"
	"github.com/wekeepgrowing/semo-course-billing/internal/infrastructure/database"
	"github.com/wekeepgrowing/semo-course-billing/internal/infrastructure/notification"
	stripeProvider "github.com/wekeepgrowing/semo-course-billing/internal/infrastructure/provider/stripe"
	"github.com/wekeepgrowing/semo-course-billing/internal/usecase"
	"github.com/wekeepgrowing/semo-course-billing/pkg/messaging"
	"go.uber.org/zap"
)

// UseCases is the container of the billing services.
type UseCases struct {
	Processor    processor.Client
	Orchestrator *usecase.PaymentOrchestrator
	Renewals     *usecase.RenewalService
	Webhooks     *usecase.WebhookService

	publisher messaging.Publisher
}

// NewUseCases wires the services on top of repos. Notifications go to redis
// when it is enabled and to the log otherwise.
func NewUseCases(cfg *config.Config, repos *database.Repositories, logger *zap.Logger) (*UseCases, error) {
	client := stripeProvider.NewClient(&cfg.Stripe, logger)
	if !client.Configured() {
		logger.Warn("Stripe secret key is not set; payments are disabled",
			zap.String("mode", cfg.Stripe.Mode))
	}

	u := &UseCases{Processor: client}

	var notifier usecase.Notifier = notification.NewLogNotifier(logger)
	if cfg.Redis.Enabled {
		publisher, err := messaging.NewRedisPublisher(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		u.publisher = publisher
		notifier = notification.NewRedisNotifier(publisher, cfg.Redis.ChannelPrefix, logger)
	}

	builder := usecase.NewSubscriptionBuilder(
		client,
		repos.Subscription,
		repos.Order,
		repos.Course,
		&cfg.Stripe,
		logger,
	)

	u.Orchestrator = usecase.NewPaymentOrchestrator(
		client,
		builder,
		repos.Order,
		repos.Subscription,
		repos.CustomerMapping,
		cfg,
		logger,
		usecase.WithNotifier(notifier),
	)
	u.Renewals = usecase.NewRenewalService(client, repos.Order, repos.Subscription, logger)
	u.Webhooks = usecase.NewWebhookService(u.Orchestrator, u.Renewals, repos.Webhook, logger)

	return u, nil
}

// Close releases the notification publisher.
func (u *UseCases) Close() error {
	if u.publisher != nil {
		return u.publisher.Close()
	}
	return nil
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(webhookEventsTotal)
}

var webhookEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "course_billing_webhook_events_total",
		Help: "Webhook deliveries by event type and result (processed/duplicate/ignored/failed/rejected).",
	},
	[]string{"type", "result"},
)

func IncWebhookEvent(eventType, result string) {
	webhookEventsTotal.WithLabelValues(norm(eventType), norm(result)).Inc()
}

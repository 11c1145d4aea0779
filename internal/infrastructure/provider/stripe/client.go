package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/wekeepgrowing/semo-course-billing/internal/config"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/processor"
	"github.com/wekeepgrowing/semo-course-billing/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

const maxLoggedResultLen = 512

// Client implements processor.Client on top of stripe-go. It owns its own
// backends so tests and multiple modes never share the SDK globals.
type Client struct {
	api        *client.API
	logger     *zap.Logger
	logCalls   bool
	configured bool
}

var _ processor.Client = (*Client)(nil)

type options struct {
	backendURL string
	httpClient *http.Client
}

// Option customizes the Stripe transport.
type Option func(*options)

// WithBackendURL points the client at a different API host.
func WithBackendURL(url string) Option {
	return func(o *options) {
		o.backendURL = url
	}
}

// WithHTTPClient replaces the transport HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) {
		o.httpClient = httpClient
	}
}

// NewClient creates a Stripe client for the configured mode.
func NewClient(cfg *config.StripeConfig, logger *zap.Logger, opts ...Option) *Client {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	sdkLogger := logger.Named("stripe-sdk")
	if !cfg.LogRequests {
		sdkLogger = sdkLogger.WithOptions(zap.IncreaseLevel(zap.WarnLevel))
	}

	backendConfig := &stripe.BackendConfig{
		HTTPClient:        o.httpClient,
		LeveledLogger:     sdkLogger.Sugar(),
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
	}
	if o.backendURL != "" {
		backendConfig.URL = stripe.String(o.backendURL)
	}

	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
	}

	return &Client{
		api:        client.New(cfg.SecretKey(), backends),
		logger:     logger.Named("stripe"),
		logCalls:   cfg.LogRequests,
		configured: cfg.Configured(),
	}
}

// Configured reports whether a secret key is available for the active mode.
func (c *Client) Configured() bool {
	return c.configured
}

func (c *Client) check(ids ...string) error {
	if !c.configured {
		return processor.ErrNotConfigured
	}
	for _, id := range ids {
		if id == "" {
			return processor.ErrMissingArgument
		}
	}
	return nil
}

// call runs fn and normalizes its failure into a processor.Error.
func call[T any](c *Client, method string, fields []zap.Field, fn func() (T, error)) (T, error) {
	start := time.Now()
	res, err := fn()
	elapsed := time.Since(start)

	if err != nil {
		var zero T
		procErr := toProcessorError(err)
		metrics.ObserveProcessorCall(method, string(procErr.Type), elapsed)

		logFields := append([]zap.Field{
			zap.String("method", method),
			zap.String("type", string(procErr.Type)),
			zap.String("code", procErr.Code),
			zap.String("decline_code", procErr.DeclineCode),
			zap.Int("http_status", procErr.HTTPStatus),
			zap.String("request_id", procErr.RequestID),
			zap.String("message", procErr.Message),
		}, fields...)
		if procErr.IsCardError() {
			c.logger.Info("Stripe call declined", logFields...)
		} else {
			c.logger.Warn("Stripe call failed", logFields...)
		}
		return zero, procErr
	}

	metrics.ObserveProcessorCall(method, "ok", elapsed)
	if c.logCalls {
		c.logger.Info("Stripe call",
			append([]zap.Field{
				zap.String("method", method),
				zap.Duration("elapsed", elapsed),
				zap.String("result", truncateResult(res)),
			}, fields...)...)
	}
	return res, nil
}

func truncateResult(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<unserializable: %v>", err)
	}
	if len(data) > maxLoggedResultLen {
		return string(data[:maxLoggedResultLen]) + "..."
	}
	return string(data)
}

func withContext(ctx context.Context, params *stripe.Params, idempotencyKey string) {
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
}

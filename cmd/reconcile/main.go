// Command reconcile records subscription cycles whose invoice webhooks never
// arrived and retries stored webhook events that failed.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wekeepgrowing/semo-course-billing/internal/bootstrap"
	"github.com/wekeepgrowing/semo-course-billing/internal/config"
	"github.com/wekeepgrowing/semo-course-billing/internal/infrastructure/database"
	"github.com/wekeepgrowing/semo-course-billing/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	var (
		webhookLimit = flag.Int("webhook-limit", 100, "maximum number of failed webhook events to retry")
		skipInvoices = flag.Bool("skip-invoices", false, "only retry webhook events")
		timeout      = flag.Duration("timeout", 10*time.Minute, "overall run timeout")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.NewZapLogger(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		FilePath:    cfg.Log.FilePath,
		Development: cfg.Log.Development,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	if !cfg.Stripe.Configured() {
		zapLogger.Fatal("Stripe secret key is not set", zap.String("mode", cfg.Stripe.Mode))
	}

	db, err := database.NewConnection(&cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db, zapLogger)

	useCases, err := bootstrap.NewUseCases(cfg, database.NewRepositories(db, zapLogger), zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize use cases", zap.Error(err))
	}
	defer useCases.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	exitCode := 0

	retried, err := useCases.Webhooks.RetryPending(ctx, *webhookLimit)
	if err != nil {
		zapLogger.Error("Webhook retry failed", zap.Error(err))
		exitCode = 1
	}
	zapLogger.Info("Webhook events retried", zap.Int("count", retried))

	if !*skipInvoices {
		recorded, err := useCases.Renewals.ReconcileAll(ctx)
		if err != nil {
			zapLogger.Error("Invoice reconciliation finished with errors", zap.Error(err))
			exitCode = 1
		}
		zapLogger.Info("Subscription cycles recorded", zap.Int("count", recorded))
	}

	if exitCode != 0 {
		zapLogger.Sync()
		os.Exit(exitCode)
	}
}

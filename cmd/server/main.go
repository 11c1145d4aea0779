package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wekeepgrowing/semo-course-billing/internal/bootstrap"
	"github.com/wekeepgrowing/semo-course-billing/internal/config"
	grpcHandler "github.com/wekeepgrowing/semo-course-billing/internal/adapter/handler/grpc"
	httpHandler "github.com/wekeepgrowing/semo-course-billing/internal/adapter/handler/http"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/processor"
	"github.com/wekeepgrowing/semo-course-billing/internal/infrastructure/database"
	grpcServer "github.com/wekeepgrowing/semo-course-billing/internal/infrastructure/grpc"
	httpServer "github.com/wekeepgrowing/semo-course-billing/internal/infrastructure/http"
	"github.com/wekeepgrowing/semo-course-billing/internal/infrastructure/metrics"
	stripeProvider "github.com/wekeepgrowing/semo-course-billing/internal/infrastructure/provider/stripe"
	"github.com/wekeepgrowing/semo-course-billing/pkg/logger"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
)

const healthInterval = 30 * time.Second

func main() {
	// Load configuration
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

	// Initialize database connection
	db, err := database.NewConnection(&cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, zapLogger); err != nil {
			zapLogger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	// Run migrations
	if err := database.Migrate(db, zapLogger); err != nil {
		zapLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	metrics.MustRegister(nil)

	repos := database.NewRepositories(db, zapLogger)
	useCases, err := bootstrap.NewUseCases(cfg, repos, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize use cases", zap.Error(err))
	}
	defer useCases.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// gRPC health follows the database and the processor configuration
	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("Failed to get underlying SQL database", zap.Error(err))
	}
	healthServer := health.NewServer()
	healthHandler := grpcHandler.NewHealthHandler(healthServer, map[string]grpcHandler.Check{
		"database": sqlDB.PingContext,
		"processor": func(context.Context) error {
			if !useCases.Processor.Configured() {
				return processor.ErrNotConfigured
			}
			return nil
		},
	}, zapLogger)
	go healthHandler.Run(ctx, healthInterval)

	grpcSrv := grpcServer.NewServer(cfg, zapLogger, healthServer)
	httpSrv := httpServer.NewServer(cfg, zapLogger, httpServer.Handlers{
		Payment:      httpHandler.NewPaymentHandler(useCases.Orchestrator, cfg.Service.ClientURL, zapLogger),
		Subscription: httpHandler.NewSubscriptionHandler(useCases.Orchestrator, zapLogger),
		Webhook: httpHandler.NewWebhookHandler(
			stripeProvider.NewEventVerifier(&cfg.Stripe),
			useCases.Webhooks,
			zapLogger,
		),
	})

	go func() {
		if err := grpcSrv.Start(); err != nil {
			zapLogger.Fatal("Failed to start gRPC server", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zapLogger.Info("Shutting down servers...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := grpcSrv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shutdown gRPC server", zap.Error(err))
	}

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	zapLogger.Info("Servers shut down successfully")
}

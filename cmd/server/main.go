package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/pocketpal/approvalflow/internal/approval"
	"github.com/pocketpal/approvalflow/internal/cache"
	"github.com/pocketpal/approvalflow/internal/config"
	"github.com/pocketpal/approvalflow/internal/funding"
	httpserver "github.com/pocketpal/approvalflow/internal/interfaces/http"
	"github.com/pocketpal/approvalflow/internal/notify"
	"github.com/pocketpal/approvalflow/internal/repository"
	"github.com/pocketpal/approvalflow/internal/worker"
	"github.com/pocketpal/approvalflow/pkg/database"
	"github.com/pocketpal/approvalflow/pkg/utils"
)

func main() {
	// Load .env if present; real environments set variables directly
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting approval workflow service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		logger.Fatal("Failed to create data directory", zap.Error(err))
	}

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Repositories
	requestRepo := repository.NewRequestRepository(db, logger)
	partnerRepo := repository.NewPartnerRepository(db, logger)
	notificationRepo := repository.NewNotificationRepository(db, logger)

	// Optional redis read-through cache over the request store
	var store approval.RequestStore = requestRepo
	if cfg.Cache.Enabled {
		requestCache, err := cache.New(requestRepo, cache.Config{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.Cache.TTL,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to connect request cache", zap.Error(err))
		}
		defer requestCache.Close()
		store = requestCache
	}

	// Funding provider client
	fundingClient := funding.NewClient(funding.Config{
		BaseURL: cfg.Funding.BaseURL,
		APIKey:  cfg.Funding.APIKey,
		Timeout: cfg.Funding.Timeout,
	}, logger)

	// Notification outbox and its dispatcher
	emitter := notify.NewEmitter(notificationRepo, logger)
	sink := notify.NewSinkClient(notify.SinkConfig{
		URL:     cfg.Notification.SinkURL,
		Token:   cfg.Notification.SinkToken,
		Timeout: cfg.Notification.SinkTimeout,
	}, logger)
	dispatcher := notify.NewDispatcher(
		notificationRepo,
		sink,
		cfg.Notification.DispatchInterval,
		cfg.Notification.DispatchBatch,
		logger,
	)

	// Approval engine
	engine := approval.NewEngine(store, partnerRepo, fundingClient, emitter, logger)

	// Background workers
	workerManager := worker.NewManager(logger)
	workerManager.Register(dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := workerManager.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}

	// HTTP server
	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, engine, notificationRepo, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("Shutting down...")
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	cancel()
	workerManager.StopAll()

	if err := server.Stop(); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}

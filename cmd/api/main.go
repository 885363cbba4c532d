package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/obahamonde/cloudantic/interfaces/http/rest"
	"github.com/obahamonde/cloudantic/internal/chat"
	"github.com/obahamonde/cloudantic/internal/config"
	"github.com/obahamonde/cloudantic/internal/hydrate"
	"github.com/obahamonde/cloudantic/internal/observability"
	"github.com/obahamonde/cloudantic/internal/service/content"
	"github.com/obahamonde/cloudantic/internal/store"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" && cfg.IsDevelopment() {
		watcher, err := config.NewWatcher(path, cfg, logger)
		if err != nil {
			logger.Warn("Config hot reload unavailable", zap.Error(err))
		} else {
			// Wired components keep their startup settings; a reload only
			// takes effect for values read per-request.
			watcher.OnChange(func(next config.Config) {
				logger.Info("Config file changed; restart to apply store or server settings",
					zap.String("environment", next.Environment),
				)
			})
			defer watcher.Stop()
		}
	}

	metrics := observability.NewCollector("cloudantic")

	dynamoClient, err := store.NewDynamoClient(ctx, cfg.Store.Region, cfg.Store.Endpoint)
	if err != nil {
		logger.Fatal("Failed to create DynamoDB client", zap.Error(err))
	}

	retryCfg := store.DefaultRetryConfig()
	retryCfg.MaxAttempts = cfg.Store.MaxRetries
	retryCfg.BaseDelay = cfg.Store.BaseDelay.Std()
	retryCfg.MaxDelay = cfg.Store.MaxDelay.Std()

	keyedStore := store.NewDynamoStore(dynamoClient, cfg.Store.TableName, retryCfg, logger, metrics.Store)
	if cfg.IsDevelopment() {
		if err := keyedStore.EnsureTable(ctx); err != nil {
			logger.Fatal("Failed to ensure table", zap.Error(err))
		}
	}

	hydrator := hydrate.New(keyedStore, cfg.Hydrat.MaxInFlight, logger)
	contentService := content.NewService(keyedStore, hydrator, logger)

	bridge := chat.NewBridge(chat.NewMockProvider(), chat.BridgeConfig{
		Namespace:   cfg.Chat.Namespace,
		MaxAttempts: cfg.Chat.MaxAttempts,
		BaseDelay:   cfg.Chat.BaseDelay.Std(),
	}, logger, metrics.Streams)

	router := rest.NewRouter(contentService, keyedStore, bridge, metrics, logger)

	srv := &http.Server{
		Addr:        cfg.ServerAddress,
		Handler:     router.Setup(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the chat stream holds its connection open for as
		// long as the upstream keeps generating.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("address", cfg.ServerAddress),
			zap.String("environment", cfg.Environment),
			zap.String("table", cfg.Store.TableName),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	if err := logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

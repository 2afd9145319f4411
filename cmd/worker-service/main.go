package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/answer-relay/internal/bootstrap"
	"github.com/cuongbtq/answer-relay/internal/config"
	"github.com/cuongbtq/answer-relay/internal/indexer"
	"github.com/cuongbtq/answer-relay/internal/worker"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("indexer", cfg.Indexer.URL),
	)

	signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := bootstrap.Open(signalCtx, cfg, appLogger.Logger)
	if err != nil {
		return err
	}
	defer res.Close()

	workerCfg := &worker.Config{
		Logger:          appLogger.Logger,
		Store:           res.Store,
		Source:          indexer.NewClient(cfg.Indexer.URL, cfg.Indexer.Timeout, appLogger.Logger),
		Concurrency:     cfg.Worker.Concurrency,
		JobTimeout:      cfg.Worker.JobTimeout,
		ScanInterval:    cfg.Worker.ScanInterval,
		ScanBatchSize:   cfg.Worker.ScanBatchSize,
		RetryBackoffMax: cfg.Worker.RetryBackoffMax,
	}
	if res.Rabbit != nil {
		workerCfg.Deliveries = res.Rabbit
	}
	workerInstance := worker.NewWorker(workerCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- workerInstance.Start(ctx)
	}()

	appLogger.Info("Worker service started successfully",
		slog.String("worker_id", workerInstance.ID()),
	)

	select {
	case <-signalCtx.Done():
		appLogger.Info("Received signal, shutting down gracefully")
	case err := <-errChan:
		if err != nil {
			appLogger.Error("Worker error",
				slog.Any("error", err),
			)
		}
		return err
	}

	cancel()

	shutdownTimer := time.NewTimer(cfg.Worker.ShutdownTimeout)
	defer shutdownTimer.Stop()

	select {
	case err := <-errChan:
		if err != nil {
			appLogger.Warn("Worker stopped with error", slog.Any("error", err))
		} else {
			appLogger.Info("Worker stopped gracefully")
		}
	case <-shutdownTimer.C:
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/answer-relay/internal/api/handler"
	"github.com/cuongbtq/answer-relay/internal/api/router"
	"github.com/cuongbtq/answer-relay/internal/ask"
	"github.com/cuongbtq/answer-relay/internal/bootstrap"
	"github.com/cuongbtq/answer-relay/internal/config"
	"github.com/gin-gonic/gin"
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

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("storage", cfg.Storage.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := bootstrap.Open(ctx, cfg, appLogger.Logger)
	if err != nil {
		return err
	}
	defer res.Close()

	r := initRouter(cfg, appLogger.Logger, res)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		slog.Int("max_attempts", cfg.Ask.MaxAttempts),
		slog.Duration("poll_interval", cfg.Ask.PollInterval),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initRouter wires the coordinator and handlers into the Gin router
func initRouter(cfg *config.Config, logger *slog.Logger, res *bootstrap.Resources) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// A nil *rabbitmq.Client must not become a non-nil Publisher
	var publisher ask.Publisher
	if res.Rabbit != nil {
		publisher = res.Rabbit
	}

	coordinator := ask.NewCoordinator(&ask.Config{
		Submitter:    ask.NewSubmitter(res.Store, publisher, logger),
		Poller:       ask.NewPoller(res.Store, logger),
		Logger:       logger,
		MaxAttempts:  cfg.Ask.MaxAttempts,
		PollInterval: cfg.Ask.PollInterval,
		IncludeLinks: true,
	})

	return router.SetupRouter(&handler.Dependencies{
		Logger:      logger,
		ServiceName: cfg.App.Name,
		Coordinator: coordinator,
		Jobs:        res.Store,
		Store:       res.Store,
	}, cfg.Server.CORSAllowedOrigins)
}

// Package bootstrap turns configuration into the infrastructure clients both
// services start from.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/answer-relay/internal/config"
	"github.com/cuongbtq/answer-relay/internal/storage"
	"github.com/cuongbtq/answer-relay/shared/logger"
	"github.com/cuongbtq/answer-relay/shared/postgresql"
	"github.com/cuongbtq/answer-relay/shared/rabbitmq"
	sharedredis "github.com/cuongbtq/answer-relay/shared/redis"
)

// Resources owns the clients opened for a service
type Resources struct {
	Store  storage.JobStore
	Rabbit *rabbitmq.Client // nil when rabbitmq is disabled

	logger  *slog.Logger
	closers []func() error
}

// Open connects the configured job store and, when enabled, RabbitMQ
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Resources, error) {
	res := &Resources{logger: logger}

	if err := res.openStore(ctx, cfg); err != nil {
		res.Close()
		return nil, err
	}

	if cfg.RabbitMQ.Enabled {
		client, err := rabbitmq.NewClient(ctx, RabbitMQConfig(&cfg.RabbitMQ), logger)
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		res.Rabbit = client
		res.closers = append(res.closers, client.Close)
	} else {
		logger.Info("RabbitMQ disabled, jobs are discovered by the pending scan only")
	}

	return res, nil
}

func (r *Resources) openStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.Storage.Driver {
	case config.StorageDriverPostgres:
		client, err := postgresql.NewClient(ctx, PostgresConfig(&cfg.Database), r.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		r.closers = append(r.closers, client.Close)

		store := storage.NewPostgresStore(client, r.logger)
		if cfg.Storage.AutoMigrate {
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
		}
		r.Store = store

	case config.StorageDriverRedis:
		client, err := sharedredis.NewClient(ctx, RedisConfig(&cfg.Redis), r.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize redis: %w", err)
		}
		r.closers = append(r.closers, client.Close)
		r.Store = storage.NewRedisStore(client.GetClient(), cfg.Redis.JobTTL, r.logger)

	case config.StorageDriverMemory:
		r.Store = storage.NewMemoryStore()

	default:
		return fmt.Errorf("unsupported storage driver: %q", cfg.Storage.Driver)
	}

	r.logger.Info("Job store ready", slog.String("driver", cfg.Storage.Driver))
	return nil
}

// Close releases clients in reverse order of opening
func (r *Resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Warn("Failed to close resource", slog.String("error", err.Error()))
		}
	}
	r.closers = nil
}

// NewLogger builds the application logger from the logging section
func NewLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// PostgresConfig maps the database section onto the client config
func PostgresConfig(cfg *config.DatabaseConfig) *postgresql.Config {
	return &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
}

// RedisConfig maps the redis section onto the client config
func RedisConfig(cfg *config.RedisConfig) *sharedredis.Config {
	return &sharedredis.Config{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// RabbitMQConfig maps the rabbitmq section onto the client config
func RabbitMQConfig(cfg *config.RabbitMQConfig) *rabbitmq.Config {
	return &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
		PrefetchCount:      cfg.Consumer.PrefetchCount,
	}
}

package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"schoolfin/internal/amqp"
	applog "schoolfin/internal/log"
	"schoolfin/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With(applog.FieldComponent, applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store Backend
		err   error
	)
	switch config.Type {
	case MemoryBackend:
		store = storage.NewMemoryRepository()
		f.logger.Warn("Using in-memory backend, data is lost on restart")
	case SQLiteBackend:
		store, err = storage.OpenSQLite(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case PostgresBackend:
		store, err = storage.OpenPostgres(config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
		}
		f.logger.Info("Initialized Postgres backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("backend %s not reachable: %w", config.Type, err)
	}

	var broker *amqp.Client
	if config.AMQPURL != "" {
		broker, err = amqp.NewClient(config.AMQPURL, config.Topology())
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events and exports", "error", err)
			broker = nil
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"events_queue", config.AMQPEventsQueue,
				"export_queue", config.AMQPExportQueue)
		}
	}

	return &BackendResult{
		Backend: store,
		Broker:  broker,
		Cleanup: func() error {
			var errs []error
			if broker != nil {
				errs = append(errs, broker.Close())
			}
			errs = append(errs, store.Close())
			return errors.Join(errs...)
		},
	}, nil
}

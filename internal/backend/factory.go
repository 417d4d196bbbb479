package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"hardline/internal/amqp"
	applog "hardline/internal/log"
	"hardline/internal/ports"
	"hardline/internal/storage"
	"hardline/internal/storage/memory"
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
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend. An unreachable broker is
// logged and the backend is returned without a publisher.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store ports.Store
		err   error
	)
	switch config.Type {
	case SQLiteBackend:
		store, err = storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend",
			applog.FieldComponent, applog.ComponentStorage,
			"db_path", config.SQLiteDBPath)
	case MemoryBackend:
		store = memory.New()
		f.logger.Info("Initialized memory backend",
			applog.FieldComponent, applog.ComponentStorage)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	result := &BackendResult{Store: store}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(ctx, config.AMQPURL, config.AMQPExchange, config.AMQPQueue, config.AMQPDialAttempts)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without charge events",
				applog.FieldComponent, applog.ComponentAMQP,
				applog.FieldError, err)
		} else {
			result.AMQP = client
			result.Publisher = client
			f.logger.Info("Initialized AMQP client",
				applog.FieldComponent, applog.ComponentAMQP,
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	result.Cleanup = func() error {
		var errs []error
		if result.AMQP != nil {
			errs = append(errs, result.AMQP.Close())
		}
		errs = append(errs, store.Close())
		return errors.Join(errs...)
	}

	return result, nil
}

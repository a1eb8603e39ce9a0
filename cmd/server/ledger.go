package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"credentia/internal/ledger/store"
	"credentia/internal/notary/service"
	"credentia/internal/platform/config"
	"credentia/internal/platform/postgres"
	"credentia/internal/platform/redis"
)

// ledgerBackend is a service.Ledger the process owns and must close.
type ledgerBackend interface {
	service.Ledger
	Health(ctx context.Context) error
	Close() error
}

// openLedger connects the configured backend.
func openLedger(ctx context.Context, cfg config.Server, logger *slog.Logger) (ledgerBackend, error) {
	switch cfg.Ledger.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory ledger; records are lost on restart")
		return store.NewInMemory(), nil
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Ledger.DatabaseURL)
		if err != nil {
			return nil, err
		}
		pg := store.NewPostgres(db)
		if err := pg.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return pg, nil
	case config.BackendRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return store.NewRedis(client), nil
	case config.BackendSQLite:
		return store.OpenSQLite(cfg.Ledger.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
}

// boundedLedger gives transactions without a caller deadline a default one,
// so a stuck backend cannot hold a request forever.
type boundedLedger struct {
	ledgerBackend
	timeout time.Duration
}

func newBoundedLedger(backend ledgerBackend, cfg config.Ledger) boundedLedger {
	return boundedLedger{ledgerBackend: backend, timeout: cfg.TxTimeout}
}

func (l boundedLedger) Atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return l.ledgerBackend.Atomically(ctx, fn)
}

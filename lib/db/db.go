package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/padm/dwh/lib/retry"
)

const (
	maxAttempts     = 3
	sleepIntervalMs = 500
	sleepMaxMs      = 5_000
)

type Store interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	// Conn pins one connection, for session state such as `SET schema`.
	Conn(ctx context.Context) (*sql.Conn, error)
	ExecContextStatements(ctx context.Context, statements []string) ([]sql.Result, error)
	Close() error
}

type storeWrapper struct {
	*sql.DB
	retryCfg retry.RetryConfig
}

// ExecContext retries connection-level failures, anything else is returned on the first attempt.
func (s *storeWrapper) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return retry.WithRetries(ctx, s.retryCfg, func(_ int, _ error) (sql.Result, error) {
		return s.DB.ExecContext(ctx, query, args...)
	})
}

func newStoreWrapper(db *sql.DB) *storeWrapper {
	return &storeWrapper{
		DB: db,
		retryCfg: retry.NewRetryConfig(retry.NewRetryConfigArgs{
			JitterBaseMs:   sleepIntervalMs,
			JitterMaxMs:    sleepMaxMs,
			MaxAttempts:    maxAttempts,
			IsRetryableErr: isRetryableError,
		}),
	}
}

// Open opens and pings a database. The caller owns the returned [Store] and must close it.
func Open(ctx context.Context, driverName, dsn string) (Store, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to start a %q client: %w", driverName, err)
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to validate the %q connection: %w", driverName, err)
	}

	return newStoreWrapper(db), nil
}

// WithDatabase wraps an already opened [*sql.DB], used for connectors that need configuring and in tests.
func WithDatabase(db *sql.DB) Store {
	return newStoreWrapper(db)
}

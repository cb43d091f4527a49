package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/padm/dwh/lib/db"
	sqllib "github.com/padm/dwh/lib/sql"
	"github.com/padm/dwh/models"
)

// Client streams rows out of one source database.
type Client struct {
	source  models.SourceDatabase
	store   db.Store
	dialect sqllib.SourceDialect
}

func Open(ctx context.Context, source models.SourceDatabase) (*Client, error) {
	connection, err := ParseConnectionString(source.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", source.Name, err)
	}

	dialect, err := sqllib.SourceDialectFor(connection.DriverName)
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", source.Name, err)
	}

	var store db.Store
	if connection.DriverName == "clickhouse" {
		store, err = openClickHouse(ctx, connection.DSN)
	} else {
		store, err = db.Open(ctx, connection.DriverName, connection.DSN)
	}
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", source.Name, err)
	}

	slog.Debug("Connected to source", slog.String("source", source.Name), slog.String("driver", connection.DriverName))
	return NewClient(source, store, dialect), nil
}

func openClickHouse(ctx context.Context, dsn string) (db.Store, error) {
	options, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse clickhouse connection string: %w", err)
	}

	options.ClientInfo.Products = append(options.ClientInfo.Products, struct {
		Name    string
		Version string
	}{Name: "padm-dwh", Version: "1.0.0"})

	conn := clickhouse.OpenDB(options)
	if err = conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return db.WithDatabase(conn), nil
}

func NewClient(source models.SourceDatabase, store db.Store, dialect sqllib.SourceDialect) *Client {
	return &Client{source: source, store: store, dialect: dialect}
}

func (c *Client) Name() string {
	return c.source.Name
}

func (c *Client) Dialect() sqllib.SourceDialect {
	return c.dialect
}

// Query runs [query] and declares the result's schema from the driver's column types.
func (c *Client) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	rows, err := c.store.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", c.source.Name, err)
	}

	result, err := newRows(c.source.Name, c.dialect, rows)
	if err != nil {
		_ = rows.Close()
		return nil, err
	}

	return result, nil
}

func (c *Client) Close() error {
	return c.store.Close()
}

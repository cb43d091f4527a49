package runner

import (
	"context"

	"github.com/padm/dwh/clients/source"
	sqllib "github.com/padm/dwh/lib/sql"
	"github.com/padm/dwh/models"
)

type Rows interface {
	Schema() *models.Schema
	// Next returns [io.EOF] after the last record.
	Next() (*models.Record, error)
	Close() error
}

type Source interface {
	Name() string
	Dialect() sqllib.SourceDialect
	Query(ctx context.Context, query string, args ...any) (Rows, error)
}

// Sink receives the records of one source attempt. An attempt is either committed or discarded as a whole, so a
// failed primary query leaves nothing behind for its fallback to duplicate.
type Sink interface {
	Begin(sourceDB string, schema *models.Schema) (Attempt, error)
}

type Attempt interface {
	Write(record *models.Record) error
	Commit() error
	Discard() error
}

type clientSource struct {
	*source.Client
}

func (c clientSource) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := c.Client.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// FromClient adapts a source database client.
func FromClient(client *source.Client) Source {
	return clientSource{Client: client}
}

type unavailableSource struct {
	name    string
	dialect sqllib.SourceDialect
	err     error
}

func (u unavailableSource) Name() string {
	return u.name
}

func (u unavailableSource) Dialect() sqllib.SourceDialect {
	return u.dialect
}

func (u unavailableSource) Query(_ context.Context, _ string, _ ...any) (Rows, error) {
	return nil, u.err
}

// Unavailable is a source that could not be connected to. Every query fails with [err], so the source is skipped
// like any other failing source and replace loads keep its previous rows.
func Unavailable(name string, dialect sqllib.SourceDialect, err error) Source {
	return unavailableSource{name: name, dialect: dialect, err: err}
}

package sql

import (
	"github.com/padm/dwh/models"
)

type TableIdentifier interface {
	Schema() string
	Table() string
	EscapedTable() string
	WithTable(table string) TableIdentifier
	FullyQualifiedName() string
}

type Dialect interface {
	QuoteIdentifier(identifier string) string
}

// SourceDialect is what the extractor needs to know about a source database.
type SourceDialect interface {
	Dialect
	Name() string
	// Placeholder returns the bind parameter for the 1-indexed [position].
	Placeholder(position int) string
	// KindForDataType maps [sql.ColumnType.DatabaseTypeName] to a column kind.
	KindForDataType(databaseTypeName string) models.ColumnKind
	// BindValue converts a checkpoint into something the driver can bind.
	BindValue(value any) any
}

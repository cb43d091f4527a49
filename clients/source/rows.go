package source

import (
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/padm/dwh/lib/config/constants"
	sqllib "github.com/padm/dwh/lib/sql"
	"github.com/padm/dwh/models"
)

// Rows is a typed view over [*sql.Rows]: the schema is fixed from the column types before the first row, and every
// value is converted to the Go type of its column kind.
type Rows struct {
	rows     *sql.Rows
	sourceDB string
	schema   *models.Schema
	columns  []column
}

type column struct {
	name         string
	kind         models.ColumnKind
	databaseType string
}

func newRows(sourceDB string, dialect sqllib.SourceDialect, rows *sql.Rows) (*Rows, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	result := &Rows{rows: rows, sourceDB: sourceDB, schema: models.NewSchema()}
	for _, columnType := range columnTypes {
		name := strings.ToLower(columnType.Name())
		if name == constants.SourceDBColumn || name == constants.StableKeyColumn {
			return nil, fmt.Errorf("column %q is reserved", name)
		}

		col := column{
			name:         name,
			kind:         dialect.KindForDataType(columnType.DatabaseTypeName()),
			databaseType: strings.ToUpper(columnType.DatabaseTypeName()),
		}
		result.columns = append(result.columns, col)
		result.schema.Upsert(models.Column{Name: col.name, Kind: col.kind})
	}

	result.schema.Upsert(models.Column{Name: constants.SourceDBColumn, Kind: models.KindString})
	return result, nil
}

// Schema returns the declared schema, including [constants.SourceDBColumn].
func (r *Rows) Schema() *models.Schema {
	return r.schema
}

// Next returns the next record, [io.EOF] after the last one.
func (r *Rows) Next() (*models.Record, error) {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to iterate over rows: %w", err)
		}
		return nil, io.EOF
	}

	values := make([]any, len(r.columns))
	pointers := make([]any, len(r.columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	if err := r.rows.Scan(pointers...); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	record := models.NewRecord()
	for i, col := range r.columns {
		value, err := convertValue(values[i], col)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.name, err)
		}
		record.Set(col.name, value)
	}

	record.Set(constants.SourceDBColumn, r.sourceDB)
	return record, nil
}

func (r *Rows) Close() error {
	return r.rows.Close()
}

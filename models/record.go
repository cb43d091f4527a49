package models

import (
	"github.com/padm/dwh/lib/config/constants"
	"github.com/padm/dwh/lib/cryptography"
	"github.com/padm/dwh/lib/maputil"
)

// Record is one row read from a source database. Column names are case-insensitive, sources that disagree on
// casing land in the same column.
type Record struct {
	data *maputil.OrderedMap[any]
}

func NewRecord() *Record {
	return &Record{data: maputil.NewOrderedMap[any](false)}
}

func (r *Record) Set(column string, value any) {
	r.data.Add(column, value)
}

func (r *Record) Get(column string) (any, bool) {
	return r.data.Get(column)
}

func (r *Record) Columns() []string {
	return r.data.Keys()
}

func (r *Record) Len() int {
	return r.data.Len()
}

func (r *Record) SourceDB() string {
	value, _ := r.Get(constants.SourceDBColumn)
	source, _ := value.(string)
	return source
}

// Values returns the record's values in [schema] order, nil for columns the record does not have.
func (r *Record) Values(schema *Schema) []any {
	values := make([]any, schema.Len())
	for i, column := range schema.columns {
		values[i], _ = r.Get(column.Name)
	}
	return values
}

// AttachStableKey computes [constants.StableKeyColumn] from [fields], in order. Missing fields hash as empty.
func (r *Record) AttachStableKey(fields []string) string {
	values := make([]any, len(fields))
	for i, field := range fields {
		values[i], _ = r.Get(field)
	}

	key := cryptography.StableKey(values)
	r.Set(constants.StableKeyColumn, key)
	return key
}

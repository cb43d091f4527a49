package models

import (
	"fmt"
	"slices"
	"strings"
)

type Column struct {
	Name string
	Kind ColumnKind
}

// Schema is the ordered set of columns a resource produces. It is declared once per source at the boundary
// (from the driver's column types) and merged across sources. Names are lowercased like [Record] keys.
type Schema struct {
	columns []Column
}

func NewSchema(columns ...Column) *Schema {
	schema := &Schema{}
	for _, column := range columns {
		schema.Upsert(column)
	}
	return schema
}

func (s *Schema) Columns() []Column {
	return slices.Clone(s.columns)
}

func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.columns))
	for i, column := range s.columns {
		names[i] = column.Name
	}
	return names
}

func (s *Schema) Len() int {
	return len(s.columns)
}

func (s *Schema) Get(name string) (Column, bool) {
	if index := s.index(name); index >= 0 {
		return s.columns[index], true
	}
	return Column{}, false
}

func (s *Schema) index(name string) int {
	return slices.IndexFunc(s.columns, func(column Column) bool { return strings.EqualFold(column.Name, name) })
}

// Upsert adds a column to the end of the schema or widens an existing column's kind.
func (s *Schema) Upsert(column Column) {
	if index := s.index(column.Name); index >= 0 {
		s.columns[index].Kind = Widen(s.columns[index].Kind, column.Kind)
		return
	}

	column.Name = strings.ToLower(column.Name)
	s.columns = append(s.columns, column)
}

// Merge folds [other] into the schema. Columns only [other] has are appended, so drift between sources never
// reorders existing columns.
func (s *Schema) Merge(other *Schema) {
	if other == nil {
		return
	}

	for _, column := range other.columns {
		s.Upsert(column)
	}
}

// Override forces the kinds declared by a resource, regardless of what the drivers reported.
func (s *Schema) Override(overrides map[string]ColumnKind) {
	for name, kind := range overrides {
		if index := s.index(name); index >= 0 {
			s.columns[index].Kind = kind
		}
	}
}

// Validate checks that every required column is present.
func (s *Schema) Validate(required ...string) error {
	for _, name := range required {
		if s.index(name) < 0 {
			return fmt.Errorf("column %q is missing, columns: %v", name, s.ColumnNames())
		}
	}
	return nil
}

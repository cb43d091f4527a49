package duckdb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/padm/dwh/lib/sql"
	"github.com/padm/dwh/models"
)

// DescribeTable returns the columns of [tableID] in table order, nil if the table does not exist.
func (s *Store) DescribeTable(ctx context.Context, tableID sql.TableIdentifier) (*models.Schema, error) {
	query, args := s.dialect().BuildDescribeTableQuery(tableID)
	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to describe table %s: %w", tableID.FullyQualifiedName(), err)
	}

	objects, err := sql.RowsToObjectsLowercase(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", tableID.FullyQualifiedName(), err)
	}

	var cols []models.Column
	for _, object := range objects {
		columnName, ok := object["column_name"].(string)
		if !ok {
			return nil, fmt.Errorf("unexpected column_name %T", object["column_name"])
		}

		dataType, ok := object["data_type"].(string)
		if !ok {
			return nil, fmt.Errorf("unexpected data_type %T for column %q", object["data_type"], columnName)
		}

		kind, err := s.dialect().KindForDataType(dataType)
		if err != nil {
			return nil, fmt.Errorf("failed to get kind for data type %q: %w", dataType, err)
		}

		cols = append(cols, models.Column{Name: columnName, Kind: kind})
	}

	if len(cols) == 0 {
		return nil, nil
	}

	return models.NewSchema(cols...), nil
}

// buildAlterQueries reconciles an existing table with the staged schema: new columns are added, and columns
// whose staged kind is wider are altered to the wider type. Columns missing from the staged schema stay and load
// as NULL.
func (s *Store) buildAlterQueries(tableID sql.TableIdentifier, existing, staged *models.Schema) ([]string, error) {
	var queries []string
	for _, col := range staged.Columns() {
		current, ok := existing.Get(col.Name)
		if !ok {
			query, err := s.dialect().BuildAddColumnQuery(tableID, col)
			if err != nil {
				return nil, err
			}
			queries = append(queries, query)
			continue
		}

		widened := models.Widen(current.Kind, col.Kind)
		if widened == current.Kind {
			continue
		}

		slog.Info("Widening column",
			slog.String("table", tableID.FullyQualifiedName()),
			slog.String("column", col.Name),
			slog.String("from", string(current.Kind)),
			slog.String("to", string(widened)),
		)

		query, err := s.dialect().BuildAlterColumnTypeQuery(tableID, models.Column{Name: current.Name, Kind: widened})
		if err != nil {
			return nil, err
		}
		queries = append(queries, query)
	}

	return queries, nil
}

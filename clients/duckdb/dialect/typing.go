package dialect

import (
	"fmt"
	"strings"

	"github.com/padm/dwh/models"
)

// DecimalType is wide enough for every numeric column seen in the sources, values with more than 9 decimals are
// rounded.
const DecimalType = "DECIMAL(38, 9)"

// https://duckdb.org/docs/stable/sql/data_types/overview
func (DuckDBDialect) DataTypeForKind(kind models.ColumnKind) (string, error) {
	switch kind {
	case models.KindString:
		return "VARCHAR", nil
	case models.KindInteger:
		return "BIGINT", nil
	case models.KindFloat:
		return "DOUBLE", nil
	case models.KindDecimal:
		return DecimalType, nil
	case models.KindBoolean:
		return "BOOLEAN", nil
	case models.KindDate:
		return "DATE", nil
	case models.KindTimestamp:
		return "TIMESTAMP", nil
	case models.KindTimestampTZ:
		return "TIMESTAMPTZ", nil
	case models.KindTime:
		return "TIME", nil
	case models.KindBytes:
		return "BLOB", nil
	case models.KindJSON:
		return "JSON", nil
	default:
		return "", fmt.Errorf("unsupported kind: %q", kind)
	}
}

// KindForDataType maps the data_type reported by information_schema.columns.
func (DuckDBDialect) KindForDataType(dataType string) (models.ColumnKind, error) {
	dataType = strings.ToUpper(strings.TrimSpace(dataType))
	if idx := strings.Index(dataType, "("); idx >= 0 {
		dataType = strings.TrimSpace(dataType[:idx])
	}

	if strings.HasSuffix(dataType, "[]") {
		return models.KindJSON, nil
	}

	switch dataType {
	case "VARCHAR", "TEXT", "STRING", "CHAR", "BPCHAR", "UUID", "ENUM":
		return models.KindString, nil
	case "TINYINT", "SMALLINT", "INTEGER", "INT", "BIGINT", "HUGEINT", "UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT":
		return models.KindInteger, nil
	case "FLOAT", "REAL", "DOUBLE":
		return models.KindFloat, nil
	case "DECIMAL", "NUMERIC":
		return models.KindDecimal, nil
	case "BOOLEAN":
		return models.KindBoolean, nil
	case "DATE":
		return models.KindDate, nil
	case "TIMESTAMP", "DATETIME", "TIMESTAMP_NS", "TIMESTAMP_MS", "TIMESTAMP_S":
		return models.KindTimestamp, nil
	case "TIMESTAMP WITH TIME ZONE", "TIMESTAMPTZ":
		return models.KindTimestampTZ, nil
	case "TIME":
		return models.KindTime, nil
	case "BLOB", "BYTEA":
		return models.KindBytes, nil
	case "JSON", "STRUCT", "MAP", "LIST":
		return models.KindJSON, nil
	}
	return "", fmt.Errorf("unsupported data type: %s", dataType)
}

package sql

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-sql/civil"

	"github.com/padm/dwh/lib/cursor"
	"github.com/padm/dwh/models"
)

var commonDataTypes = map[string]models.ColumnKind{
	"BOOL":             models.KindBoolean,
	"BOOLEAN":          models.KindBoolean,
	"BIT":              models.KindBoolean,
	"TINYINT":          models.KindInteger,
	"SMALLINT":         models.KindInteger,
	"MEDIUMINT":        models.KindInteger,
	"INT":              models.KindInteger,
	"INTEGER":          models.KindInteger,
	"BIGINT":           models.KindInteger,
	"INT2":             models.KindInteger,
	"INT4":             models.KindInteger,
	"INT8":             models.KindInteger,
	"SERIAL":           models.KindInteger,
	"BIGSERIAL":        models.KindInteger,
	"REAL":             models.KindFloat,
	"FLOAT":            models.KindFloat,
	"FLOAT4":           models.KindFloat,
	"FLOAT8":           models.KindFloat,
	"DOUBLE":           models.KindFloat,
	"DOUBLE PRECISION": models.KindFloat,
	"DECIMAL":          models.KindDecimal,
	"NUMERIC":          models.KindDecimal,
	"MONEY":            models.KindDecimal,
	"SMALLMONEY":       models.KindDecimal,
	"DATE":             models.KindDate,
	"DATETIME":         models.KindTimestamp,
	"DATETIME2":        models.KindTimestamp,
	"SMALLDATETIME":    models.KindTimestamp,
	"TIMESTAMP":        models.KindTimestamp,
	"TIMESTAMPTZ":      models.KindTimestampTZ,
	"DATETIMEOFFSET":   models.KindTimestampTZ,
	"TIME":             models.KindTime,
	"TIMETZ":           models.KindTime,
	"BYTEA":            models.KindBytes,
	"BLOB":             models.KindBytes,
	"TINYBLOB":         models.KindBytes,
	"MEDIUMBLOB":       models.KindBytes,
	"LONGBLOB":         models.KindBytes,
	"BINARY":           models.KindBytes,
	"VARBINARY":        models.KindBytes,
	"IMAGE":            models.KindBytes,
	"JSON":             models.KindJSON,
	"JSONB":            models.KindJSON,
}

// baseDataType strips wrappers and parameters: "Nullable(DateTime64(3, 'UTC'))" -> "DATETIME64",
// "UNSIGNED BIGINT" -> "BIGINT", "_INT4" (a postgres array) stays as is.
func baseDataType(databaseTypeName string) string {
	name := strings.TrimSpace(databaseTypeName)
	for _, wrapper := range []string{"Nullable(", "LowCardinality("} {
		for strings.HasPrefix(name, wrapper) && strings.HasSuffix(name, ")") {
			name = strings.TrimSuffix(strings.TrimPrefix(name, wrapper), ")")
		}
	}

	if idx := strings.Index(name, "("); idx >= 0 {
		name = name[:idx]
	}

	name = strings.ToUpper(strings.TrimSpace(name))
	return strings.TrimPrefix(name, "UNSIGNED ")
}

func commonKindForDataType(databaseTypeName string) models.ColumnKind {
	if kind, ok := commonDataTypes[baseDataType(databaseTypeName)]; ok {
		return kind
	}
	return models.KindString
}

type PostgresDialect struct{}

func (PostgresDialect) Name() string { return "postgres" }

func (PostgresDialect) QuoteIdentifier(identifier string) string {
	return fmt.Sprintf(`"%s"`, strings.ReplaceAll(identifier, `"`, `""`))
}

func (PostgresDialect) Placeholder(position int) string {
	return fmt.Sprintf("$%d", position)
}

func (PostgresDialect) KindForDataType(databaseTypeName string) models.ColumnKind {
	return commonKindForDataType(databaseTypeName)
}

func (PostgresDialect) BindValue(value any) any {
	return cursor.BindValue(value)
}

type MySQLDialect struct{}

func (MySQLDialect) Name() string { return "mysql" }

func (MySQLDialect) QuoteIdentifier(identifier string) string {
	return fmt.Sprintf("`%s`", strings.ReplaceAll(identifier, "`", "``"))
}

func (MySQLDialect) Placeholder(_ int) string {
	return "?"
}

func (MySQLDialect) KindForDataType(databaseTypeName string) models.ColumnKind {
	switch baseDataType(databaseTypeName) {
	case "YEAR":
		return models.KindInteger
	}
	return commonKindForDataType(databaseTypeName)
}

func (MySQLDialect) BindValue(value any) any {
	return cursor.BindValue(value)
}

type MSSQLDialect struct{}

func (MSSQLDialect) Name() string { return "sqlserver" }

func (MSSQLDialect) QuoteIdentifier(identifier string) string {
	return fmt.Sprintf("[%s]", strings.ReplaceAll(identifier, "]", "]]"))
}

func (MSSQLDialect) Placeholder(position int) string {
	return fmt.Sprintf("@p%d", position)
}

func (MSSQLDialect) KindForDataType(databaseTypeName string) models.ColumnKind {
	switch baseDataType(databaseTypeName) {
	case "UNIQUEIDENTIFIER":
		return models.KindString
	case "TIMESTAMP", "ROWVERSION":
		// A row version, not a point in time.
		return models.KindBytes
	}
	return commonKindForDataType(databaseTypeName)
}

func (MSSQLDialect) BindValue(value any) any {
	return cursor.BindValue(value)
}

const sqliteDateTimeLayout = "2006-01-02 15:04:05.999999999"

// SQLiteDialect is used for local development sources. SQLite stores temporals as text, so checkpoints are bound
// as text in the same layout they are usually written in.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string { return "sqlite" }

func (SQLiteDialect) QuoteIdentifier(identifier string) string {
	return fmt.Sprintf(`"%s"`, strings.ReplaceAll(identifier, `"`, `""`))
}

func (SQLiteDialect) Placeholder(_ int) string {
	return "?"
}

func (SQLiteDialect) KindForDataType(databaseTypeName string) models.ColumnKind {
	return commonKindForDataType(databaseTypeName)
}

func (SQLiteDialect) BindValue(value any) any {
	switch castedValue := value.(type) {
	case civil.Date:
		return castedValue.String()
	case civil.DateTime:
		return castedValue.In(time.UTC).Format(sqliteDateTimeLayout)
	case time.Time:
		return castedValue.UTC().Format(time.RFC3339)
	}
	return cursor.BindValue(value)
}

type ClickHouseDialect struct{}

func (ClickHouseDialect) Name() string { return "clickhouse" }

func (ClickHouseDialect) QuoteIdentifier(identifier string) string {
	return fmt.Sprintf("`%s`", strings.ReplaceAll(identifier, "`", "\\`"))
}

func (ClickHouseDialect) Placeholder(_ int) string {
	return "?"
}

func (ClickHouseDialect) KindForDataType(databaseTypeName string) models.ColumnKind {
	switch name := baseDataType(databaseTypeName); {
	case name == "DATE" || name == "DATE32":
		return models.KindDate
	case name == "DATETIME" || name == "DATETIME64":
		// ClickHouse always attaches a time zone (the server's, if the column has none).
		return models.KindTimestampTZ
	case name == "BOOL":
		return models.KindBoolean
	case strings.HasPrefix(name, "INT") || strings.HasPrefix(name, "UINT"):
		return models.KindInteger
	case name == "FLOAT32" || name == "FLOAT64":
		return models.KindFloat
	case strings.HasPrefix(name, "DECIMAL"):
		return models.KindDecimal
	default:
		return models.KindString
	}
}

func (ClickHouseDialect) BindValue(value any) any {
	return cursor.BindValue(value)
}

// SourceDialectFor returns the dialect for a registered [database/sql] driver name.
func SourceDialectFor(driverName string) (SourceDialect, error) {
	switch driverName {
	case "pgx", "postgres":
		return PostgresDialect{}, nil
	case "mysql":
		return MySQLDialect{}, nil
	case "sqlserver", "mssql":
		return MSSQLDialect{}, nil
	case "sqlite", "sqlite3":
		return SQLiteDialect{}, nil
	case "clickhouse":
		return ClickHouseDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %q", driverName)
	}
}

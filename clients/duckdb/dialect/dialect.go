package dialect

import (
	"fmt"
	"strings"

	"github.com/padm/dwh/lib/config/constants"
	"github.com/padm/dwh/lib/sql"
	"github.com/padm/dwh/lib/stagefile"
	"github.com/padm/dwh/models"
)

type DuckDBDialect struct{}

// https://duckdb.org/docs/stable/sql/dialect/keywords_and_identifiers
func (DuckDBDialect) QuoteIdentifier(identifier string) string {
	return fmt.Sprintf(`"%s"`, strings.ReplaceAll(identifier, `"`, `""`))
}

// IsLockErr reports whether another process holds the database file.
func (DuckDBDialect) IsLockErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "Could not set lock")
}

func (d DuckDBDialect) BuildCreateSchemaQuery(schema string) string {
	return "CREATE SCHEMA IF NOT EXISTS " + d.QuoteIdentifier(schema)
}

func (d DuckDBDialect) columnDefinitions(cols []models.Column) ([]string, error) {
	var parts []string
	for _, col := range cols {
		dataType, err := d.DataTypeForKind(col.Kind)
		if err != nil {
			return nil, fmt.Errorf("failed to get data type for column %q: %w", col.Name, err)
		}
		parts = append(parts, fmt.Sprintf("%s %s", d.QuoteIdentifier(col.Name), dataType))
	}
	return parts, nil
}

func (d DuckDBDialect) BuildCreateTableQuery(tableID sql.TableIdentifier, cols []models.Column) (string, error) {
	if len(cols) == 0 {
		return "", fmt.Errorf("cannot create %s without columns", tableID.FullyQualifiedName())
	}

	parts, err := d.columnDefinitions(cols)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("CREATE TABLE %s (%s)", tableID.FullyQualifiedName(), strings.Join(parts, ", ")), nil
}

func (DuckDBDialect) BuildDropTableQuery(tableID sql.TableIdentifier) string {
	return sql.DefaultBuildDropTableQuery(tableID)
}

func (d DuckDBDialect) BuildAddColumnQuery(tableID sql.TableIdentifier, col models.Column) (string, error) {
	parts, err := d.columnDefinitions([]models.Column{col})
	if err != nil {
		return "", err
	}
	return sql.DefaultBuildAddColumnQuery(tableID, parts[0]), nil
}

func (d DuckDBDialect) BuildAlterColumnTypeQuery(tableID sql.TableIdentifier, col models.Column) (string, error) {
	dataType, err := d.DataTypeForKind(col.Kind)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s", tableID.FullyQualifiedName(), d.QuoteIdentifier(col.Name), dataType), nil
}

func (DuckDBDialect) BuildDescribeTableQuery(tableID sql.TableIdentifier) (string, []any) {
	query := `
SELECT
	column_name,
	data_type
FROM information_schema.columns
WHERE table_schema = $1
	AND table_name = $2
ORDER BY ordinal_position`

	return query, []any{tableID.Schema(), tableID.Table()}
}

// BuildCopyQuery appends one gzip TSV load file (see [stagefile.GzipWriter]) to [tableID]. The column types are
// declared so nothing is sniffed from the file.
func (d DuckDBDialect) BuildCopyQuery(tableID sql.TableIdentifier, cols []models.Column, filePath string) (string, error) {
	var columnTypes []string
	for _, col := range cols {
		dataType, err := d.DataTypeForKind(col.Kind)
		if err != nil {
			return "", fmt.Errorf("failed to get data type for column %q: %w", col.Name, err)
		}
		columnTypes = append(columnTypes, fmt.Sprintf("%s: %s", sql.QuoteLiteral(col.Name), sql.QuoteLiteral(dataType)))
	}

	return fmt.Sprintf(`INSERT INTO %s BY NAME SELECT * FROM read_csv(%s, delim = '\t', quote = '"', escape = '"', header = true, nullstr = %s, compression = 'gzip', columns = {%s})`,
		tableID.FullyQualifiedName(),
		sql.QuoteLiteral(filePath),
		sql.QuoteLiteral(stagefile.NullString),
		strings.Join(columnTypes, ", "),
	), nil
}

func (DuckDBDialect) BuildInsertQuery(tableID, stagingTableID sql.TableIdentifier) string {
	return fmt.Sprintf("INSERT INTO %s BY NAME SELECT * FROM %s", tableID.FullyQualifiedName(), stagingTableID.FullyQualifiedName())
}

// BuildDeleteStagedKeysQuery removes the rows of [tableID] that are about to be re-inserted from [stagingTableID].
func (d DuckDBDialect) BuildDeleteStagedKeysQuery(tableID, stagingTableID sql.TableIdentifier) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s IN (SELECT %s FROM %s AS stg)",
		tableID.FullyQualifiedName(),
		d.QuoteIdentifier(constants.StableKeyColumn),
		sql.QuoteTableAliasColumn("stg", constants.StableKeyColumn, d),
		stagingTableID.FullyQualifiedName(),
	)
}

// BuildReplaceQueries recreates [tableID] from [stagingTableID]. Rows of [keepSources] are carried over from the
// current table, that is how a source that failed this run keeps its previous snapshot.
func (d DuckDBDialect) BuildReplaceQueries(tableID, stagingTableID sql.TableIdentifier, tableExists bool, keepSources []string) []string {
	if !tableExists || len(keepSources) == 0 {
		return []string{
			fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s", tableID.FullyQualifiedName(), stagingTableID.FullyQualifiedName()),
		}
	}

	var literals []string
	for _, source := range keepSources {
		literals = append(literals, sql.QuoteLiteral(source))
	}

	replacementID := tableID.WithTable(tableID.Table() + "__replacement")
	return []string{
		d.BuildDropTableQuery(replacementID),
		fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s UNION ALL BY NAME SELECT * FROM %s WHERE %s IN (%s)",
			replacementID.FullyQualifiedName(),
			stagingTableID.FullyQualifiedName(),
			tableID.FullyQualifiedName(),
			d.QuoteIdentifier(constants.SourceDBColumn),
			strings.Join(literals, ", "),
		),
		d.BuildDropTableQuery(tableID),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", replacementID.FullyQualifiedName(), tableID.EscapedTable()),
	}
}

func (d DuckDBDialect) BuildCreateCheckpointTableQuery(tableID sql.TableIdentifier) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	resource VARCHAR NOT NULL,
	source_db VARCHAR NOT NULL,
	kind VARCHAR NOT NULL,
	value VARCHAR NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (resource, source_db)
)`, tableID.FullyQualifiedName())
}

func (DuckDBDialect) BuildSelectCheckpointsQuery(tableID sql.TableIdentifier) string {
	return fmt.Sprintf("SELECT source_db, kind, value FROM %s WHERE resource = $1 ORDER BY source_db", tableID.FullyQualifiedName())
}

func (DuckDBDialect) BuildSelectCheckpointQuery(tableID sql.TableIdentifier) string {
	return fmt.Sprintf("SELECT kind, value FROM %s WHERE resource = $1 AND source_db = $2", tableID.FullyQualifiedName())
}

func (DuckDBDialect) BuildUpsertCheckpointQuery(tableID sql.TableIdentifier) string {
	return fmt.Sprintf(`INSERT INTO %s (resource, source_db, kind, value, updated_at) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (resource, source_db) DO UPDATE SET kind = excluded.kind, value = excluded.value, updated_at = excluded.updated_at`,
		tableID.FullyQualifiedName(),
	)
}

package sql

import (
	"fmt"
	"strings"
)

const incrementalAlias = "_bronze_src"

// WrapIncremental returns [baseQuery] restricted to rows whose [column] is strictly greater than [bound], in
// ascending [column] order. Rows with a NULL cursor are never returned. A nil [bound] only applies the NULL filter.
func WrapIncremental(dialect SourceDialect, baseQuery, column string, bound any) (string, []any, error) {
	baseQuery = strings.TrimRight(strings.TrimSpace(baseQuery), "; \t\n")
	if baseQuery == "" {
		return "", nil, fmt.Errorf("base query is empty")
	}

	if column == "" {
		return "", nil, fmt.Errorf("checkpoint column is empty")
	}

	quotedColumn := dialect.QuoteIdentifier(column)
	conditions := []string{fmt.Sprintf("%s IS NOT NULL", quotedColumn)}
	var args []any
	if bound != nil {
		conditions = append(conditions, fmt.Sprintf("%s > %s", quotedColumn, dialect.Placeholder(1)))
		args = append(args, dialect.BindValue(bound))
	}

	query := fmt.Sprintf("SELECT * FROM (\n%s\n) AS %s WHERE %s ORDER BY %s ASC",
		baseQuery, incrementalAlias, strings.Join(conditions, " AND "), quotedColumn,
	)
	return query, args, nil
}

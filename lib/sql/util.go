package sql

import (
	"fmt"
	"strings"
)

// QuoteLiteral wraps [value] in single quotes, doubling any quote inside it.
func QuoteLiteral(value string) string {
	return fmt.Sprintf("'%s'", strings.ReplaceAll(value, "'", "''"))
}

// QuoteTableAliasColumn returns `alias."column"`.
func QuoteTableAliasColumn(alias, column string, dialect Dialect) string {
	return fmt.Sprintf("%s.%s", alias, dialect.QuoteIdentifier(column))
}

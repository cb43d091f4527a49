package sql

import "fmt"

// DefaultBuildDropTableQuery returns the standard DROP TABLE IF EXISTS query.
func DefaultBuildDropTableQuery(tableID TableIdentifier) string {
	return "DROP TABLE IF EXISTS " + tableID.FullyQualifiedName()
}

// DefaultBuildAddColumnQuery returns ALTER TABLE ADD COLUMN IF NOT EXISTS, so a column added by a previous run that
// failed later is not an error.
func DefaultBuildAddColumnQuery(tableID TableIdentifier, sqlPart string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s", tableID.FullyQualifiedName(), sqlPart)
}

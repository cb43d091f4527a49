package sql

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, "''", QuoteLiteral(""))
	assert.Equal(t, "'data/.staging/a.tsv.gz'", QuoteLiteral("data/.staging/a.tsv.gz"))
	assert.Equal(t, "'O''Reilly'", QuoteLiteral("O'Reilly"))
}

func TestQuoteTableAliasColumn(t *testing.T) {
	assert.Equal(t, `stg."dwh_pk"`, QuoteTableAliasColumn("stg", "dwh_pk", PostgresDialect{}))
}

func TestRowsToObjectsLowercase(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"Resource", "VALUE"}).
		AddRow("attendance", "2024-01-15").
		AddRow("census", nil))

	rows, err := db.Query("SELECT resource, value FROM checkpoints")
	require.NoError(t, err)

	objects, err := RowsToObjectsLowercase(rows)
	assert.NoError(t, err)
	assert.Equal(t, []map[string]any{
		{"resource": "attendance", "value": "2024-01-15"},
		{"resource": "census", "value": nil},
	}, objects)
}

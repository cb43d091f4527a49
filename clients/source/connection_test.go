package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseConnectionString(t *testing.T) {
	for _, tc := range []struct {
		name       string
		input      string
		driverName string
		dsn        string
	}{
		{"postgres", "postgres://user:pass@db:5432/guarani", "pgx", "postgres://user:pass@db:5432/guarani"},
		{"sqlalchemy postgres", "postgresql+psycopg2://user:pass@db:5432/guarani?sslmode=disable", "pgx", "postgres://user:pass@db:5432/guarani?sslmode=disable"},
		{"sqlalchemy mysql", "mysql+pymysql://user:pass@db/guarani", "mysql", "user:pass@tcp(db:3306)/guarani?parseTime=true"},
		{"mysql with port", "mysql://user:pass@db:3307/guarani", "mysql", "user:pass@tcp(db:3307)/guarani?parseTime=true"},
		{"sqlalchemy mssql", "mssql+pyodbc://sa:secret@db:1433/guarani?driver=ODBC+Driver+18+for+SQL+Server", "sqlserver", "sqlserver://sa:secret@db:1433?database=guarani"},
		{"sqlserver", "sqlserver://sa:secret@db:1433?database=guarani", "sqlserver", "sqlserver://sa:secret@db:1433?database=guarani"},
		{"sqlite relative", "sqlite:///data/guarani.db", "sqlite", "data/guarani.db"},
		{"sqlite absolute", "sqlite:////var/lib/guarani.db", "sqlite", "/var/lib/guarani.db"},
		{"clickhouse", "clickhouse+native://default:@ch:9000/guarani", "clickhouse", "clickhouse://default:@ch:9000/guarani"},
	} {
		connection, err := ParseConnectionString(tc.input)
		assert.NoError(t, err, tc.name)
		assert.Equal(t, tc.driverName, connection.DriverName, tc.name)
		assert.Equal(t, tc.dsn, connection.DSN, tc.name)
	}
}

func TestParseConnectionString_Invalid(t *testing.T) {
	{
		_, err := ParseConnectionString("user:pass@db/guarani")
		assert.ErrorContains(t, err, "connection string has no scheme")
	}
	{
		_, err := ParseConnectionString("oracle+cx_oracle://user:pass@db/guarani")
		assert.ErrorContains(t, err, `unsupported scheme: "oracle"`)
	}
	{
		_, err := ParseConnectionString("mysql://user:p%zz@db/guarani")
		assert.ErrorContains(t, err, "failed to parse mysql connection string")
		assert.NotContains(t, err.Error(), "p%zz")
	}
}

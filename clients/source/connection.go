package source

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Connection is a parsed source connection string.
type Connection struct {
	DriverName string
	DSN        string
}

// ParseConnectionString accepts driver URLs and SQLAlchemy style URLs ("postgresql+psycopg2://...") and returns the
// [database/sql] driver to use with a DSN it understands.
func ParseConnectionString(connectionString string) (Connection, error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(connectionString), "://")
	if !ok {
		return Connection{}, fmt.Errorf("connection string has no scheme")
	}

	scheme, _, _ = strings.Cut(strings.ToLower(scheme), "+")
	switch scheme {
	case "postgres", "postgresql":
		return Connection{DriverName: "pgx", DSN: "postgres://" + rest}, nil
	case "mysql", "mariadb":
		dsn, err := mysqlDSN(rest)
		if err != nil {
			return Connection{}, err
		}
		return Connection{DriverName: "mysql", DSN: dsn}, nil
	case "mssql", "sqlserver":
		dsn, err := sqlServerDSN(rest)
		if err != nil {
			return Connection{}, err
		}
		return Connection{DriverName: "sqlserver", DSN: dsn}, nil
	case "sqlite", "sqlite3":
		return Connection{DriverName: "sqlite", DSN: sqlitePath(rest)}, nil
	case "clickhouse":
		return Connection{DriverName: "clickhouse", DSN: "clickhouse://" + rest}, nil
	default:
		return Connection{}, fmt.Errorf("unsupported scheme: %q", scheme)
	}
}

func parseURL(scheme, rest string) (*url.URL, error) {
	parsed, err := url.Parse(scheme + "://" + rest)
	if err != nil {
		// The error would include the password.
		return nil, fmt.Errorf("failed to parse %s connection string", scheme)
	}
	return parsed, nil
}

func mysqlDSN(rest string) (string, error) {
	parsed, err := parseURL("mysql", rest)
	if err != nil {
		return "", err
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = parsed.Host
	if parsed.Port() == "" {
		cfg.Addr = parsed.Hostname() + ":3306"
	}
	cfg.User = parsed.User.Username()
	cfg.Passwd, _ = parsed.User.Password()
	cfg.DBName = strings.TrimPrefix(parsed.Path, "/")
	// Temporal columns have to arrive as [time.Time] to be classified.
	cfg.ParseTime = true

	for key, values := range parsed.Query() {
		if key == "ssl" || key == "ssl_mode" {
			// SQLAlchemy driver options, not server variables.
			continue
		}

		if cfg.Params == nil {
			cfg.Params = make(map[string]string)
		}
		cfg.Params[key] = values[0]
	}

	return cfg.FormatDSN(), nil
}

func sqlServerDSN(rest string) (string, error) {
	parsed, err := parseURL("sqlserver", rest)
	if err != nil {
		return "", err
	}

	query := parsed.Query()
	// Drivers for pyodbc and friends, meaningless here.
	query.Del("driver")
	if database := strings.TrimPrefix(parsed.Path, "/"); database != "" {
		query.Set("database", database)
	}

	parsed.Path = ""
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// sqlitePath turns "sqlite:///relative.db" and "sqlite:////abs.db" into file paths.
func sqlitePath(rest string) string {
	if strings.HasPrefix(rest, "/") {
		return rest[1:]
	}
	return rest
}

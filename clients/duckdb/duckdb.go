package duckdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	goSql "database/sql"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/padm/dwh/clients/duckdb/dialect"
	"github.com/padm/dwh/lib/config"
	"github.com/padm/dwh/lib/config/constants"
	"github.com/padm/dwh/lib/db"
)

const driverName = "duckdb"

// Store is the single-file destination. It is opened once per run, DuckDB's file lock keeps other processes out.
type Store struct {
	db.Store
	path    string
	dataset string
}

// Open validates the database file, quarantining it if it cannot be opened, then prepares the dataset schema and
// the checkpoint table.
func Open(ctx context.Context, cfg config.Destination) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	if err := EnsureValidFile(ctx, cfg.Path, time.Now()); err != nil {
		return nil, err
	}

	store, err := db.Open(ctx, driverName, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open destination %q: %w", cfg.Path, err)
	}

	s := NewStore(store, cfg.Path, cfg.Dataset)
	if err = s.setup(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

func NewStore(store db.Store, path, dataset string) *Store {
	return &Store{Store: store, path: path, dataset: dataset}
}

func (s *Store) dialect() dialect.DuckDBDialect {
	return dialect.DuckDBDialect{}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Dataset() string {
	return s.dataset
}

func (s *Store) IdentifierFor(table string) dialect.TableIdentifier {
	return dialect.NewTableIdentifier(s.dataset, table)
}

func (s *Store) checkpointTableID() dialect.TableIdentifier {
	return s.IdentifierFor(constants.CheckpointTable)
}

func (s *Store) setup(ctx context.Context) error {
	_, err := s.ExecContextStatements(ctx, []string{
		s.dialect().BuildCreateSchemaQuery(s.dataset),
		s.dialect().BuildCreateCheckpointTableQuery(s.checkpointTableID()),
	})
	if err != nil {
		return fmt.Errorf("failed to prepare dataset %q: %w", s.dataset, err)
	}
	return nil
}

// EnsureValidFile runs a trivial query against an existing database file. A file that fails it is renamed aside
// (never deleted) so a fresh database can be created in its place. A file locked by another process is an error.
func EnsureValidFile(ctx context.Context, path string, now time.Time) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	err := validate(ctx, path)
	if err == nil {
		return nil
	}

	if (dialect.DuckDBDialect{}).IsLockErr(err) {
		return fmt.Errorf("destination %q is in use by another process: %w", path, err)
	}

	quarantinedPath, qErr := quarantine(path, now)
	if qErr != nil {
		return fmt.Errorf("failed to quarantine invalid destination %q: %w", path, qErr)
	}

	slog.Warn("Invalid DuckDB file moved aside",
		slog.String("path", path),
		slog.String("quarantinedPath", quarantinedPath),
		slog.Any("err", err),
	)
	return nil
}

func validate(ctx context.Context, path string) error {
	conn, err := goSql.Open(driverName, path)
	if err != nil {
		return err
	}
	defer conn.Close()

	var one int
	return conn.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// QuarantinePath returns `<stem>.invalid.<YYYYmmddHHMMSS><ext>` next to [path].
func QuarantinePath(path string, now time.Time) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)
	return filepath.Join(filepath.Dir(path), fmt.Sprintf("%s.invalid.%s%s", stem, now.Format("20060102150405"), ext))
}

func quarantine(path string, now time.Time) (string, error) {
	quarantinedPath := QuarantinePath(path, now)
	if err := os.Rename(path, quarantinedPath); err != nil {
		return "", err
	}

	// The write-ahead log belongs to the file we just moved, replaying it into a fresh database would fail.
	if _, err := os.Stat(path + ".wal"); err == nil {
		if err = os.Rename(path+".wal", quarantinedPath+".wal"); err != nil {
			return "", err
		}
	}

	return quarantinedPath, nil
}

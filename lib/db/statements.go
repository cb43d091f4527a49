package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExecContextStatements runs [statements] in order. More than one statement runs in a single transaction, so
// either all of them apply or none do.
func (s *storeWrapper) ExecContextStatements(ctx context.Context, statements []string) ([]sql.Result, error) {
	switch len(statements) {
	case 0:
		return nil, fmt.Errorf("statements is empty")
	case 1:
		slog.Debug("Executing...", slog.String("query", statements[0]))
		result, err := s.ExecContext(ctx, statements[0])
		if err != nil {
			return nil, fmt.Errorf("failed to execute statement: %w", err)
		}

		return []sql.Result{result}, nil
	default:
		tx, err := s.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to start tx: %w", err)
		}

		results, err := ExecInTx(ctx, tx, statements)
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				slog.Warn("Unable to rollback", slog.Any("err", rollbackErr))
			}
			return nil, err
		}

		if err = tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit statements: %w", err)
		}
		return results, nil
	}
}

// ExecInTx runs [statements] inside an open transaction, stopping at the first failure. The caller decides whether
// to commit.
func ExecInTx(ctx context.Context, tx *sql.Tx, statements []string) ([]sql.Result, error) {
	var results []sql.Result
	for _, statement := range statements {
		slog.Debug("Executing...", slog.String("query", statement))
		result, err := tx.ExecContext(ctx, statement)
		if err != nil {
			return nil, fmt.Errorf("failed to execute statement: %q, err: %w", statement, err)
		}

		results = append(results, result)
	}
	return results, nil
}

package duckdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	goSql "database/sql"

	"github.com/padm/dwh/lib/checkpoint"
	"github.com/padm/dwh/lib/cursor"
)

// LoadCheckpoints returns the committed checkpoint of every source database of [resource].
func (s *Store) LoadCheckpoints(ctx context.Context, resource string) (map[string]any, error) {
	rows, err := s.QueryContext(ctx, s.dialect().BuildSelectCheckpointsQuery(s.checkpointTableID()), resource)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoints for %q: %w", resource, err)
	}
	defer rows.Close()

	values := make(map[string]any)
	for rows.Next() {
		var sourceDB, kind, encoded string
		if err = rows.Scan(&sourceDB, &kind, &encoded); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}

		value, err := cursor.Decode(cursor.Kind(kind), encoded)
		if err != nil {
			return nil, fmt.Errorf("checkpoint for %q/%q is corrupt: %w", resource, sourceDB, err)
		}
		values[sourceDB] = value
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate over checkpoints: %w", err)
	}

	return values, nil
}

// upsertCheckpoints writes [states] inside the load transaction. A state older than the committed one is skipped so a
// checkpoint never moves backward. It returns the states that were written.
func (s *Store) upsertCheckpoints(ctx context.Context, tx *goSql.Tx, states []checkpoint.State, now time.Time) ([]checkpoint.State, error) {
	tableID := s.checkpointTableID()
	var written []checkpoint.State
	for _, state := range states {
		var kind, encoded string
		err := tx.QueryRowContext(ctx, s.dialect().BuildSelectCheckpointQuery(tableID), state.Resource, state.SourceDB).Scan(&kind, &encoded)
		switch {
		case errors.Is(err, goSql.ErrNoRows):
		case err != nil:
			return nil, fmt.Errorf("failed to read checkpoint for %q/%q: %w", state.Resource, state.SourceDB, err)
		default:
			current, err := cursor.Decode(cursor.Kind(kind), encoded)
			if err != nil {
				return nil, fmt.Errorf("checkpoint for %q/%q is corrupt: %w", state.Resource, state.SourceDB, err)
			}

			cmp, err := cursor.Compare(state.Value, cursor.CoerceToKind(current, cursor.KindOf(state.Value)))
			if err != nil {
				return nil, fmt.Errorf("failed to compare checkpoint for %q/%q: %w", state.Resource, state.SourceDB, err)
			}
			if cmp <= 0 {
				continue
			}
		}

		newKind, newValue, err := state.Encode()
		if err != nil {
			return nil, err
		}

		if _, err = tx.ExecContext(ctx, s.dialect().BuildUpsertCheckpointQuery(tableID), state.Resource, state.SourceDB, string(newKind), newValue, now.UTC()); err != nil {
			return nil, fmt.Errorf("failed to write checkpoint for %q/%q: %w", state.Resource, state.SourceDB, err)
		}
		written = append(written, state)
	}

	return written, nil
}

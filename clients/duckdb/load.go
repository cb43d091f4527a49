package duckdb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/padm/dwh/clients/duckdb/dialect"
	"github.com/padm/dwh/lib/checkpoint"
	"github.com/padm/dwh/lib/config/constants"
	"github.com/padm/dwh/lib/db"
	"github.com/padm/dwh/models"
)

// LoadRequest is everything the load phase commits for one resource run.
type LoadRequest struct {
	Resource models.ResourceDescriptor
	// Schema is the column layout of every file in Files.
	Schema *models.Schema
	Files  []string
	// FailedSources had no successful attempt this run. Replace keeps their previous rows.
	FailedSources []string
	// Checkpoints are advanced in the same transaction as the load.
	Checkpoints []checkpoint.State
	Workers     int
}

type LoadResult struct {
	Rows int64
	// Checkpoints holds the states that were actually advanced.
	Checkpoints []checkpoint.State
}

func (s *Store) stagingTableID(resource string) dialect.TableIdentifier {
	return s.IdentifierFor(constants.StagingTablePrefix + resource)
}

// Load copies the load files into a staging table, then applies the resource's write mode and advances the
// checkpoints in a single transaction.
func (s *Store) Load(ctx context.Context, req LoadRequest) (LoadResult, error) {
	tableID := s.IdentifierFor(req.Resource.Name)
	stagingTableID := s.stagingTableID(req.Resource.Name)

	if err := s.createStagingTable(ctx, stagingTableID, req.Schema); err != nil {
		return LoadResult{}, err
	}

	defer func() {
		if _, err := s.ExecContext(context.WithoutCancel(ctx), s.dialect().BuildDropTableQuery(stagingTableID)); err != nil {
			slog.Warn("Failed to drop staging table", slog.String("table", stagingTableID.FullyQualifiedName()), slog.Any("err", err))
		}
	}()

	if err := s.copyFiles(ctx, stagingTableID, req); err != nil {
		return LoadResult{}, err
	}

	var result LoadResult
	if err := s.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", stagingTableID.FullyQualifiedName())).Scan(&result.Rows); err != nil {
		return LoadResult{}, fmt.Errorf("failed to count staged rows: %w", err)
	}

	existing, err := s.DescribeTable(ctx, tableID)
	if err != nil {
		return LoadResult{}, err
	}

	statements, err := s.buildMergeStatements(req, existing)
	if err != nil {
		return LoadResult{}, err
	}

	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return LoadResult{}, fmt.Errorf("failed to start a transaction: %w", err)
	}

	if _, err = db.ExecInTx(ctx, tx, statements); err != nil {
		_ = tx.Rollback()
		return LoadResult{}, fmt.Errorf("failed to load %s: %w", tableID.FullyQualifiedName(), err)
	}

	result.Checkpoints, err = s.upsertCheckpoints(ctx, tx, req.Checkpoints, time.Now())
	if err != nil {
		_ = tx.Rollback()
		return LoadResult{}, err
	}

	if err = tx.Commit(); err != nil {
		return LoadResult{}, fmt.Errorf("failed to commit the load of %s: %w", tableID.FullyQualifiedName(), err)
	}

	return result, nil
}

func (s *Store) createStagingTable(ctx context.Context, stagingTableID dialect.TableIdentifier, schema *models.Schema) error {
	createQuery, err := s.dialect().BuildCreateTableQuery(stagingTableID, schema.Columns())
	if err != nil {
		return err
	}

	// A previous run may have died before dropping it.
	_, err = s.ExecContextStatements(ctx, []string{s.dialect().BuildDropTableQuery(stagingTableID), createQuery})
	if err != nil {
		return fmt.Errorf("failed to create staging table: %w", err)
	}
	return nil
}

func (s *Store) copyFiles(ctx context.Context, stagingTableID dialect.TableIdentifier, req LoadRequest) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(max(req.Workers, 1))
	for _, file := range req.Files {
		group.Go(func() error {
			query, err := s.dialect().BuildCopyQuery(stagingTableID, req.Schema.Columns(), file)
			if err != nil {
				return err
			}

			if _, err = s.ExecContext(groupCtx, query); err != nil {
				return fmt.Errorf("failed to copy %q into %s: %w", file, stagingTableID.FullyQualifiedName(), err)
			}
			return nil
		})
	}
	return group.Wait()
}

func (s *Store) buildMergeStatements(req LoadRequest, existing *models.Schema) ([]string, error) {
	tableID := s.IdentifierFor(req.Resource.Name)
	stagingTableID := s.stagingTableID(req.Resource.Name)

	if req.Resource.WriteMode == constants.Replace {
		return s.dialect().BuildReplaceQueries(tableID, stagingTableID, existing != nil, req.FailedSources), nil
	}

	var statements []string
	if existing == nil {
		createQuery, err := s.dialect().BuildCreateTableQuery(tableID, req.Schema.Columns())
		if err != nil {
			return nil, err
		}
		statements = append(statements, createQuery)
	} else {
		alterQueries, err := s.buildAlterQueries(tableID, existing, req.Schema)
		if err != nil {
			return nil, err
		}
		statements = append(statements, alterQueries...)
	}

	if req.Resource.UsesStableKey() && existing != nil {
		statements = append(statements, s.dialect().BuildDeleteStagedKeysQuery(tableID, stagingTableID))
	}

	return append(statements, s.dialect().BuildInsertQuery(tableID, stagingTableID)), nil
}

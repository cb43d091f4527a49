package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/golang-sql/civil"
	"golang.org/x/sync/errgroup"

	"github.com/padm/dwh/lib/checkpoint"
	"github.com/padm/dwh/lib/config/constants"
	"github.com/padm/dwh/lib/cursor"
	"github.com/padm/dwh/lib/redact"
	sqllib "github.com/padm/dwh/lib/sql"
	"github.com/padm/dwh/lib/telemetry/metrics"
	"github.com/padm/dwh/lib/telemetry/metrics/base"
	"github.com/padm/dwh/models"
)

type Status string

const (
	Succeeded Status = "success"
	// UsedFallback means the primary query failed and the fallback query succeeded.
	UsedFallback Status = "fallback"
	Skipped      Status = "skipped"
)

type SourceResult struct {
	SourceDB string
	Status   Status
	Rows     int
	// Dropped counts rows below the committed checkpoint after coercion.
	Dropped int
	// Checkpoint is the greatest coerced cursor value seen, nil if no rows were read.
	Checkpoint any
	Err        error
}

type Result struct {
	Resource string
	Sources  []SourceResult
}

func (r Result) Rows() int {
	var rows int
	for _, source := range r.Sources {
		rows += source.Rows
	}
	return rows
}

func (r Result) Succeeded() []string {
	var names []string
	for _, source := range r.Sources {
		if source.Status != Skipped {
			names = append(names, source.SourceDB)
		}
	}
	return names
}

func (r Result) Failed() []string {
	var names []string
	for _, source := range r.Sources {
		if source.Status == Skipped {
			names = append(names, source.SourceDB)
		}
	}
	return names
}

// Checkpoints returns the candidate checkpoints, they may only be committed with the load.
func (r Result) Checkpoints() []checkpoint.State {
	var states []checkpoint.State
	for _, source := range r.Sources {
		if source.Status != Skipped && source.Checkpoint != nil {
			states = append(states, checkpoint.State{Resource: r.Resource, SourceDB: source.SourceDB, Value: source.Checkpoint})
		}
	}
	return states
}

type Args struct {
	Resource models.ResourceDescriptor
	// Checkpoints are the committed checkpoints of this resource by source database.
	Checkpoints   map[string]any
	BackfillFloor *civil.Date
	QueryTimeout  time.Duration
	// Workers bounds how many sources are extracted at once.
	Workers int
	Metrics base.Client
}

type Runner struct {
	Args
}

func New(args Args) *Runner {
	if args.Metrics == nil {
		args.Metrics = metrics.NullMetricsProvider{}
	}
	return &Runner{Args: args}
}

// Run extracts the resource from every source. A source that fails is skipped, only a [ConfigError] is returned.
func (r *Runner) Run(ctx context.Context, sources []Source, sink Sink) (Result, error) {
	results := make([]SourceResult, len(sources))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(max(r.Workers, 1))
	for i, src := range sources {
		group.Go(func() error {
			result, err := r.RunSource(groupCtx, src, sink)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return Result{}, err
	}

	return Result{Resource: r.Resource.Name, Sources: results}, nil
}

// RunSource drives one source through primary → fallback → skipped.
func (r *Runner) RunSource(ctx context.Context, src Source, sink Sink) (SourceResult, error) {
	logger := slog.With(slog.String("resource", r.Resource.Name), slog.String("source", src.Name()))
	result := SourceResult{SourceDB: src.Name(), Status: Succeeded}

	bound, err := r.bound(src.Name())
	if err != nil {
		return SourceResult{}, ConfigError{Resource: r.Resource.Name, Err: err}
	}

	result.Rows, result.Dropped, result.Checkpoint, err = r.attempt(ctx, src, sink, r.Resource.BaseQuery, bound)
	if err != nil && r.Resource.HasFallback() && !isConfigError(err) {
		logger.Warn("Primary query failed, trying the fallback query", slog.String("err", redact.ScrubError(err)))
		result.Status = UsedFallback
		result.Rows, result.Dropped, result.Checkpoint, err = r.attempt(ctx, src, sink, r.Resource.FallbackQuery, bound)
	}

	if err != nil {
		if isConfigError(err) {
			return SourceResult{}, err
		}

		if ctx.Err() != nil {
			// The run is being stopped, this is not a source failure.
			return SourceResult{}, ctx.Err()
		}

		logger.Error("Failed to extract, skipping source", slog.String("err", redact.ScrubError(err)))
		result = SourceResult{SourceDB: src.Name(), Status: Skipped, Err: err}
	} else {
		logger.Info("Extracted",
			slog.Int("rows", result.Rows),
			slog.Int("dropped", result.Dropped),
			slog.Any("checkpoint", result.Checkpoint),
			slog.String("status", string(result.Status)),
		)
	}

	r.Metrics.Incr("bronze.source", map[string]string{"resource": r.Resource.Name, "source": src.Name(), "what": string(result.Status)})
	r.Metrics.Count("bronze.rows", int64(result.Rows), map[string]string{"resource": r.Resource.Name, "source": src.Name()})
	return result, nil
}

func isConfigError(err error) bool {
	var configErr ConfigError
	return errors.As(err, &configErr)
}

// bound is the committed checkpoint of [sourceDB] in the resource's cursor kind, or the initial checkpoint.
func (r *Runner) bound(sourceDB string) (any, error) {
	if !r.Resource.IsIncremental() {
		return nil, nil
	}

	if committed, ok := r.Checkpoints[sourceDB]; ok && committed != nil {
		return cursor.CoerceToKind(committed, r.Resource.Cursor.Kind), nil
	}

	var floor any
	if r.BackfillFloor != nil {
		floor = *r.BackfillFloor
	}
	return r.Resource.InitialCheckpoint(floor)
}

func (r *Runner) buildQuery(src Source, query string, bound any) (string, []any, error) {
	if !r.Resource.IsIncremental() {
		return query, nil, nil
	}
	return sqllib.WrapIncremental(src.Dialect(), query, r.Resource.Cursor.Column, bound)
}

// attempt runs one query and streams it into a sink attempt, which is discarded on any error.
func (r *Runner) attempt(ctx context.Context, src Source, sink Sink, query string, bound any) (int, int, any, error) {
	query, args, err := r.buildQuery(src, query, bound)
	if err != nil {
		return 0, 0, nil, ConfigError{Resource: r.Resource.Name, Err: err}
	}

	if r.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.QueryTimeout)
		defer cancel()
	}

	rows, err := src.Query(ctx, query, args...)
	if err != nil {
		return 0, 0, nil, err
	}
	defer rows.Close()

	schema := rows.Schema()
	if r.Resource.IsIncremental() {
		if err = schema.Validate(r.Resource.Cursor.Column); err != nil {
			return 0, 0, nil, ConfigError{Resource: r.Resource.Name, Err: fmt.Errorf("checkpoint column: %w", err)}
		}
		schema.Override(map[string]models.ColumnKind{r.Resource.Cursor.Column: r.Resource.Cursor.ColumnKind()})
	}

	if r.Resource.UsesStableKey() {
		schema.Upsert(models.Column{Name: constants.StableKeyColumn, Kind: models.KindString})
	}

	sinkAttempt, err := sink.Begin(src.Name(), schema)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("failed to open staging for %q: %w", src.Name(), err)
	}

	count, dropped, latest, err := r.stream(rows, sinkAttempt, bound)
	if err != nil {
		if discardErr := sinkAttempt.Discard(); discardErr != nil {
			slog.Warn("Failed to discard staging", slog.String("source", src.Name()), slog.Any("err", discardErr))
		}
		return 0, 0, nil, err
	}

	if err = sinkAttempt.Commit(); err != nil {
		return 0, 0, nil, fmt.Errorf("failed to commit staging for %q: %w", src.Name(), err)
	}

	return count, dropped, latest, nil
}

func (r *Runner) stream(rows Rows, sinkAttempt Attempt, bound any) (int, int, any, error) {
	var count, dropped int
	var latest any
	for {
		record, err := rows.Next()
		if errors.Is(err, io.EOF) {
			return count, dropped, latest, nil
		} else if err != nil {
			return 0, 0, nil, err
		}

		if r.Resource.IsIncremental() {
			keep, err := r.checkCursor(record, bound, latest)
			if err != nil {
				return 0, 0, nil, err
			}

			if !keep {
				dropped++
				continue
			}

			latest, _ = record.Get(r.Resource.Cursor.Column)
		}

		if r.Resource.UsesStableKey() {
			record.AttachStableKey(r.Resource.Identity.Fields)
		}

		if err = sinkAttempt.Write(record); err != nil {
			return 0, 0, nil, fmt.Errorf("failed to stage record: %w", err)
		}
		count++
	}
}

// checkCursor coerces the record's cursor in place, against [bound] when there is one. Rows below [bound] are not
// kept; a row below [latest] means the source did not honor the ascending order, which would make the checkpoint
// unsafe to advance.
func (r *Runner) checkCursor(record *models.Record, bound, latest any) (bool, error) {
	column := r.Resource.Cursor.Column
	value, _ := record.Get(column)
	if value == nil {
		return false, nil
	}

	if text, ok := value.(string); ok && r.Resource.Cursor.Kind.IsTemporal() {
		// Drivers without temporal types (SQLite) hand over text.
		decoded, err := cursor.Decode(r.Resource.Cursor.Kind, text)
		if err != nil {
			return false, err
		}
		value = decoded
	}

	// The bound carries the committed checkpoint's location, dates and naive values are placed in it.
	var coerced any
	if bound != nil {
		coerced = cursor.Coerce(value, bound)
	} else {
		coerced = cursor.CoerceToKind(value, r.Resource.Cursor.Kind)
	}
	if kind := cursor.KindOf(coerced); kind != r.Resource.Cursor.Kind {
		return false, ConfigError{Resource: r.Resource.Name, Err: fmt.Errorf("checkpoint column %q holds %T, expected %q", column, value, r.Resource.Cursor.Kind)}
	}
	record.Set(column, coerced)

	if bound != nil {
		if cmp, err := cursor.Compare(coerced, bound); err != nil {
			return false, err
		} else if cmp < 0 {
			return false, nil
		}
	}

	if latest != nil {
		if cmp, err := cursor.Compare(coerced, latest); err != nil {
			return false, err
		} else if cmp < 0 {
			return false, fmt.Errorf("checkpoint column %q is not ascending: %v after %v", column, coerced, latest)
		}
	}

	return true, nil
}

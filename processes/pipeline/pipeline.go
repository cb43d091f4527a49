package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-sql/civil"

	"github.com/padm/dwh/clients/duckdb"
	"github.com/padm/dwh/lib"
	"github.com/padm/dwh/lib/checkpoint"
	"github.com/padm/dwh/lib/config"
	"github.com/padm/dwh/lib/config/constants"
	"github.com/padm/dwh/lib/telemetry/metrics"
	"github.com/padm/dwh/lib/telemetry/metrics/base"
	"github.com/padm/dwh/models"
	"github.com/padm/dwh/processes/runner"
)

const (
	heartbeatDelay    = time.Minute
	heartbeatInterval = 30 * time.Second
)

// Destination is the part of the destination store the pipeline drives.
type Destination interface {
	LoadCheckpoints(ctx context.Context, resource string) (map[string]any, error)
	Load(ctx context.Context, req duckdb.LoadRequest) (duckdb.LoadResult, error)
}

type Args struct {
	Resource    models.ResourceDescriptor
	Sources     []runner.Source
	Destination Destination
	Mirror      checkpoint.Mirror
	// StagingDir is created for the run and removed once the resource is done.
	StagingDir    string
	Workers       config.Workers
	BackfillFloor *civil.Date
	QueryTimeout  time.Duration
	Metrics       base.Client
}

type Result struct {
	Extract runner.Result
	// Loaded is false when the load phase was skipped.
	Loaded     bool
	Rows       int64
	Duplicates int
	// Checkpoints holds the checkpoints the load advanced.
	Checkpoints []checkpoint.State
}

// Run extracts, normalizes and loads one resource. Checkpoints are only advanced by the load transaction and only
// mirrored after it committed.
func Run(ctx context.Context, args Args) (Result, error) {
	if args.Metrics == nil {
		args.Metrics = metrics.NullMetricsProvider{}
	}

	if args.Mirror == nil {
		args.Mirror = checkpoint.NoopMirror{}
	}

	logger := slog.With(slog.String("resource", args.Resource.Name))
	extractDir := filepath.Join(args.StagingDir, "extract")
	normalizeDir := filepath.Join(args.StagingDir, "normalize")
	for _, dir := range []string{extractDir, normalizeDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, fmt.Errorf("failed to create staging directory: %w", err)
		}
	}

	defer func() {
		if err := os.RemoveAll(args.StagingDir); err != nil {
			logger.Warn("Failed to remove staging directory", slog.String("dir", args.StagingDir), slog.Any("err", err))
		}
	}()

	committed, err := args.Destination.LoadCheckpoints(ctx, args.Resource.Name)
	if err != nil {
		return Result{}, DestinationError{Err: fmt.Errorf("failed to load checkpoints: %w", err)}
	}

	phaseTags := func(phase string) map[string]string {
		return map[string]string{"resource": args.Resource.Name, "phase": phase}
	}
	startPhase := func(phase string) func() {
		return lib.NewHeartbeats(heartbeatDelay, heartbeatInterval, "bronze.phase.running", phaseTags(phase), args.Metrics).Start()
	}

	// Extract
	start := time.Now()
	stopHeartbeats := startPhase("extract")
	sink := newStagingSink(args.Resource.Name, extractDir)
	run := runner.New(runner.Args{
		Resource:      args.Resource,
		Checkpoints:   committed,
		BackfillFloor: args.BackfillFloor,
		QueryTimeout:  args.QueryTimeout,
		Workers:       args.Workers.Extract,
		Metrics:       args.Metrics,
	})

	var result Result
	result.Extract, err = run.Run(ctx, args.Sources, sink)
	stopHeartbeats()
	if err != nil {
		return Result{}, err
	}
	args.Metrics.Timing("bronze.phase", time.Since(start), phaseTags("extract"))

	if args.Resource.WriteMode == constants.Replace && len(result.Extract.Succeeded()) == 0 {
		logger.Warn("No source succeeded, keeping the previous table")
		return result, nil
	}

	files := sink.Files(sourceNames(args.Sources))
	if len(files) == 0 {
		logger.Info("Nothing was extracted, skipping load")
		return result, nil
	}

	// Normalize
	start = time.Now()
	stopHeartbeats = startPhase("normalize")
	defer stopHeartbeats()
	norm := &normalizer{resource: args.Resource, files: files, dir: normalizeDir, workers: args.Workers.Normalize}
	schema, err := norm.unionSchema()
	if err != nil {
		return Result{}, fmt.Errorf("failed to build the load schema: %w", err)
	}

	loadFiles, duplicates, err := norm.Run(ctx, schema)
	if err != nil {
		return Result{}, err
	}
	stopHeartbeats()
	result.Duplicates = duplicates
	args.Metrics.Timing("bronze.phase", time.Since(start), phaseTags("normalize"))

	// Load
	start = time.Now()
	stopLoadHeartbeats := startPhase("load")
	loaded, err := args.Destination.Load(ctx, duckdb.LoadRequest{
		Resource:      args.Resource,
		Schema:        schema,
		Files:         loadFiles,
		FailedSources: result.Extract.Failed(),
		Checkpoints:   result.Extract.Checkpoints(),
		Workers:       args.Workers.Load,
	})
	stopLoadHeartbeats()
	if err != nil {
		return Result{}, DestinationError{Err: err}
	}
	args.Metrics.Timing("bronze.phase", time.Since(start), phaseTags("load"))

	result.Loaded = true
	result.Rows = loaded.Rows
	result.Checkpoints = loaded.Checkpoints
	logger.Info("Loaded",
		slog.Int64("rows", result.Rows),
		slog.Int("duplicates", result.Duplicates),
		slog.Int("checkpoints", len(result.Checkpoints)),
	)

	if len(result.Checkpoints) > 0 {
		if err = args.Mirror.Publish(ctx, result.Checkpoints); err != nil {
			logger.Warn("Failed to mirror checkpoints", slog.Any("err", err))
		}
	}

	return result, nil
}

func sourceNames(sources []runner.Source) []string {
	names := make([]string, len(sources))
	for i, src := range sources {
		names[i] = src.Name()
	}
	return names
}

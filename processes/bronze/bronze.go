package bronze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/padm/dwh/clients/duckdb"
	"github.com/padm/dwh/clients/source"
	"github.com/padm/dwh/lib/checkpoint"
	"github.com/padm/dwh/lib/config"
	"github.com/padm/dwh/lib/redact"
	sqllib "github.com/padm/dwh/lib/sql"
	"github.com/padm/dwh/lib/telemetry/metrics"
	"github.com/padm/dwh/lib/telemetry/metrics/base"
	"github.com/padm/dwh/processes/pipeline"
	"github.com/padm/dwh/processes/runner"
	"github.com/padm/dwh/resources"
)

const stagingDirName = ".staging"

type ResourceResult struct {
	Resource string
	Pipeline pipeline.Result
	Duration time.Duration
	// Err is set when the resource failed, the run went on with the next one.
	Err error
}

type Summary struct {
	RunID     string
	Resources []ResourceResult
}

func (s Summary) Failed() []string {
	var names []string
	for _, resource := range s.Resources {
		if resource.Err != nil {
			names = append(names, resource.Resource)
		}
	}
	return names
}

// StagingRoot is where runs keep their extract and normalize buffers.
func StagingRoot(cfg config.Config) string {
	if cfg.Bronze.StagingDir != "" {
		return cfg.Bronze.StagingDir
	}
	return filepath.Join(filepath.Dir(cfg.Destination.Path), stagingDirName)
}

// Run opens the destination, then runs the selected resources one at a time. Only destination failures stop the
// run; a resource that fails is recorded in the summary.
func Run(ctx context.Context, cfg config.Config, metricsClient base.Client) (Summary, error) {
	if metricsClient == nil {
		metricsClient = metrics.NullMetricsProvider{}
	}

	backfillFloor, err := cfg.BackfillFloor()
	if err != nil {
		return Summary{}, err
	}

	registry, err := resources.Load(cfg.Bronze.ResourcesFile)
	if err != nil {
		return Summary{}, err
	}

	selected, err := registry.Select(cfg.Bronze.Resources, cfg.Bronze.Exclude)
	if err != nil {
		return Summary{}, err
	}

	store, err := duckdb.Open(ctx, cfg.Destination)
	if err != nil {
		return Summary{}, err
	}
	defer store.Close()

	sources, closeSources, err := openSources(ctx, cfg)
	if err != nil {
		return Summary{}, err
	}
	defer closeSources()

	mirror, err := checkpoint.NewMirror(ctx, cfg)
	if err != nil {
		return Summary{}, err
	}
	defer mirror.Close()

	summary := Summary{RunID: uuid.NewString()}
	runDir := filepath.Join(StagingRoot(cfg), summary.RunID)
	defer func() {
		if err := os.RemoveAll(runDir); err != nil {
			slog.Warn("Failed to remove staging directory", slog.String("dir", runDir), slog.Any("err", err))
		}
	}()

	slog.Info("Starting bronze run",
		slog.String("run_id", summary.RunID),
		slog.Int("resources", len(selected)),
		slog.Int("sources", len(sources)),
		slog.String("destination", store.Path()),
	)

	for _, resource := range selected {
		if err = ctx.Err(); err != nil {
			return summary, err
		}

		start := time.Now()
		result, err := pipeline.Run(ctx, pipeline.Args{
			Resource:      resource,
			Sources:       sources,
			Destination:   store,
			Mirror:        mirror,
			StagingDir:    filepath.Join(runDir, resource.Name),
			Workers:       cfg.Bronze.Workers,
			BackfillFloor: backfillFloor,
			QueryTimeout:  time.Duration(cfg.Bronze.QueryTimeoutSeconds) * time.Second,
			Metrics:       metricsClient,
		})

		resourceResult := ResourceResult{Resource: resource.Name, Pipeline: result, Duration: time.Since(start), Err: err}
		summary.Resources = append(summary.Resources, resourceResult)

		tags := map[string]string{"resource": resource.Name, "what": "success"}
		if err != nil {
			tags["what"] = whatFailed(err)
		}
		metricsClient.Timing("bronze.resource", resourceResult.Duration, tags)

		if err != nil {
			var destinationErr pipeline.DestinationError
			if errors.As(err, &destinationErr) || ctx.Err() != nil {
				return summary, fmt.Errorf("resource %q: %w", resource.Name, err)
			}

			slog.Error("Resource failed, moving on", slog.String("resource", resource.Name), slog.String("err", redact.ScrubError(err)))
		}
	}

	if failed := summary.Failed(); len(failed) > 0 {
		slog.Warn("Bronze run finished with failed resources", slog.Any("failed", failed))
	} else {
		slog.Info("Bronze run finished", slog.String("run_id", summary.RunID))
	}

	return summary, nil
}

func whatFailed(err error) string {
	var configErr runner.ConfigError
	if errors.As(err, &configErr) {
		return "config_error"
	}
	return "failed"
}

// openSources connects to every source database. A source that is configured correctly but unreachable is kept
// as an unavailable source, so every resource skips it the usual way.
func openSources(ctx context.Context, cfg config.Config) ([]runner.Source, func(), error) {
	var clients []*source.Client
	closeAll := func() {
		for _, client := range clients {
			if err := client.Close(); err != nil {
				slog.Warn("Failed to close source", slog.String("source", client.Name()), slog.Any("err", err))
			}
		}
	}

	var sources []runner.Source
	for _, sourceDB := range cfg.Sources {
		connection, err := source.ParseConnectionString(sourceDB.ConnectionString)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("source %q: %w", sourceDB.Name, err)
		}

		dialect, err := sqllib.SourceDialectFor(connection.DriverName)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("source %q: %w", sourceDB.Name, err)
		}

		client, err := source.Open(ctx, sourceDB)
		if err != nil {
			slog.Error("Failed to connect to source, it will be skipped", slog.String("source", sourceDB.Name), slog.String("err", redact.ScrubError(err)))
			sources = append(sources, runner.Unavailable(sourceDB.Name, dialect, err))
			continue
		}

		clients = append(clients, client)
		sources = append(sources, runner.FromClient(client))
	}

	return sources, closeAll, nil
}

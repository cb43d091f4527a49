package transform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/padm/dwh/clients/duckdb/dialect"
	"github.com/padm/dwh/lib/config"
	sqllib "github.com/padm/dwh/lib/sql"
	"github.com/padm/dwh/lib/telemetry/metrics"
	"github.com/padm/dwh/lib/telemetry/metrics/base"
)

// Connector hands out a pinned connection, `SET schema` only holds for the connection it ran on.
type Connector interface {
	Conn(ctx context.Context) (*sql.Conn, error)
}

type StepResult struct {
	Step  string
	Files []string
	// Skipped is true when the step had no SQL to run.
	Skipped bool
}

// Run executes the steps in order. A failing statement stops the run, later steps read what earlier ones built.
func Run(ctx context.Context, store Connector, steps []config.TransformStep, metricsClient base.Client) ([]StepResult, error) {
	if metricsClient == nil {
		metricsClient = metrics.NullMetricsProvider{}
	}

	var results []StepResult
	for _, step := range steps {
		start := time.Now()
		result, err := runStep(ctx, store, step)
		if err != nil {
			metricsClient.Timing("transform.step", time.Since(start), map[string]string{"step": stepName(step), "what": "failed"})
			return results, err
		}

		metricsClient.Timing("transform.step", time.Since(start), map[string]string{"step": stepName(step), "what": "success"})
		results = append(results, result)
	}
	return results, nil
}

func stepName(step config.TransformStep) string {
	if step.Name != "" {
		return step.Name
	}
	return step.Schema
}

// sqlFiles returns the `*.sql` files of [dir] sorted by name, nil if [dir] does not exist.
func sqlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.EqualFold(filepath.Ext(entry.Name()), ".sql") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}

	slices.Sort(files)
	return files, nil
}

func runStep(ctx context.Context, store Connector, step config.TransformStep) (StepResult, error) {
	logger := slog.With(slog.String("step", stepName(step)), slog.String("dir", step.SQLDir))
	result := StepResult{Step: stepName(step)}

	files, err := sqlFiles(step.SQLDir)
	if err != nil {
		return result, fmt.Errorf("failed to list %q: %w", step.SQLDir, err)
	}

	if len(files) == 0 {
		logger.Info("No SQL files, skipping step")
		result.Skipped = true
		return result, nil
	}

	conn, err := store.Conn(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to get a connection: %w", err)
	}
	defer conn.Close()

	var duckDialect dialect.DuckDBDialect
	for _, query := range []string{
		duckDialect.BuildCreateSchemaQuery(step.Schema),
		fmt.Sprintf("SET schema = %s", sqllib.QuoteLiteral(step.Schema)),
	} {
		if _, err = conn.ExecContext(ctx, query); err != nil {
			return result, fmt.Errorf("failed to prepare schema %q: %w", step.Schema, err)
		}
	}

	for _, file := range files {
		text, err := os.ReadFile(file)
		if err != nil {
			return result, err
		}

		for i, statement := range SplitStatements(string(text)) {
			if _, err = conn.ExecContext(ctx, statement); err != nil {
				return result, fmt.Errorf("%s statement %d failed: %w", filepath.Base(file), i+1, err)
			}
		}

		logger.Info("Executed", slog.String("file", filepath.Base(file)))
		result.Files = append(result.Files, filepath.Base(file))
	}

	return result, nil
}

// SplitStatements splits a script on `;`. Semicolons inside quotes or comments do not end a statement, blank
// statements are dropped.
func SplitStatements(script string) []string {
	var statements []string
	var current strings.Builder
	flush := func() {
		if statement := strings.TrimSpace(current.String()); statement != "" && !onlyComments(statement) {
			statements = append(statements, statement)
		}
		current.Reset()
	}

	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case c == '\'' || c == '"':
			end := closingQuote(script, i)
			current.WriteString(script[i:end])
			i = end - 1
		case c == '-' && strings.HasPrefix(script[i:], "--"):
			end := strings.IndexByte(script[i:], '\n')
			if end < 0 {
				end = len(script) - i
			}
			current.WriteString(script[i : i+end])
			i += end - 1
		case c == '/' && strings.HasPrefix(script[i:], "/*"):
			end := strings.Index(script[i+2:], "*/")
			if end < 0 {
				current.WriteString(script[i:])
				i = len(script)
				continue
			}
			current.WriteString(script[i : i+end+4])
			i += end + 3
		case c == ';':
			flush()
		default:
			current.WriteByte(c)
		}
	}

	flush()
	return statements
}

// closingQuote returns the index just past the quote that closes the one at [start]. Doubled quotes are escapes.
func closingQuote(script string, start int) int {
	quote := script[start]
	for i := start + 1; i < len(script); i++ {
		if script[i] != quote {
			continue
		}

		if i+1 < len(script) && script[i+1] == quote {
			i++
			continue
		}
		return i + 1
	}
	return len(script)
}

func onlyComments(statement string) bool {
	for _, line := range strings.Split(statement, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}

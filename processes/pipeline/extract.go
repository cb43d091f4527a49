package pipeline

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"

	"github.com/padm/dwh/lib/stagefile"
	"github.com/padm/dwh/models"
	"github.com/padm/dwh/processes/runner"
)

type stagedFile struct {
	sourceDB string
	path     string
}

// stagingSink spools every source attempt into its own staging file and keeps the committed ones.
type stagingSink struct {
	resource string
	dir      string

	mu       sync.Mutex
	attempts int
	files    []stagedFile
}

func newStagingSink(resource, dir string) *stagingSink {
	return &stagingSink{resource: resource, dir: dir}
}

func (s *stagingSink) Begin(sourceDB string, schema *models.Schema) (runner.Attempt, error) {
	s.mu.Lock()
	s.attempts++
	path := filepath.Join(s.dir, fmt.Sprintf("%s-%d.jsonl.gz", sourceDB, s.attempts))
	s.mu.Unlock()

	writer, err := stagefile.NewWriter(path, stagefile.NewHeader(s.resource, sourceDB, schema))
	if err != nil {
		return nil, err
	}

	return &stagingAttempt{sink: s, sourceDB: sourceDB, schema: schema, writer: writer}, nil
}

func (s *stagingSink) commit(file stagedFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, file)
}

// Files returns the committed files in [sources] order, so schema unions and last-wins dedupe do not depend on
// which source finished first.
func (s *stagingSink) Files(sources []string) []stagedFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := slices.Clone(s.files)
	slices.SortStableFunc(files, func(a, b stagedFile) int {
		return slices.Index(sources, a.sourceDB) - slices.Index(sources, b.sourceDB)
	})
	return files
}

type stagingAttempt struct {
	sink     *stagingSink
	sourceDB string
	schema   *models.Schema
	writer   *stagefile.Writer
}

func (a *stagingAttempt) Write(record *models.Record) error {
	columns := a.schema.Columns()
	values := record.Values(a.schema)
	row := make([]*string, len(values))
	for i, value := range values {
		formatted, err := stagefile.FormatValue(value, columns[i].Kind)
		if err != nil {
			return fmt.Errorf("column %q: %w", columns[i].Name, err)
		}
		row[i] = formatted
	}

	return a.writer.Write(row)
}

func (a *stagingAttempt) Commit() error {
	if err := a.writer.Close(); err != nil {
		return err
	}

	slog.Debug("Staged source rows", slog.String("source", a.sourceDB), slog.Int("rows", a.writer.Rows()), slog.String("path", a.writer.Path()))
	a.sink.commit(stagedFile{sourceDB: a.sourceDB, path: a.writer.Path()})
	return nil
}

func (a *stagingAttempt) Discard() error {
	return a.writer.Discard()
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/sync/errgroup"

	"github.com/padm/dwh/lib/config/constants"
	"github.com/padm/dwh/lib/stagefile"
	"github.com/padm/dwh/models"
)

// rowID locates a row as (file index, row index within the file).
type rowID struct {
	file int
	row  int
}

type normalizer struct {
	resource models.ResourceDescriptor
	files    []stagedFile
	dir      string
	workers  int
}

// unionSchema merges the headers of every staged file, then applies the resource's type overrides.
func (n *normalizer) unionSchema() (*models.Schema, error) {
	schema := models.NewSchema()
	for _, file := range n.files {
		reader, err := stagefile.Open(file.path)
		if err != nil {
			return nil, err
		}

		schema.Merge(reader.Header().Schema())
		if err = reader.Close(); err != nil {
			return nil, err
		}
	}

	schema.Override(n.resource.ColumnTypeOverrides)
	return schema, nil
}

// latestRows returns, per stable key, the last row that carries it. Only keys are held in memory.
func (n *normalizer) latestRows() (map[string]rowID, error) {
	latest := make(map[string]rowID)
	for fileIndex, file := range n.files {
		err := forEachRow(file.path, func(header stagefile.Header, rowIndex int, values []*string) error {
			keyIndex := slices.IndexFunc(header.Columns, func(col stagefile.Column) bool { return col.Name == constants.StableKeyColumn })
			if keyIndex < 0 || values[keyIndex] == nil {
				return fmt.Errorf("%q has no %q", file.path, constants.StableKeyColumn)
			}

			latest[*values[keyIndex]] = rowID{file: fileIndex, row: rowIndex}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return latest, nil
}

// Run writes one gzip TSV load file per staged file, in the column order of [schema].
func (n *normalizer) Run(ctx context.Context, schema *models.Schema) ([]string, int, error) {
	var latest map[string]rowID
	if n.resource.UsesStableKey() {
		var err error
		if latest, err = n.latestRows(); err != nil {
			return nil, 0, err
		}
	}

	paths := make([]string, len(n.files))
	duplicates := make([]int, len(n.files))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(max(n.workers, 1))
	for fileIndex, file := range n.files {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}

			path := filepath.Join(n.dir, fmt.Sprintf("part-%d.tsv.gz", fileIndex))
			skipped, err := n.writeLoadFile(file, fileIndex, path, schema, latest)
			if err != nil {
				return fmt.Errorf("failed to normalize %q: %w", file.path, err)
			}

			paths[fileIndex] = path
			duplicates[fileIndex] = skipped
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, 0, err
	}

	var totalDuplicates int
	for _, count := range duplicates {
		totalDuplicates += count
	}
	return paths, totalDuplicates, nil
}

func (n *normalizer) writeLoadFile(file stagedFile, fileIndex int, path string, schema *models.Schema, latest map[string]rowID) (int, error) {
	writer, err := stagefile.NewGzipWriter(path)
	if err != nil {
		return 0, err
	}

	if err = writer.Write(schema.ColumnNames()); err != nil {
		_ = writer.Close()
		return 0, err
	}

	columns := schema.Columns()
	var skipped int
	err = forEachRow(file.path, func(header stagefile.Header, rowIndex int, values []*string) error {
		byName := make(map[string]*string, len(values))
		for i, col := range header.Columns {
			byName[col.Name] = values[i]
		}

		if latest != nil {
			if key := byName[constants.StableKeyColumn]; key != nil && latest[*key] != (rowID{file: fileIndex, row: rowIndex}) {
				skipped++
				return nil
			}
		}

		row := make([]*string, len(columns))
		for i, col := range columns {
			value, err := normalizeValue(byName[col.Name], col.Kind)
			if err != nil {
				return fmt.Errorf("column %q: %w", col.Name, err)
			}
			row[i] = value
		}
		return writer.WriteValues(row)
	})
	if err != nil {
		_ = writer.Close()
		return 0, err
	}

	return skipped, writer.Close()
}

// normalizeValue shapes a staged value for its destination column. Decimals are rewritten in plain notation
// without trailing zeros; NaN and infinities have no DECIMAL representation and load as NULL.
func normalizeValue(value *string, kind models.ColumnKind) (*string, error) {
	if value == nil || kind != models.KindDecimal {
		return value, nil
	}

	var decimal apd.Decimal
	if _, _, err := decimal.SetString(*value); err != nil {
		return nil, fmt.Errorf("invalid decimal %q: %w", *value, err)
	}

	if decimal.Form != apd.Finite {
		slog.Warn("Loading a non-finite decimal as NULL", slog.String("value", *value))
		return nil, nil
	}

	decimal.Reduce(&decimal)
	text := decimal.Text('f')
	return &text, nil
}

func forEachRow(path string, fn func(header stagefile.Header, rowIndex int, values []*string) error) error {
	reader, err := stagefile.Open(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	for rowIndex := 0; ; rowIndex++ {
		values, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}

		if err = fn(reader.Header(), rowIndex, values); err != nil {
			return err
		}
	}
}

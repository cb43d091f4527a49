package stagefile

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// NullString marks a NULL in a load file, readers must be told about it (DuckDB: nullstr).
const NullString = `\N`

// GzipWriter writes gzip compressed, tab separated load files.
type GzipWriter struct {
	file   *os.File
	gzip   *gzip.Writer
	writer *csv.Writer
	closed bool
}

func NewGzipWriter(fp string) (*GzipWriter, error) {
	file, err := os.Create(fp)
	if err != nil {
		return nil, err
	}

	gzipWriter := gzip.NewWriter(file)
	csvWriter := csv.NewWriter(gzipWriter)
	csvWriter.Comma = '\t'
	return &GzipWriter{
		file:   file,
		gzip:   gzipWriter,
		writer: csvWriter,
	}, nil
}

func (g *GzipWriter) FileName() string {
	return filepath.Base(g.file.Name())
}

func (g *GzipWriter) FilePath() string {
	return g.file.Name()
}

func (g *GzipWriter) Write(row []string) error {
	return g.writer.Write(row)
}

// WriteValues writes a row where nil values are NULL.
func (g *GzipWriter) WriteValues(values []*string) error {
	row := make([]string, len(values))
	for i, value := range values {
		if value == nil {
			row[i] = NullString
		} else {
			row[i] = *value
		}
	}
	return g.Write(row)
}

func (g *GzipWriter) Flush() error {
	g.writer.Flush()
	return g.writer.Error()
}

func (g *GzipWriter) Close() error {
	if g.closed {
		return fmt.Errorf("%q is already closed", g.FileName())
	}
	g.closed = true

	g.writer.Flush()
	if err := g.writer.Error(); err != nil {
		// If the writer failed to close, let's try to close the gzip writer and file.
		_ = g.gzip.Close()
		_ = g.file.Close()
		return err
	}
	if err := g.gzip.Close(); err != nil {
		// If gzip fails, we should at least try to close the file
		_ = g.file.Close()
		return err
	}
	return g.file.Close()
}

package stagefile

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/padm/dwh/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Column struct {
	Name string            `json:"name"`
	Kind models.ColumnKind `json:"kind"`
}

// Header is the first line of a staging file: who produced it and in what column order the rows follow.
type Header struct {
	Resource string   `json:"resource"`
	SourceDB string   `json:"sourceDB"`
	Columns  []Column `json:"columns"`
}

func NewHeader(resource, sourceDB string, schema *models.Schema) Header {
	header := Header{Resource: resource, SourceDB: sourceDB}
	for _, column := range schema.Columns() {
		header.Columns = append(header.Columns, Column{Name: column.Name, Kind: column.Kind})
	}
	return header
}

func (h Header) Schema() *models.Schema {
	schema := models.NewSchema()
	for _, column := range h.Columns {
		schema.Upsert(models.Column{Name: column.Name, Kind: column.Kind})
	}
	return schema
}

// Writer spools rows extracted from one source attempt into a gzip compressed JSON lines file. Each row is an array
// of strings (or null) in header order, so nothing from the source is held in memory.
type Writer struct {
	path   string
	file   *os.File
	gzip   *gzip.Writer
	buffer *bufio.Writer
	stream *jsoniter.Stream
	rows   int
	closed bool
}

func NewWriter(path string, header Header) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	gzipWriter := gzip.NewWriter(file)
	buffer := bufio.NewWriter(gzipWriter)
	writer := &Writer{
		path:   path,
		file:   file,
		gzip:   gzipWriter,
		buffer: buffer,
		stream: jsoniter.NewStream(json, buffer, 4096),
	}

	if err = writer.writeLine(header); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	return writer, nil
}

func (w *Writer) writeLine(value any) error {
	w.stream.WriteVal(value)
	w.stream.WriteRaw("\n")
	if w.stream.Error != nil {
		return w.stream.Error
	}
	return w.stream.Flush()
}

func (w *Writer) Write(values []*string) error {
	if err := w.writeLine(values); err != nil {
		return err
	}
	w.rows++
	return nil
}

func (w *Writer) Path() string {
	return w.path
}

func (w *Writer) Rows() int {
	return w.rows
}

func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	return errors.Join(w.buffer.Flush(), w.gzip.Close(), w.file.Close())
}

// Discard closes and removes the file, used when the attempt that produced it failed.
func (w *Writer) Discard() error {
	closeErr := w.Close()
	if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Join(closeErr, err)
	}
	return nil
}

type Reader struct {
	file   *os.File
	gzip   *gzip.Reader
	buffer *bufio.Reader
	header Header
}

func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}

	reader := &Reader{file: file, gzip: gzipReader, buffer: bufio.NewReader(gzipReader)}
	if err = reader.readLine(&reader.header); err != nil {
		_ = reader.Close()
		return nil, fmt.Errorf("failed to read header of %q: %w", path, err)
	}

	return reader, nil
}

func (r *Reader) Header() Header {
	return r.header
}

func (r *Reader) readLine(value any) error {
	line, err := r.buffer.ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return err
	}
	return json.Unmarshal(line, value)
}

// Next returns the next row, [io.EOF] once the file is exhausted.
func (r *Reader) Next() ([]*string, error) {
	var values []*string
	if err := r.readLine(&values); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to decode row: %w", err)
	}

	if len(values) != len(r.header.Columns) {
		return nil, fmt.Errorf("row has %d values, expected %d", len(values), len(r.header.Columns))
	}

	return values, nil
}

func (r *Reader) Close() error {
	return errors.Join(r.gzip.Close(), r.file.Close())
}

package stagefile

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-sql/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padm/dwh/lib/ptr"
	"github.com/padm/dwh/models"
)

func TestGzipWriter(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "test.tsv.gz")
	writer, err := NewGzipWriter(filePath)
	assert.NoError(t, err)

	rows := [][]string{
		{"column1", "column2"},
		{"value1", "value2"},
		{"", ""},                          // Test empty row
		{"hello\tdusty", "newline\nvalue"}, // Test special characters
	}

	for _, row := range rows {
		assert.NoError(t, writer.Write(row))
	}
	assert.NoError(t, writer.WriteValues([]*string{ptr.ToString("a"), nil}))

	assert.NoError(t, writer.Flush())
	assert.NoError(t, writer.Close())
	assert.ErrorContains(t, writer.Close(), "already closed")
	assert.Equal(t, "test.tsv.gz", writer.FileName())
	assert.Equal(t, filePath, writer.FilePath())

	// Verify the file contents
	file, err := os.Open(filePath)
	assert.NoError(t, err)
	defer file.Close()

	gzipReader, err := gzip.NewReader(file)
	assert.NoError(t, err)
	defer gzipReader.Close()

	csvReader := csv.NewReader(gzipReader)
	csvReader.Comma = '\t'

	for _, expectedRow := range append(rows, []string{"a", NullString}) {
		row, err := csvReader.Read()
		assert.NoError(t, err)
		assert.Equal(t, expectedRow, row)
	}
}

func TestWriterReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attendance.guarani_fce.jsonl.gz")
	schema := models.NewSchema(
		models.Column{Name: "legajo", Kind: models.KindString},
		models.Column{Name: "fecha", Kind: models.KindDate},
	)

	writer, err := NewWriter(path, NewHeader("attendance", "guarani_fce", schema))
	require.NoError(t, err)
	assert.NoError(t, writer.Write([]*string{ptr.ToString("123"), ptr.ToString("2024-01-15")}))
	assert.NoError(t, writer.Write([]*string{ptr.ToString("tab\there \"quoted\"\nnewline"), nil}))
	assert.Equal(t, 2, writer.Rows())
	assert.NoError(t, writer.Close())
	assert.NoError(t, writer.Close())

	reader, err := Open(path)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, "attendance", reader.Header().Resource)
	assert.Equal(t, "guarani_fce", reader.Header().SourceDB)
	assert.Equal(t, schema.Columns(), reader.Header().Schema().Columns())

	row, err := reader.Next()
	assert.NoError(t, err)
	assert.Equal(t, []*string{ptr.ToString("123"), ptr.ToString("2024-01-15")}, row)

	row, err = reader.Next()
	assert.NoError(t, err)
	assert.Equal(t, []*string{ptr.ToString("tab\there \"quoted\"\nnewline"), nil}, row)

	_, err = reader.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestWriter_Discard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed.jsonl.gz")
	writer, err := NewWriter(path, Header{Resource: "attendance"})
	require.NoError(t, err)
	assert.NoError(t, writer.Write([]*string{}))
	assert.NoError(t, writer.Discard())

	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReader_Mismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl.gz")
	writer, err := NewWriter(path, Header{Columns: []Column{{Name: "a"}}})
	require.NoError(t, err)
	assert.NoError(t, writer.Write([]*string{ptr.ToString("1"), ptr.ToString("2")}))
	assert.NoError(t, writer.Close())

	reader, err := Open(path)
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.Next()
	assert.ErrorContains(t, err, "row has 2 values, expected 1")
}

type stringer struct{}

func (stringer) String() string { return "12.50" }

func TestFormatValue(t *testing.T) {
	art := time.FixedZone("ART", -3*60*60)
	for _, tc := range []struct {
		value    any
		kind     models.ColumnKind
		expected *string
	}{
		{nil, models.KindString, nil},
		{[]byte(nil), models.KindString, nil},
		{"hola", models.KindString, ptr.ToString("hola")},
		{[]byte("hola"), models.KindString, ptr.ToString("hola")},
		{[]byte{0x00, 0xAB}, models.KindBytes, ptr.ToString(`\x00\xAB`)},
		{true, models.KindBoolean, ptr.ToString("true")},
		{42, models.KindInteger, ptr.ToString("42")},
		{int64(-7), models.KindInteger, ptr.ToString("-7")},
		{uint8(7), models.KindInteger, ptr.ToString("7")},
		{1.5, models.KindFloat, ptr.ToString("1.5")},
		{float32(0.25), models.KindFloat, ptr.ToString("0.25")},
		{civil.Date{Year: 2024, Month: 1, Day: 15}, models.KindDate, ptr.ToString("2024-01-15")},
		{civil.DateTime{Date: civil.Date{Year: 2024, Month: 1, Day: 15}, Time: civil.Time{Hour: 10, Minute: 30, Nanosecond: 500_000_000}}, models.KindTimestamp, ptr.ToString("2024-01-15 10:30:00.5")},
		{time.Date(2024, 1, 15, 10, 30, 0, 0, art), models.KindTimestampTZ, ptr.ToString("2024-01-15T10:30:00-03:00")},
		{time.Date(2024, 1, 15, 10, 30, 0, 0, art), models.KindDate, ptr.ToString("2024-01-15")},
		{time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), models.KindTimestamp, ptr.ToString("2024-01-15 10:30:00")},
		{time.Date(0, 1, 1, 10, 30, 15, 0, time.UTC), models.KindTime, ptr.ToString("10:30:15")},
		{stringer{}, models.KindDecimal, ptr.ToString("12.50")},
		{map[string]any{"a": 1}, models.KindJSON, ptr.ToString(`{"a":1}`)},
		{[]any{"a", 1}, models.KindJSON, ptr.ToString(`["a",1]`)},
	} {
		actual, err := FormatValue(tc.value, tc.kind)
		assert.NoError(t, err, fmt.Sprintf("%v", tc.value))
		assert.Equal(t, tc.expected, actual, fmt.Sprintf("%#v", tc.value))
	}
}

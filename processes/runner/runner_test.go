package runner

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-sql/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padm/dwh/lib/config/constants"
	"github.com/padm/dwh/lib/cursor"
	sqllib "github.com/padm/dwh/lib/sql"
	"github.com/padm/dwh/models"
)

type fakeRows struct {
	schema  *models.Schema
	records []*models.Record
	// failAfter makes Next fail once that many records were returned, -1 never fails.
	failAfter int
	index     int
}

func (f *fakeRows) Schema() *models.Schema {
	return f.schema
}

func (f *fakeRows) Next() (*models.Record, error) {
	if f.failAfter >= 0 && f.index == f.failAfter {
		return nil, fmt.Errorf("connection reset by peer")
	}

	if f.index >= len(f.records) {
		return nil, io.EOF
	}

	record := f.records[f.index]
	f.index++
	return record, nil
}

func (f *fakeRows) Close() error {
	return nil
}

type response struct {
	columns   []models.Column
	rows      [][]any
	err       error
	failAfter int
}

type fakeSource struct {
	name string
	// responses is keyed by a fragment of the base query.
	responses map[string]response

	mu      sync.Mutex
	queries []string
	args    [][]any
}

func (f *fakeSource) Name() string {
	return f.name
}

func (f *fakeSource) Dialect() sqllib.SourceDialect {
	return sqllib.PostgresDialect{}
}

func (f *fakeSource) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	f.mu.Unlock()

	for fragment, resp := range f.responses {
		if !strings.Contains(query, fragment) {
			continue
		}

		if resp.err != nil {
			return nil, resp.err
		}

		schema := models.NewSchema(resp.columns...)
		schema.Upsert(models.Column{Name: constants.SourceDBColumn, Kind: models.KindString})
		rows := &fakeRows{schema: schema, failAfter: -1}
		if resp.failAfter > 0 {
			rows.failAfter = resp.failAfter
		}

		for _, values := range resp.rows {
			record := models.NewRecord()
			for i, col := range resp.columns {
				record.Set(col.Name, values[i])
			}
			record.Set(constants.SourceDBColumn, f.name)
			rows.records = append(rows.records, record)
		}
		return rows, nil
	}

	return nil, fmt.Errorf("relation does not exist")
}

type memorySink struct {
	mu        sync.Mutex
	committed map[string][]*models.Record
	discarded int
}

func newMemorySink() *memorySink {
	return &memorySink{committed: make(map[string][]*models.Record)}
}

type memoryAttempt struct {
	sink     *memorySink
	sourceDB string
	records  []*models.Record
}

func (m *memorySink) Begin(sourceDB string, _ *models.Schema) (Attempt, error) {
	return &memoryAttempt{sink: m, sourceDB: sourceDB}, nil
}

func (m *memoryAttempt) Write(record *models.Record) error {
	m.records = append(m.records, record)
	return nil
}

func (m *memoryAttempt) Commit() error {
	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()
	m.sink.committed[m.sourceDB] = append(m.sink.committed[m.sourceDB], m.records...)
	return nil
}

func (m *memoryAttempt) Discard() error {
	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()
	m.sink.discarded++
	return nil
}

func date(year int, month time.Month, day int) civil.Date {
	return civil.Date{Year: year, Month: month, Day: day}
}

var historia = models.ResourceDescriptor{
	Name:          "historia_academica",
	BaseQuery:     "SELECT * FROM vw_hist_academica",
	FallbackQuery: "SELECT * FROM negocio.sga_actas_detalle",
	WriteMode:     constants.Append,
	Cursor:        &models.Cursor{Column: "fecha", Kind: cursor.Date, InitialValue: date(1900, 1, 1)},
	Identity:      models.Identity{Policy: constants.HashedKey, Fields: []string{"alumno", "fecha"}},
}

var historiaColumns = []models.Column{{Name: "alumno", Kind: models.KindInteger}, {Name: "fecha", Kind: models.KindDate}}

func TestRunner_FallbackIsolatesSources(t *testing.T) {
	sourceA := &fakeSource{name: "guarani_fce", responses: map[string]response{
		"vw_hist_academica":        {err: fmt.Errorf(`relation "vw_hist_academica" does not exist`)},
		"negocio.sga_actas_detalle": {columns: historiaColumns, rows: [][]any{{int64(1), date(2024, 1, 1)}, {int64(2), date(2024, 1, 2)}}},
	}}
	sourceB := &fakeSource{name: "guarani_fhuc", responses: map[string]response{
		"vw_hist_academica": {columns: historiaColumns, rows: [][]any{{int64(3), date(2024, 2, 1)}}},
	}}

	sink := newMemorySink()
	result, err := New(Args{Resource: historia}).Run(t.Context(), []Source{sourceA, sourceB}, sink)
	require.NoError(t, err)

	assert.Equal(t, UsedFallback, result.Sources[0].Status)
	assert.Equal(t, 2, result.Sources[0].Rows)
	assert.Equal(t, date(2024, 1, 2), result.Sources[0].Checkpoint)
	assert.Equal(t, Succeeded, result.Sources[1].Status)
	assert.Equal(t, 1, result.Sources[1].Rows)
	assert.Equal(t, 3, result.Rows())
	assert.Equal(t, []string{"guarani_fce", "guarani_fhuc"}, result.Succeeded())
	assert.Empty(t, result.Failed())

	// Only the fallback rows of A were staged, and the fallback query was checkpoint-wrapped too.
	assert.Len(t, sink.committed["guarani_fce"], 2)
	assert.Len(t, sourceA.queries, 2)
	assert.Contains(t, sourceA.queries[1], `"fecha" > $1`)

	for _, record := range sink.committed["guarani_fce"] {
		key, ok := record.Get(constants.StableKeyColumn)
		assert.True(t, ok)
		assert.Len(t, key, 64)
	}

	states := result.Checkpoints()
	require.Len(t, states, 2)
	assert.Equal(t, "historia_academica", states[0].Resource)
	assert.Equal(t, date(2024, 2, 1), states[1].Value)
}

func TestRunner_SkipsFailedSource(t *testing.T) {
	resource := historia
	resource.FallbackQuery = ""

	broken := &fakeSource{name: "guarani_fce", responses: map[string]response{
		"vw_hist_academica": {columns: historiaColumns, rows: [][]any{{int64(1), date(2024, 1, 1)}, {int64(2), date(2024, 1, 2)}}, failAfter: 1},
	}}
	healthy := &fakeSource{name: "guarani_fhuc", responses: map[string]response{
		"vw_hist_academica": {columns: historiaColumns, rows: [][]any{{int64(3), date(2024, 2, 1)}}},
	}}

	sink := newMemorySink()
	result, err := New(Args{Resource: resource, Workers: 2}).Run(t.Context(), []Source{broken, healthy}, sink)
	require.NoError(t, err)

	assert.Equal(t, Skipped, result.Sources[0].Status)
	assert.ErrorContains(t, result.Sources[0].Err, "connection reset by peer")
	assert.Equal(t, []string{"guarani_fce"}, result.Failed())
	assert.Equal(t, []string{"guarani_fhuc"}, result.Succeeded())
	assert.Len(t, result.Checkpoints(), 1)

	// The partial attempt was discarded.
	assert.Equal(t, 1, sink.discarded)
	assert.Empty(t, sink.committed["guarani_fce"])
	assert.Len(t, sink.committed["guarani_fhuc"], 1)
}

func TestRunner_BothQueriesFail(t *testing.T) {
	source := &fakeSource{name: "guarani_fce"}
	result, err := New(Args{Resource: historia}).Run(t.Context(), []Source{source}, newMemorySink())
	require.NoError(t, err)
	assert.Equal(t, Skipped, result.Sources[0].Status)
	assert.Len(t, source.queries, 2)
}

func TestRunner_BackfillFloor(t *testing.T) {
	floor := date(2020, 1, 1)
	source := &fakeSource{name: "guarani_fce", responses: map[string]response{
		"vw_hist_academica": {columns: historiaColumns},
	}}

	{
		// No committed checkpoint: the floor raises 1900-01-01.
		_, err := New(Args{Resource: historia, BackfillFloor: &floor}).Run(t.Context(), []Source{source}, newMemorySink())
		require.NoError(t, err)
		assert.Equal(t, []any{time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}, source.args[0])
	}
	{
		// A committed checkpoint wins over the floor.
		_, err := New(Args{
			Resource:      historia,
			BackfillFloor: &floor,
			Checkpoints:   map[string]any{"guarani_fce": date(2023, 6, 30)},
		}).Run(t.Context(), []Source{source}, newMemorySink())
		require.NoError(t, err)
		assert.Equal(t, []any{time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC)}, source.args[1])
	}
}

func TestRunner_MixedTemporalSources(t *testing.T) {
	resource := models.ResourceDescriptor{
		Name:      "exam_inscriptions",
		BaseQuery: "SELECT * FROM sga_insc_examen",
		WriteMode: constants.Append,
		Cursor:    &models.Cursor{Column: "fecha_inscripcion", Kind: cursor.Instant},
	}

	art := time.FixedZone("ART", -3*60*60)
	dates := &fakeSource{name: "guarani_fce", responses: map[string]response{
		"sga_insc_examen": {
			columns: []models.Column{{Name: "fecha_inscripcion", Kind: models.KindDate}},
			rows:    [][]any{{date(2024, 3, 1)}, {date(2024, 3, 2)}},
		},
	}}
	instants := &fakeSource{name: "guarani_fhuc", responses: map[string]response{
		"sga_insc_examen": {
			columns: []models.Column{{Name: "fecha_inscripcion", Kind: models.KindTimestampTZ}},
			rows:    [][]any{{time.Date(2024, 3, 1, 9, 0, 0, 0, art)}, {"2024-03-01T10:00:00-03:00"}},
		},
	}}

	sink := newMemorySink()
	result, err := New(Args{
		Resource:    resource,
		Checkpoints: map[string]any{"guarani_fce": time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
	}).Run(t.Context(), []Source{dates, instants}, sink)
	require.NoError(t, err)

	assert.Equal(t, Succeeded, result.Sources[0].Status)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), result.Sources[0].Checkpoint)
	value, _ := sink.committed["guarani_fce"][0].Get("fecha_inscripcion")
	assert.IsType(t, time.Time{}, value)

	assert.Equal(t, Succeeded, result.Sources[1].Status)
	assert.True(t, time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC).Equal(result.Sources[1].Checkpoint.(time.Time)))
}

func TestRunner_CheckpointZone(t *testing.T) {
	resource := models.ResourceDescriptor{
		Name:      "exam_inscriptions",
		BaseQuery: "SELECT * FROM sga_insc_examen",
		WriteMode: constants.Append,
		Cursor:    &models.Cursor{Column: "fecha_inscripcion", Kind: cursor.Instant},
	}

	// Persisted instants keep their offset.
	committed, err := cursor.Decode(cursor.Instant, "2024-03-01T22:00:00-03:00")
	require.NoError(t, err)

	source := &fakeSource{name: "guarani_fce", responses: map[string]response{
		"sga_insc_examen": {
			columns: []models.Column{{Name: "fecha_inscripcion", Kind: models.KindDate}},
			rows: [][]any{
				{date(2024, 3, 1)},
				{date(2024, 3, 2)},
				{civil.DateTime{Date: date(2024, 3, 2), Time: civil.Time{Hour: 10}}},
			},
		},
	}}

	sink := newMemorySink()
	result, err := New(Args{Resource: resource, Checkpoints: map[string]any{"guarani_fce": committed}}).Run(t.Context(), []Source{source}, sink)
	require.NoError(t, err)

	// Midnight of March 2nd at -03:00 is after 22:00 of March 1st at -03:00, in UTC it would not be.
	assert.Equal(t, 2, result.Sources[0].Rows)
	assert.Equal(t, 1, result.Sources[0].Dropped)

	art := time.FixedZone("ART", -3*60*60)
	records := sink.committed["guarani_fce"]
	require.Len(t, records, 2)
	first, _ := records[0].Get("fecha_inscripcion")
	assert.True(t, time.Date(2024, 3, 2, 0, 0, 0, 0, art).Equal(first.(time.Time)))
	_, offset := first.(time.Time).Zone()
	assert.Equal(t, -3*60*60, offset)

	// The naive row gets the checkpoint's zone attached, and so does the next checkpoint.
	checkpoint, ok := result.Sources[0].Checkpoint.(time.Time)
	require.True(t, ok)
	assert.True(t, time.Date(2024, 3, 2, 10, 0, 0, 0, art).Equal(checkpoint))
	_, offset = checkpoint.Zone()
	assert.Equal(t, -3*60*60, offset)
}

func TestRunner_DropsRowsBelowCheckpoint(t *testing.T) {
	resource := models.ResourceDescriptor{
		Name:      "attendance",
		BaseQuery: "SELECT * FROM sga_asistencias",
		WriteMode: constants.Append,
		Cursor:    &models.Cursor{Column: "fecha", Kind: cursor.Date},
	}

	source := &fakeSource{name: "guarani_fce", responses: map[string]response{
		"sga_asistencias": {
			columns: []models.Column{{Name: "fecha", Kind: models.KindTimestamp}},
			rows: [][]any{
				{civil.DateTime{Date: date(2024, 1, 14), Time: civil.Time{Hour: 23}}},
				{civil.DateTime{Date: date(2024, 1, 15), Time: civil.Time{Hour: 8}}},
				{civil.DateTime{Date: date(2024, 1, 16)}},
			},
		},
	}}

	sink := newMemorySink()
	result, err := New(Args{Resource: resource, Checkpoints: map[string]any{"guarani_fce": date(2024, 1, 15)}}).Run(t.Context(), []Source{source}, sink)
	require.NoError(t, err)

	// Rows equal to the checkpoint after truncation are kept.
	assert.Equal(t, 2, result.Sources[0].Rows)
	assert.Equal(t, 1, result.Sources[0].Dropped)
	assert.Equal(t, date(2024, 1, 16), result.Sources[0].Checkpoint)
	value, _ := sink.committed["guarani_fce"][0].Get("fecha")
	assert.Equal(t, date(2024, 1, 15), value)
}

func TestRunner_OrderingViolation(t *testing.T) {
	resource := historia
	resource.FallbackQuery = ""
	source := &fakeSource{name: "guarani_fce", responses: map[string]response{
		"vw_hist_academica": {columns: historiaColumns, rows: [][]any{{int64(1), date(2024, 1, 2)}, {int64(2), date(2024, 1, 1)}}},
	}}

	result, err := New(Args{Resource: resource}).Run(t.Context(), []Source{source}, newMemorySink())
	require.NoError(t, err)
	assert.Equal(t, Skipped, result.Sources[0].Status)
	assert.ErrorContains(t, result.Sources[0].Err, `checkpoint column "fecha" is not ascending`)
}

func TestRunner_MissingCheckpointColumn(t *testing.T) {
	source := &fakeSource{name: "guarani_fce", responses: map[string]response{
		"vw_hist_academica": {columns: []models.Column{{Name: "alumno", Kind: models.KindInteger}}},
	}}

	_, err := New(Args{Resource: historia}).Run(t.Context(), []Source{source}, newMemorySink())
	var configErr ConfigError
	assert.ErrorAs(t, err, &configErr)
	assert.Equal(t, "historia_academica", configErr.Resource)
	assert.ErrorContains(t, err, `column "fecha" is missing`)

	// A misconfiguration is not a query failure, the fallback is never tried.
	assert.Len(t, source.queries, 1)
}

func TestRunner_QueryTimeout(t *testing.T) {
	resource := models.ResourceDescriptor{Name: "students", BaseQuery: "SELECT * FROM alumnos", FallbackQuery: "SELECT * FROM alumnos_v2", WriteMode: constants.Replace}
	source := &slowSource{fakeSource: fakeSource{name: "guarani_fce", responses: map[string]response{
		"alumnos_v2": {columns: []models.Column{{Name: "legajo", Kind: models.KindString}}, rows: [][]any{{"A1"}}},
	}}}

	result, err := New(Args{Resource: resource, QueryTimeout: 10 * time.Millisecond}).Run(t.Context(), []Source{source}, newMemorySink())
	require.NoError(t, err)
	assert.Equal(t, UsedFallback, result.Sources[0].Status)
	assert.Equal(t, 1, result.Sources[0].Rows)
	assert.Nil(t, result.Sources[0].Checkpoint)
	assert.Empty(t, result.Checkpoints())
}

// slowSource blocks the primary query until its deadline.
type slowSource struct {
	fakeSource
}

func (s *slowSource) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	if strings.Contains(query, "alumnos_v2") {
		return s.fakeSource.Query(ctx, query, args...)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	source := &slowSource{fakeSource: fakeSource{name: "guarani_fce"}}
	resource := models.ResourceDescriptor{Name: "students", BaseQuery: "SELECT * FROM alumnos", WriteMode: constants.Replace}
	_, err := New(Args{Resource: resource}).Run(ctx, []Source{source}, newMemorySink())
	assert.ErrorIs(t, err, context.Canceled)
}
